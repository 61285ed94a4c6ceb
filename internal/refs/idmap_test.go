package refs

import "testing"

func TestIDMapper(t *testing.T) {
	m := NewIDMapper()

	if _, ok := m.Resolve("old-1"); ok {
		t.Error("Resolve() found an entry in an empty mapper")
	}

	m.Add("old-1", "Order intake", "new-9")

	if got, ok := m.Resolve("old-1"); !ok || got != "new-9" {
		t.Errorf("Resolve(old-1) = %q, %t", got, ok)
	}
	if got, ok := m.IDByName("Order intake"); !ok || got != "new-9" {
		t.Errorf("IDByName(Order intake) = %q, %t", got, ok)
	}
	if got, ok := m.IDByOldID("old-1"); !ok || got != "new-9" {
		t.Errorf("IDByOldID(old-1) = %q, %t", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestIDMapperIgnoresEmptyKeys(t *testing.T) {
	m := NewIDMapper()
	m.Add("", "", "new-1")

	if m.Len() != 0 {
		t.Errorf("Len() = %d after adding empty keys, want 0", m.Len())
	}
	if _, ok := m.IDByName(""); ok {
		t.Error("IDByName(\"\") resolved")
	}
}
