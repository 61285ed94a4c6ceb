// Package refs repairs cross-workflow references after ids change on the
// target instance.
package refs

import "sync"

// IDMapper records the identity each workflow received on the target.
// It is append-only: entries are written once as the target accepts
// workflows, and read concurrently by the reference updater.
type IDMapper struct {
	mu      sync.RWMutex
	byOldID map[string]string
	byName  map[string]string
}

func NewIDMapper() *IDMapper {
	return &IDMapper{
		byOldID: make(map[string]string),
		byName:  make(map[string]string),
	}
}

// Add records the new identity for a transferred workflow.
func (m *IDMapper) Add(oldID, name, newID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if oldID != "" {
		m.byOldID[oldID] = newID
	}
	if name != "" {
		m.byName[name] = newID
	}
}

// Resolve returns the new id for an old id.
func (m *IDMapper) Resolve(oldID string) (string, bool) {
	return m.IDByOldID(oldID)
}

// IDByName returns the new id for a workflow name.
func (m *IDMapper) IDByName(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	return id, ok
}

// IDByOldID returns the new id for an old id.
func (m *IDMapper) IDByOldID(oldID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byOldID[oldID]
	return id, ok
}

// Len returns the number of recorded workflows.
func (m *IDMapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byOldID)
}
