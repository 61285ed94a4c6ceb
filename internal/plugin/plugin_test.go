package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowport/flowport/internal/report"
	"github.com/flowport/flowport/internal/workflow"
)

type fakePlugin struct {
	name string
	kind Kind
}

func (p *fakePlugin) Name() string  { return p.name }
func (p *fakePlugin) Kind() Kind    { return p.kind }
func (p *fakePlugin) Enabled() bool { return true }

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	p := &fakePlugin{name: "custom", kind: KindValidator}

	if err := r.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := r.Lookup("custom", KindValidator)
	if !ok || got != Plugin(p) {
		t.Errorf("Lookup() = %v, %t", got, ok)
	}
	if _, ok := r.Lookup("custom", KindReporter); ok {
		t.Error("Lookup() matched the wrong kind")
	}
	if _, ok := r.Lookup("missing", KindValidator); ok {
		t.Error("Lookup() matched a missing name")
	}
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Error("Register(nil) did not fail")
	}
	if err := r.Register(&fakePlugin{name: "", kind: KindValidator}); err == nil {
		t.Error("Register() accepted a nameless plugin")
	}
	if err := r.Register(&fakePlugin{name: "x", kind: Kind("mystery")}); err == nil {
		t.Error("Register() accepted an unknown kind")
	}

	p := &fakePlugin{name: "dup", kind: KindValidator}
	if err := r.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(p); err == nil {
		t.Error("Register() accepted a duplicate (name, kind)")
	}
	// Same name under a different kind is a distinct entry.
	if err := r.Register(&fakePlugin{name: "dup", kind: KindDeduplicator}); err != nil {
		t.Errorf("Register() rejected same name under another kind: %v", err)
	}
}

func TestRegistryTypedLookups(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewNameDeduplicator())
	r.MustRegister(NewStructureValidator())
	r.MustRegister(NewJSONReporter(t.TempDir()))

	if _, ok := r.Deduplicator("name"); !ok {
		t.Error("Deduplicator(name) not found")
	}
	if _, ok := r.Validator("structure"); !ok {
		t.Error("Validator(structure) not found")
	}
	if _, ok := r.Reporter("json"); !ok {
		t.Error("Reporter(json) not found")
	}
	if _, ok := r.Deduplicator("structure"); ok {
		t.Error("Deduplicator() resolved a validator name")
	}
}

func TestNameDeduplicator(t *testing.T) {
	d := NewNameDeduplicator()
	existing := []workflow.Workflow{
		{ID: "t-1", Name: "Order intake"},
		{ID: "t-2", Name: "Billing"},
	}

	isDup, reason := d.IsDuplicate(&workflow.Workflow{ID: "s-1", Name: "Billing"}, existing)
	if !isDup {
		t.Fatal("IsDuplicate() = false for an exact name match")
	}
	if !strings.Contains(reason, "Billing") || !strings.Contains(reason, "t-2") {
		t.Errorf("reason = %q", reason)
	}

	fresh := &workflow.Workflow{ID: "s-2", Name: "billing"}
	if isDup, reason := d.IsDuplicate(fresh, existing); isDup || reason != "" {
		t.Errorf("IsDuplicate() = %t, %q for a case-differing name", isDup, reason)
	}
	if isDup, _ := d.IsDuplicate(fresh, nil); isDup {
		t.Error("IsDuplicate() = true against an empty target list")
	}
}

// Each call's reason must describe its own candidate, even when workers share
// one deduplicator instance.
func TestNameDeduplicatorReasonIsPerCall(t *testing.T) {
	d := NewNameDeduplicator()
	existing := []workflow.Workflow{
		{ID: "t-1", Name: "Orders"},
		{ID: "t-2", Name: "Billing"},
	}

	var wg sync.WaitGroup
	for _, name := range []string{"Orders", "Billing"} {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				isDup, reason := d.IsDuplicate(&workflow.Workflow{Name: name}, existing)
				if !isDup || !strings.Contains(reason, name) {
					t.Errorf("IsDuplicate(%q) = %t, %q", name, isDup, reason)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestStructureValidator(t *testing.T) {
	v := NewStructureValidator()

	ok := &workflow.Workflow{
		Name:   "Good",
		Active: true,
		Nodes:  []workflow.Node{{ID: "n1", Name: "Start", Type: "trigger"}},
	}
	if res := v.Validate(ok); !res.Valid || len(res.Errors) != 0 {
		t.Errorf("Validate() = %+v for a well-formed workflow", res)
	}

	bad := &workflow.Workflow{
		Name: "",
		Nodes: []workflow.Node{
			{ID: "n1", Name: "A", Type: ""},
			{ID: "n1", Name: "B", Type: "set"},
		},
	}
	res := v.Validate(bad)
	if res.Valid {
		t.Fatal("Validate() = valid for a malformed workflow")
	}
	joined := strings.Join(res.Errors, "; ")
	for _, want := range []string{"no name", "no type", "duplicate node id"} {
		if !strings.Contains(joined, want) {
			t.Errorf("errors %q missing %q", joined, want)
		}
	}

	empty := &workflow.Workflow{Name: "Empty"}
	res = v.Validate(empty)
	if res.Valid {
		t.Error("Validate() = valid for a workflow with no nodes")
	}

	idle := &workflow.Workflow{
		Name:  "Idle",
		Nodes: []workflow.Node{{ID: "n1", Name: "Start", Type: "trigger"}},
	}
	res = v.Validate(idle)
	if !res.Valid {
		t.Errorf("Validate() errors = %v for an inactive workflow", res.Errors)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want inactive+untagged warning", res.Warnings)
	}
}

func sampleSummary() *report.Summary {
	return &report.Summary{
		RunID:       "run-abc",
		Total:       3,
		Transferred: 2,
		Skipped:     0,
		Failed:      1,
		Duration:    1500 * time.Millisecond,
		Errors: []report.TransferError{
			{Workflow: "Broken", Error: "API error 500: boom", Code: 500},
		},
	}
}

func TestJSONReporter(t *testing.T) {
	dir := t.TempDir()
	r := NewJSONReporter(filepath.Join(dir, "reports"))

	path, err := r.Generate(sampleSummary())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if filepath.Ext(path) != ".json" {
		t.Errorf("path = %q, want .json extension", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got report.Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if got.RunID != "run-abc" || got.Transferred != 2 || got.Failed != 1 {
		t.Errorf("round-tripped summary = %+v", got)
	}
	if len(got.Errors) != 1 || got.Errors[0].Code != 500 {
		t.Errorf("round-tripped errors = %+v", got.Errors)
	}
}

func TestMarkdownReporter(t *testing.T) {
	r := NewMarkdownReporter(t.TempDir())

	path, err := r.Generate(sampleSummary())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"run-abc", "| Transferred | 2 |", "| Failed | 1 |", "Broken", "status 500"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportFilenamesAreUnique(t *testing.T) {
	a := reportFilename("json")
	b := reportFilename("json")
	if a == b {
		t.Errorf("reportFilename() collided: %q", a)
	}
}
