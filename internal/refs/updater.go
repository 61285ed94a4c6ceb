package refs

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/flowport/flowport/internal/logging"
	"github.com/flowport/flowport/internal/workflow"
)

// maxDepth bounds the traversal so pathological or accidentally shared
// substructure cannot blow the stack. Hitting it stops descent into that
// branch and warns; it is not an error.
const maxDepth = 50

// Stats accumulates reference-rewriting counters across workflows.
type Stats struct {
	WorkflowsProcessed int `json:"workflows_processed"`
	NodesProcessed     int `json:"nodes_processed"`
	ReferencesUpdated  int `json:"references_updated"`
	ReferencesFailed   int `json:"references_failed"`
}

// SuccessRate returns the percentage of resolved references, 0 when none
// were ever attempted.
func (s Stats) SuccessRate() float64 {
	attempted := s.ReferencesUpdated + s.ReferencesFailed
	if attempted == 0 {
		return 0
	}
	return float64(s.ReferencesUpdated) / float64(attempted) * 100
}

// Updater rewrites embedded cross-workflow references using an IDMapper.
// A reference that cannot be resolved is counted and left untouched; a
// workflow with a dangling reference must still transfer.
type Updater struct {
	mapper *IDMapper
	log    *logrus.Entry

	mu    sync.Mutex
	stats Stats
}

func NewUpdater(mapper *IDMapper) *Updater {
	return &Updater{
		mapper: mapper,
		log:    logging.Component("refs"),
	}
}

// Stats returns a snapshot of the accumulated counters.
func (u *Updater) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// ResetStats zeroes the accumulated counters.
func (u *Updater) ResetStats() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stats = Stats{}
}

// UpdateWorkflow returns a deep, independent copy of wf with every resolvable
// cross-workflow reference rewritten. The input is never mutated, so callers
// can retry against the original.
func (u *Updater) UpdateWorkflow(wf *workflow.Workflow) (*workflow.Workflow, error) {
	clone, err := wf.Clone()
	if err != nil {
		return nil, err
	}
	for i := range clone.Nodes {
		u.addNode()
		if clone.Nodes[i].Parameters != nil {
			u.UpdateObject(clone.Nodes[i].Parameters)
		}
	}
	u.addWorkflow()
	return clone, nil
}

// UpdateBatch applies UpdateWorkflow to a sequence, accumulating combined
// statistics. A workflow that fails to copy aborts the batch.
func (u *Updater) UpdateBatch(workflows []workflow.Workflow) ([]workflow.Workflow, error) {
	out := make([]workflow.Workflow, 0, len(workflows))
	for i := range workflows {
		updated, err := u.UpdateWorkflow(&workflows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *updated)
	}
	return out, nil
}

// UpdateObject rewrites references in place inside an arbitrary object graph
// of maps and slices. Safe on graphs with cycles: objects on the active
// recursion stack are tracked by identity and never descended into twice.
func (u *Updater) UpdateObject(root any) {
	u.walk(root, make(map[uintptr]struct{}), 0)
}

func (u *Updater) walk(v any, active map[uintptr]struct{}, depth int) {
	if depth > maxDepth {
		u.log.Warnf("max traversal depth %d exceeded, stopping descent", maxDepth)
		return
	}

	switch t := v.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, onStack := active[ptr]; onStack {
			u.log.Debug("cycle detected in object graph, stopping descent")
			return
		}
		active[ptr] = struct{}{}
		defer delete(active, ptr)

		if _, ok := t["cachedResultName"]; ok {
			u.resolveStructured(t)
		}
		for key, child := range t {
			if key == "workflowId" {
				if oldID, ok := child.(string); ok {
					u.resolveBare(t, oldID)
					continue
				}
			}
			u.walk(child, active, depth+1)
		}

	case []any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, onStack := active[ptr]; onStack {
			u.log.Debug("cycle detected in object graph, stopping descent")
			return
		}
		active[ptr] = struct{}{}
		defer delete(active, ptr)

		for _, item := range t {
			u.walk(item, active, depth+1)
		}
	}
}

// resolveStructured handles a {value, cachedResultName} reference. Names
// survive migration more reliably than ids when environments diverge, so the
// name is tried first, then the old id.
func (u *Updater) resolveStructured(ref map[string]any) {
	name, _ := ref["cachedResultName"].(string)
	oldID, _ := ref["value"].(string)

	if name != "" {
		if newID, ok := u.mapper.IDByName(name); ok {
			ref["value"] = newID
			u.addUpdated()
			return
		}
	}
	if oldID != "" {
		if newID, ok := u.mapper.Resolve(oldID); ok {
			ref["value"] = newID
			u.addUpdated()
			return
		}
	}
	u.addFailed()
	u.log.Debugf("unresolved workflow reference (name=%q, id=%q)", name, oldID)
}

func (u *Updater) resolveBare(parent map[string]any, oldID string) {
	if newID, ok := u.mapper.Resolve(oldID); ok {
		parent["workflowId"] = newID
		u.addUpdated()
		return
	}
	u.addFailed()
	u.log.Debugf("unresolved workflow reference (id=%q)", oldID)
}

// Issue describes one mismatched reference found by ValidateReferences.
type Issue struct {
	Node     string `json:"node"`
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ValidationReport is the result of a read-only reference audit.
type ValidationReport struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// ValidateReferences audits a workflow without modifying it, comparing each
// reference's stored id against the id its name resolves to. Used after a
// migration, never to gate one.
func (u *Updater) ValidateReferences(wf *workflow.Workflow) *ValidationReport {
	report := &ValidationReport{Valid: true}
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if node.Parameters == nil {
			continue
		}
		u.audit(node.Name, node.Parameters, make(map[uintptr]struct{}), 0, report)
	}
	return report
}

func (u *Updater) audit(nodeName string, v any, active map[uintptr]struct{}, depth int, report *ValidationReport) {
	if depth > maxDepth {
		return
	}

	switch t := v.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, onStack := active[ptr]; onStack {
			return
		}
		active[ptr] = struct{}{}
		defer delete(active, ptr)

		name, hasName := t["cachedResultName"].(string)
		if hasName && name != "" {
			if expected, ok := u.mapper.IDByName(name); ok {
				actual, _ := t["value"].(string)
				if actual != expected {
					report.Valid = false
					report.Issues = append(report.Issues, Issue{
						Node:     nodeName,
						Name:     name,
						Expected: expected,
						Actual:   actual,
					})
				}
			}
		}
		for _, child := range t {
			u.audit(nodeName, child, active, depth+1, report)
		}

	case []any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, onStack := active[ptr]; onStack {
			return
		}
		active[ptr] = struct{}{}
		defer delete(active, ptr)

		for _, item := range t {
			u.audit(nodeName, item, active, depth+1, report)
		}
	}
}

func (u *Updater) addWorkflow() { u.mu.Lock(); u.stats.WorkflowsProcessed++; u.mu.Unlock() }
func (u *Updater) addNode()     { u.mu.Lock(); u.stats.NodesProcessed++; u.mu.Unlock() }
func (u *Updater) addUpdated()  { u.mu.Lock(); u.stats.ReferencesUpdated++; u.mu.Unlock() }
func (u *Updater) addFailed()   { u.mu.Lock(); u.stats.ReferencesFailed++; u.mu.Unlock() }

// String renders the counters for log lines.
func (s Stats) String() string {
	return fmt.Sprintf("workflows=%d nodes=%d updated=%d failed=%d rate=%.1f%%",
		s.WorkflowsProcessed, s.NodesProcessed, s.ReferencesUpdated, s.ReferencesFailed, s.SuccessRate())
}
