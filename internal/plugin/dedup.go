package plugin

import (
	"fmt"

	"github.com/flowport/flowport/internal/workflow"
)

// NameDeduplicator flags a candidate as a duplicate when a workflow with the
// exact same name already exists in the target list it is given. It only ever
// compares against that list, never against workflows transferred earlier in
// the same run. Stateless, so safe under concurrent workers.
type NameDeduplicator struct{}

func NewNameDeduplicator() *NameDeduplicator {
	return &NameDeduplicator{}
}

func (d *NameDeduplicator) Name() string  { return "name" }
func (d *NameDeduplicator) Kind() Kind    { return KindDeduplicator }
func (d *NameDeduplicator) Enabled() bool { return true }

func (d *NameDeduplicator) IsDuplicate(candidate *workflow.Workflow, existing []workflow.Workflow) (bool, string) {
	for _, e := range existing {
		if e.Name == candidate.Name {
			return true, fmt.Sprintf("workflow named %q already exists on target (id %s)", e.Name, e.ID)
		}
	}
	return false, ""
}
