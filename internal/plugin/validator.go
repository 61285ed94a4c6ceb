package plugin

import (
	"fmt"

	"github.com/flowport/flowport/internal/workflow"
)

// StructureValidator enforces the structural invariants a workflow must hold
// to be creatable on any instance: a non-empty name and at least one node.
type StructureValidator struct{}

func NewStructureValidator() *StructureValidator {
	return &StructureValidator{}
}

func (v *StructureValidator) Name() string  { return "structure" }
func (v *StructureValidator) Kind() Kind    { return KindValidator }
func (v *StructureValidator) Enabled() bool { return true }

func (v *StructureValidator) Validate(wf *workflow.Workflow) ValidationResult {
	result := ValidationResult{Valid: true}

	if wf.Name == "" {
		result.Valid = false
		result.Errors = append(result.Errors, "workflow has no name")
	}
	if len(wf.Nodes) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "workflow has no nodes")
	}

	seen := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if n.Type == "" {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("node %q has no type", n.Name))
		}
		if n.ID != "" && seen[n.ID] {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
	}

	if !wf.Active && len(wf.Tags) == 0 {
		result.Warnings = append(result.Warnings, "workflow is inactive and untagged")
	}

	return result
}
