// Package plugin defines the capability contracts consulted during a
// transfer run and the registry they are resolved through.
package plugin

import (
	"github.com/flowport/flowport/internal/report"
	"github.com/flowport/flowport/internal/workflow"
)

// Kind identifies a plugin capability.
type Kind string

const (
	KindDeduplicator Kind = "deduplicator"
	KindValidator    Kind = "validator"
	KindReporter     Kind = "reporter"
)

// Plugin is implemented by every pluggable strategy.
type Plugin interface {
	Name() string
	Kind() Kind
	Enabled() bool
}

// Deduplicator decides whether a source candidate already exists on the
// target. The returned reason describes that decision; returning it with the
// verdict keeps concurrent callers from reading each other's reasons.
type Deduplicator interface {
	Plugin
	IsDuplicate(candidate *workflow.Workflow, existing []workflow.Workflow) (bool, string)
}

// ValidationResult is the outcome of one validator run.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator checks a workflow before transfer. Any Valid=false short-circuits
// the transfer of that workflow.
type Validator interface {
	Plugin
	Validate(wf *workflow.Workflow) ValidationResult
}

// Reporter writes the run summary somewhere and returns a path or identifier.
// It is invoked once per run, after all workflows are processed.
type Reporter interface {
	Plugin
	Generate(summary *report.Summary) (string, error)
}
