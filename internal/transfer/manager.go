// Package transfer orchestrates the migration of workflows from a SOURCE
// instance to a TARGET instance.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/flowport/flowport/internal/api"
	"github.com/flowport/flowport/internal/config"
	"github.com/flowport/flowport/internal/logging"
	"github.com/flowport/flowport/internal/plugin"
	"github.com/flowport/flowport/internal/refs"
	"github.com/flowport/flowport/internal/report"
	"github.com/flowport/flowport/internal/workflow"
)

// Status is the run-level state of the manager.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ItemStatus tracks one workflow through the transfer pipeline.
type ItemStatus string

const (
	ItemPending      ItemStatus = "pending"
	ItemTransferring ItemStatus = "transferring"
	ItemTransferred  ItemStatus = "transferred"
	ItemSkipped      ItemStatus = "skipped"
	ItemFailed       ItemStatus = "failed"
)

// Options configures one transfer run.
type Options struct {
	Tags            []string
	DryRun          bool
	Parallelism     int
	SkipCredentials bool
	Deduplicator    string
	Validators      []string
	Reporters       []string
}

// State is the transient per-workflow record, folded into the summary when
// the run ends.
type State struct {
	Workflow   *workflow.Workflow
	Status     ItemStatus
	Source     string
	Target     string
	Validation *plugin.ValidationResult
	Reason     string
	Err        error
}

// Progress is a point-in-time snapshot, safe to read while a run is active.
type Progress struct {
	Total       int     `json:"total"`
	Processed   int     `json:"processed"`
	Transferred int     `json:"transferred"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	Percentage  float64 `json:"percentage"`
	Status      Status  `json:"status"`
}

// Manager owns the two API clients and drives a transfer run end to end:
// connectivity checks, filtering, dedup, validation, credential policy,
// creation on the target, reference rewriting, and reporting.
type Manager struct {
	source   *api.Client
	target   *api.Client
	registry *plugin.Registry
	mapper   *refs.IDMapper
	updater  *refs.Updater
	log      *logrus.Entry

	mu     sync.Mutex
	status Status
	states []*State

	cancelled   atomic.Bool
	total       atomic.Int64
	processed   atomic.Int64
	transferred atomic.Int64
	skipped     atomic.Int64
	failed      atomic.Int64
	duplicates  atomic.Int64
}

// NewManager builds the two clients. The configuration is validated eagerly;
// a missing URL or API key fails here, before any network call.
func NewManager(cfg *config.Config, registry *plugin.Registry) (*Manager, error) {
	if registry == nil {
		return nil, fmt.Errorf("transfer manager: plugin registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("transfer manager: %w", err)
	}

	clientCfg := func(inst config.Instance) api.ClientConfig {
		return api.ClientConfig{
			BaseURL:              inst.URL,
			APIKey:               inst.APIKey,
			MaxRetries:           cfg.Transfer.MaxRetries,
			Timeout:              time.Duration(cfg.Transfer.TimeoutMs) * time.Millisecond,
			MaxRequestsPerSecond: cfg.Transfer.MaxRequestsPerSecond,
		}
	}

	source, err := api.NewClient(clientCfg(cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	target, err := api.NewClient(clientCfg(cfg.Target))
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	log := logging.Component("transfer")
	if source.BaseURL() == target.BaseURL() {
		// Legitimate but risky: duplicating workflows within one instance.
		log.Warn("source and target are the same instance")
	}

	mapper := refs.NewIDMapper()
	return &Manager{
		source:   source,
		target:   target,
		registry: registry,
		mapper:   mapper,
		updater:  refs.NewUpdater(mapper),
		log:      log,
		status:   StatusIdle,
	}, nil
}

// RegisterPlugin delegates to the registry, surfacing its validation errors.
func (m *Manager) RegisterPlugin(p plugin.Plugin) error {
	return m.registry.Register(p)
}

// IDMapper exposes the accumulated old→new identity map, for post-run audits.
func (m *Manager) IDMapper() *refs.IDMapper {
	return m.mapper
}

// ReferenceStats returns the reference-rewriting counters for the run.
func (m *Manager) ReferenceStats() refs.Stats {
	return m.updater.Stats()
}

// Transfer runs one migration. Configuration and connectivity problems abort
// with an error and no summary; every other failure is absorbed into the
// summary and the run completes.
func (m *Manager) Transfer(ctx context.Context, opts Options) (*report.Summary, error) {
	m.mu.Lock()
	if m.status == StatusRunning {
		m.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	m.status = StatusRunning
	m.states = nil
	m.mu.Unlock()

	m.resetCounters()
	m.cancelled.Store(false)
	m.updater.ResetStats()

	summary, err := m.run(ctx, opts)

	m.mu.Lock()
	switch {
	case err != nil:
		m.status = StatusIdle
	case summary.Cancelled:
		m.status = StatusCancelled
	default:
		m.status = StatusCompleted
	}
	m.mu.Unlock()

	return summary, err
}

func (m *Manager) run(ctx context.Context, opts Options) (*report.Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := m.log.WithField("run_id", runID)

	// Step 1: both ends must answer before any workflow data is touched.
	if res := m.source.TestConnection(ctx); !res.Success {
		return nil, &ConnectivityError{Role: "SOURCE", Result: res}
	}
	if res := m.target.TestConnection(ctx); !res.Success {
		return nil, &ConnectivityError{Role: "TARGET", Result: res}
	}

	// Step 2: a missing deduplicator is fatal; missing validators and
	// reporters are logged degradations.
	dedupName := opts.Deduplicator
	if dedupName == "" {
		dedupName = "name"
	}
	dedup, ok := m.registry.Deduplicator(dedupName)
	if !ok || !dedup.Enabled() {
		return nil, fmt.Errorf("deduplicator %q is not registered", dedupName)
	}
	validators := m.resolveValidators(opts.Validators, log)
	reporters := m.resolveReporters(opts.Reporters, log)

	// Step 3: the dedup comparison runs against this snapshot of the target,
	// never against workflows transferred earlier in the same run. Anything
	// else would make outcomes depend on worker completion order.
	sourceWorkflows, err := m.source.GetWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch SOURCE workflows: %w", err)
	}
	targetSnapshot, err := m.target.GetWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch TARGET workflows: %w", err)
	}

	// Step 4.
	candidates := workflow.FilterByTags(sourceWorkflows, opts.Tags)
	if len(candidates) == 0 {
		log.Warn("no workflows matched the filters")
	}
	m.total.Store(int64(len(candidates)))
	log.Infof("transferring %d of %d workflows (dry_run=%t parallelism=%d)",
		len(candidates), len(sourceWorkflows), opts.DryRun, opts.Parallelism)

	// Step 5: bounded fan-out. The cancel flag is checked between units of
	// work; in-flight creates are never preempted.
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(parallelism)
	for i := range candidates {
		if m.cancelled.Load() {
			break
		}
		wf := candidates[i]
		g.Go(func() error {
			m.processOne(ctx, &wf, opts, dedup, validators, targetSnapshot)
			return nil
		})
	}
	_ = g.Wait()

	// Steps 6–7.
	summary := &report.Summary{
		RunID:       runID,
		Total:       len(candidates),
		Transferred: int(m.transferred.Load()),
		Skipped:     int(m.skipped.Load()),
		Failed:      int(m.failed.Load()),
		Duplicates:  int(m.duplicates.Load()),
		Duration:    time.Since(start),
		Errors:      m.collectErrors(),
		Cancelled:   m.cancelled.Load(),
		DryRun:      opts.DryRun,
	}

	for _, rep := range reporters {
		path, err := m.generateReport(rep, summary)
		if err != nil {
			log.WithError(err).Errorf("reporter %q failed", rep.Name())
			continue
		}
		summary.Reports = append(summary.Reports, report.Ref{
			Reporter: rep.Name(),
			Path:     path,
			Format:   rep.Name(),
		})
	}

	log.Infof("run finished: %d transferred, %d skipped, %d failed", summary.Transferred, summary.Skipped, summary.Failed)
	return summary, nil
}

// processOne moves a single workflow through dedup → validation → credential
// policy → create. Its failures never abort the run.
func (m *Manager) processOne(ctx context.Context, wf *workflow.Workflow, opts Options,
	dedup plugin.Deduplicator, validators []plugin.Validator, targetSnapshot []workflow.Workflow) {

	if m.cancelled.Load() {
		return
	}

	state := &State{
		Workflow: wf,
		Status:   ItemPending,
		Source:   m.source.BaseURL(),
		Target:   m.target.BaseURL(),
	}
	m.appendState(state)
	defer m.processed.Add(1)

	if dup, reason := dedup.IsDuplicate(wf, targetSnapshot); dup {
		state.Status = ItemSkipped
		state.Reason = reason
		m.skipped.Add(1)
		m.duplicates.Add(1)
		m.log.Debugf("skipping %q: %s", wf.Name, state.Reason)
		return
	}

	if opts.SkipCredentials && wf.HasCredentials() {
		state.Status = ItemSkipped
		state.Reason = "contains credential bindings"
		m.skipped.Add(1)
		m.log.Debugf("skipping %q: %s", wf.Name, state.Reason)
		return
	}

	for _, v := range validators {
		result := v.Validate(wf)
		state.Validation = &result
		for _, w := range result.Warnings {
			m.log.Warnf("%q: %s", wf.Name, w)
		}
		if !result.Valid {
			state.Status = ItemSkipped
			state.Reason = strings.Join(result.Errors, "; ")
			m.skipped.Add(1)
			m.log.Debugf("skipping %q: %s", wf.Name, state.Reason)
			return
		}
	}

	state.Status = ItemTransferring

	// Rewrite cross-workflow references with whatever the mapper has
	// accumulated so far. A sibling that has not transferred yet simply
	// fails to resolve and is counted, not retried.
	payload, err := m.updater.UpdateWorkflow(wf)
	if err != nil {
		state.Status = ItemFailed
		state.Err = err
		state.Reason = err.Error()
		m.failed.Add(1)
		return
	}

	if opts.DryRun {
		state.Status = ItemTransferred
		m.transferred.Add(1)
		m.log.Infof("[dry run] would transfer %q", wf.Name)
		return
	}

	created, err := m.target.CreateWorkflow(ctx, payload)
	if err != nil {
		state.Status = ItemFailed
		state.Err = err
		state.Reason = err.Error()
		m.failed.Add(1)
		m.log.WithError(err).Warnf("failed to transfer %q", wf.Name)
		return
	}

	m.mapper.Add(wf.ID, wf.Name, created.ID)
	state.Status = ItemTransferred
	m.transferred.Add(1)
	m.log.Infof("transferred %q (%s -> %s)", wf.Name, wf.ID, created.ID)
}

// WorkflowValidation pairs a workflow with its validation outcome.
type WorkflowValidation struct {
	Workflow string                  `json:"workflow"`
	Result   plugin.ValidationResult `json:"result"`
}

// ValidationRun is the outcome of a standalone validation pass.
type ValidationRun struct {
	Total   int                  `json:"total"`
	Valid   int                  `json:"valid"`
	Invalid int                  `json:"invalid"`
	Results []WorkflowValidation `json:"results"`
}

// Validate runs just the validator phase against SOURCE, without ever
// contacting TARGET. It fails fast when no validator resolves.
func (m *Manager) Validate(ctx context.Context, opts Options) (*ValidationRun, error) {
	validators := m.resolveValidators(opts.Validators, m.log)
	if len(validators) == 0 {
		return nil, fmt.Errorf("no validators resolved from %v", opts.Validators)
	}

	if res := m.source.TestConnection(ctx); !res.Success {
		return nil, &ConnectivityError{Role: "SOURCE", Result: res}
	}

	sourceWorkflows, err := m.source.GetWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch SOURCE workflows: %w", err)
	}
	candidates := workflow.FilterByTags(sourceWorkflows, opts.Tags)

	run := &ValidationRun{Total: len(candidates)}
	for i := range candidates {
		wf := &candidates[i]
		combined := plugin.ValidationResult{Valid: true}
		for _, v := range validators {
			result := v.Validate(wf)
			combined.Errors = append(combined.Errors, result.Errors...)
			combined.Warnings = append(combined.Warnings, result.Warnings...)
			if !result.Valid {
				combined.Valid = false
			}
		}
		if combined.Valid {
			run.Valid++
		} else {
			run.Invalid++
		}
		run.Results = append(run.Results, WorkflowValidation{Workflow: wf.Name, Result: combined})
	}
	return run, nil
}

// Progress returns a copy of the current counters, never a live reference.
func (m *Manager) Progress() Progress {
	m.mu.Lock()
	status := m.status
	m.mu.Unlock()

	total := m.total.Load()
	processed := m.processed.Load()
	pct := 0.0
	if total > 0 {
		pct = float64(processed) / float64(total) * 100
	}
	return Progress{
		Total:       int(total),
		Processed:   int(processed),
		Transferred: int(m.transferred.Load()),
		Skipped:     int(m.skipped.Load()),
		Failed:      int(m.failed.Load()),
		Percentage:  pct,
		Status:      status,
	}
}

// Cancel sets the cooperative cancel flag. It returns false when no run is
// active; in-flight work still finishes, no new units start.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	running := m.status == StatusRunning
	m.mu.Unlock()
	if !running {
		return false
	}
	m.cancelled.Store(true)
	m.log.Warn("cancellation requested; finishing in-flight work")
	return true
}

// --- helpers ---

func (m *Manager) resolveValidators(names []string, log *logrus.Entry) []plugin.Validator {
	var out []plugin.Validator
	for _, name := range names {
		v, ok := m.registry.Validator(name)
		if !ok {
			log.Warnf("validator %q is not registered; continuing without it", name)
			continue
		}
		if !v.Enabled() {
			log.Warnf("validator %q is disabled; continuing without it", name)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (m *Manager) resolveReporters(names []string, log *logrus.Entry) []plugin.Reporter {
	var out []plugin.Reporter
	for _, name := range names {
		r, ok := m.registry.Reporter(name)
		if !ok {
			log.Warnf("reporter %q is not registered; continuing without it", name)
			continue
		}
		if !r.Enabled() {
			log.Warnf("reporter %q is disabled; continuing without it", name)
			continue
		}
		out = append(out, r)
	}
	return out
}

// generateReport shields the run from reporter plugins: an error or panic is
// reported back as an error and the run goes on.
func (m *Manager) generateReport(rep plugin.Reporter, summary *report.Summary) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reporter panicked: %v", r)
		}
	}()
	return rep.Generate(summary)
}

func (m *Manager) appendState(s *State) {
	m.mu.Lock()
	m.states = append(m.states, s)
	m.mu.Unlock()
}

func (m *Manager) collectErrors() []report.TransferError {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []report.TransferError
	for _, s := range m.states {
		if s.Status != ItemFailed || s.Err == nil {
			continue
		}
		entry := report.TransferError{
			Workflow: s.Workflow.Name,
			Error:    s.Err.Error(),
		}
		var apiErr *api.APIError
		if errors.As(s.Err, &apiErr) {
			entry.Code = apiErr.StatusCode
		}
		out = append(out, entry)
	}
	return out
}

func (m *Manager) resetCounters() {
	m.total.Store(0)
	m.processed.Store(0)
	m.transferred.Store(0)
	m.skipped.Store(0)
	m.failed.Store(0)
	m.duplicates.Store(0)
}
