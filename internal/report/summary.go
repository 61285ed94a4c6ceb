// Package report defines the transfer summary handed to reporters and the
// CLI at the end of a run.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// TransferError records one workflow that failed to transfer.
type TransferError struct {
	Workflow string `json:"workflow"`
	Error    string `json:"error"`
	Code     int    `json:"code,omitempty"`
}

// Ref points at a report a reporter plugin wrote out.
type Ref struct {
	Reporter string `json:"reporter"`
	Path     string `json:"path"`
	Format   string `json:"format"`
}

// Summary is produced once per run. Counts are simple accumulations, so they
// are identical regardless of worker completion order.
type Summary struct {
	RunID       string          `json:"run_id"`
	Total       int             `json:"total"`
	Transferred int             `json:"transferred"`
	Skipped     int             `json:"skipped"`
	Failed      int             `json:"failed"`
	Duplicates  int             `json:"duplicates"`
	Duration    time.Duration   `json:"-"`
	Errors      []TransferError `json:"errors,omitempty"`
	Cancelled   bool            `json:"cancelled"`
	DryRun      bool            `json:"dry_run"`
	Reports     []Ref           `json:"reports,omitempty"`
}

// MarshalJSON writes the duration as duration_ms in milliseconds. The default
// encoding of time.Duration is nanoseconds, which no report consumer expects.
func (s Summary) MarshalJSON() ([]byte, error) {
	type alias Summary
	return json.Marshal(struct {
		alias
		DurationMs int64 `json:"duration_ms"`
	}{alias: alias(s), DurationMs: s.Duration.Milliseconds()})
}

// UnmarshalJSON reads duration_ms back into Duration.
func (s *Summary) UnmarshalJSON(data []byte) error {
	type alias Summary
	aux := struct {
		*alias
		DurationMs int64 `json:"duration_ms"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Duration = time.Duration(aux.DurationMs) * time.Millisecond
	return nil
}

// Render returns the human-readable summary printed after a run.
func (s *Summary) Render() string {
	var b strings.Builder

	title := "Transfer complete"
	if s.Cancelled {
		title = "Transfer cancelled"
	}
	if s.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(&b, "%s\n%s\n\n", title, strings.Repeat("=", len(title)))

	fmt.Fprintf(&b, "  Total:       %s\n", english.Plural(s.Total, "workflow", ""))
	fmt.Fprintf(&b, "  Transferred: %d\n", s.Transferred)
	fmt.Fprintf(&b, "  Skipped:     %d (%d duplicates)\n", s.Skipped, s.Duplicates)
	fmt.Fprintf(&b, "  Failed:      %d\n", s.Failed)
	fmt.Fprintf(&b, "  Duration:    %s\n", humanDuration(s.Duration))

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "\nErrors:\n")
		for _, e := range s.Errors {
			if e.Code > 0 {
				fmt.Fprintf(&b, "  %s: %s (status %d)\n", e.Workflow, e.Error, e.Code)
			} else {
				fmt.Fprintf(&b, "  %s: %s\n", e.Workflow, e.Error)
			}
		}
	}

	if len(s.Reports) > 0 {
		fmt.Fprintf(&b, "\nReports:\n")
		for _, r := range s.Reports {
			fmt.Fprintf(&b, "  %s: %s\n", r.Reporter, r.Path)
		}
	}

	return b.String()
}

// humanDuration renders short runs precisely and long runs approximately.
func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Millisecond).String()
	}
	return humanize.RelTime(time.Now().Add(-d), time.Now(), "", "")
}
