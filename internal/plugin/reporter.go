package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowport/flowport/internal/report"
)

// reportFilename builds a unique, sortable filename for a run report.
func reportFilename(ext string) string {
	stamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("transfer-%s-%s.%s", stamp, uuid.NewString()[:8], ext)
}

// JSONReporter writes the full summary as indented JSON under OutputDir.
type JSONReporter struct {
	OutputDir string
}

func NewJSONReporter(outputDir string) *JSONReporter {
	return &JSONReporter{OutputDir: outputDir}
}

func (r *JSONReporter) Name() string  { return "json" }
func (r *JSONReporter) Kind() Kind    { return KindReporter }
func (r *JSONReporter) Enabled() bool { return true }

func (r *JSONReporter) Generate(summary *report.Summary) (string, error) {
	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	path := filepath.Join(r.OutputDir, reportFilename("json"))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// MarkdownReporter writes a human-readable summary under OutputDir.
type MarkdownReporter struct {
	OutputDir string
}

func NewMarkdownReporter(outputDir string) *MarkdownReporter {
	return &MarkdownReporter{OutputDir: outputDir}
}

func (r *MarkdownReporter) Name() string  { return "markdown" }
func (r *MarkdownReporter) Kind() Kind    { return KindReporter }
func (r *MarkdownReporter) Enabled() bool { return true }

func (r *MarkdownReporter) Generate(summary *report.Summary) (string, error) {
	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Workflow Transfer Report\n\n")
	fmt.Fprintf(&b, "Run `%s`", summary.RunID)
	if summary.DryRun {
		fmt.Fprintf(&b, " (dry run)")
	}
	fmt.Fprintf(&b, "\n\n")

	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total | %d |\n", summary.Total)
	fmt.Fprintf(&b, "| Transferred | %d |\n", summary.Transferred)
	fmt.Fprintf(&b, "| Skipped | %d |\n", summary.Skipped)
	fmt.Fprintf(&b, "| Duplicates | %d |\n", summary.Duplicates)
	fmt.Fprintf(&b, "| Failed | %d |\n", summary.Failed)
	fmt.Fprintf(&b, "| Duration | %s |\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "| Cancelled | %t |\n", summary.Cancelled)

	if len(summary.Errors) > 0 {
		fmt.Fprintf(&b, "\n## Errors\n\n")
		for _, e := range summary.Errors {
			if e.Code > 0 {
				fmt.Fprintf(&b, "- **%s**: %s (status %d)\n", e.Workflow, e.Error, e.Code)
			} else {
				fmt.Fprintf(&b, "- **%s**: %s\n", e.Workflow, e.Error)
			}
		}
	}

	path := filepath.Join(r.OutputDir, reportFilename("md"))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
