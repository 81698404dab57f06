package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/examtile/examtile/internal/pipeline"
)

// Report is the structured form of a finished run.
type Report struct {
	Title   string                `json:"title,omitempty" yaml:"title,omitempty"`
	RunID   string                `json:"run_id" yaml:"run_id"`
	Pages   []pipeline.PageResult `json:"pages" yaml:"pages"`
	Summary pipeline.Summary      `json:"summary" yaml:"summary"`
	Error   string                `json:"error,omitempty" yaml:"error,omitempty"`
	Kind    string                `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// Document collects page results and writes one JSON or YAML report on
// Close.
type Document struct {
	w      io.Writer
	format string
	report Report
}

// NewDocument creates a document sink. format is "json" or "yaml".
func NewDocument(w io.Writer, format, title string) (*Document, error) {
	switch format {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("unsupported document format: %s", format)
	}
	return &Document{w: w, format: format, report: Report{Title: title}}, nil
}

func (d *Document) Emit(ctx context.Context, ev pipeline.TileEvent) error { return nil }

func (d *Document) PageDone(ctx context.Context, page pipeline.PageResult) error {
	d.report.Pages = append(d.report.Pages, page)
	return nil
}

func (d *Document) Close(sum pipeline.Summary, runErr error) error {
	d.report.RunID = sum.RunID
	d.report.Summary = sum
	if runErr != nil {
		d.report.Error = runErr.Error()
		d.report.Kind = Classify(runErr)
	}
	if d.report.Pages == nil {
		d.report.Pages = []pipeline.PageResult{}
	}

	if d.format == "yaml" {
		enc := yaml.NewEncoder(d.w)
		enc.SetIndent(2)
		if err := enc.Encode(d.report); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(d.w)
	enc.SetIndent("", "  ")
	return enc.Encode(d.report)
}

// Report returns the collected report.
func (d *Document) Report() Report { return d.report }
