package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/examtile/examtile/internal/pipeline"
)

// Markdown writes a readable transcript: a heading per page, a subheading
// per tile, then the model's answer or the tile's error.
type Markdown struct {
	w     io.Writer
	title string
	page  int
	err   error
}

// NewMarkdown creates a markdown sink. An empty title omits the document
// heading.
func NewMarkdown(w io.Writer, title string) *Markdown {
	return &Markdown{w: w, title: title}
}

func (m *Markdown) printf(format string, args ...any) {
	if m.err != nil {
		return
	}
	_, m.err = fmt.Fprintf(m.w, format, args...)
}

func (m *Markdown) startPage(index int) {
	if m.page == 0 && m.title != "" {
		m.printf("# %s\n\n", m.title)
	}
	if index != m.page {
		m.page = index
		m.printf("## Page %d\n\n", index)
	}
}

func (m *Markdown) Emit(ctx context.Context, ev pipeline.TileEvent) error {
	m.startPage(ev.PageIndex)
	r := ev.Result
	m.printf("### %s\n\n", r.Caption())
	if r.OK() {
		m.printf("%s\n\n", strings.TrimSpace(r.Text))
	} else {
		m.printf("> **Error**%s: %s\n\n", kindSuffix(r.ErrorKind), r.Error)
	}
	return m.err
}

// PageDone lists tiles that were skipped and never emitted.
func (m *Markdown) PageDone(ctx context.Context, page pipeline.PageResult) error {
	for _, r := range page.Tiles {
		if r.Skipped {
			m.startPage(page.Index)
			m.printf("### %s\n\n_Skipped._\n\n", r.Caption())
		}
	}
	return m.err
}

func (m *Markdown) Close(sum pipeline.Summary, runErr error) error {
	m.printf("---\n\n%d pages, %d tiles: %d answered, %d failed, %d skipped in %s.\n",
		sum.Pages, sum.Tiles, sum.OK, sum.Failed, sum.Skipped, sum.Elapsed.Round(time.Second))
	if runErr != nil {
		m.printf("\n**Run stopped (%s):** %v\n", Classify(runErr), runErr)
	}
	return m.err
}

func kindSuffix(kind string) string {
	if kind == "" {
		return ""
	}
	return " (" + kind + ")"
}
