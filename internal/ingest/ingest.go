// Package ingest turns an uploaded PDF into an ordered sequence of page
// images.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/examtile/examtile/internal/pipeline"
)

// DefaultDPI is the render resolution used when none is given.
const DefaultDPI = 300

var (
	ErrNotPDF   = errors.New("not a PDF document")
	ErrNoPages  = errors.New("document has no pages")
	ErrTooLarge = errors.New("document exceeds size limit")
)

// RasterizationError reports a document that could not be read or a page
// that could not be rendered. Page is 0 for document-level failures.
type RasterizationError struct {
	Page int
	Err  error
}

func (e *RasterizationError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("rasterize page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("rasterize document: %v", e.Err)
}

func (e *RasterizationError) Unwrap() error { return e.Err }

var eofMarker = []byte("%%EOF")

// ReadAll reads the whole upload. A positive limit caps its size.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return data, nil
}

// Sanitize drops anything after the last %%EOF marker, keeping one line
// ending. Browsers and some scanners append junk there.
func Sanitize(data []byte) []byte {
	i := bytes.LastIndex(data, eofMarker)
	if i < 0 {
		return data
	}
	end := i + len(eofMarker)
	switch {
	case bytes.HasPrefix(data[end:], []byte("\r\n")):
		end += 2
	case bytes.HasPrefix(data[end:], []byte("\n")), bytes.HasPrefix(data[end:], []byte("\r")):
		end++
	}
	return data[:end]
}

// IsPDF reports whether data carries a PDF header in its first kilobyte.
func IsPDF(data []byte) bool {
	head := data[:min(len(data), 1024)]
	return bytes.Contains(head, []byte("%PDF-"))
}

// PageCount validates data as a PDF and returns its page count.
func PageCount(data []byte) (int, error) {
	if !IsPDF(data) {
		return 0, ErrNotPDF
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	if n == 0 {
		return 0, ErrNoPages
	}
	return n, nil
}

// Config configures a Rasterizer.
type Config struct {
	// Renderer draws single pages. Defaults to Pdftoppm.
	Renderer Renderer
	// TempDir holds the working copy of each document. Defaults to os.TempDir().
	TempDir string
	Logger  *slog.Logger
}

// Rasterizer validates documents and hands out lazily rendered pages.
type Rasterizer struct {
	renderer Renderer
	tempDir  string
	logger   *slog.Logger
}

// NewRasterizer creates a rasterizer.
func NewRasterizer(cfg Config) *Rasterizer {
	r := &Rasterizer{renderer: cfg.Renderer, tempDir: cfg.TempDir, logger: cfg.Logger}
	if r.renderer == nil {
		r.renderer = &Pdftoppm{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Rasterize checks that data is a readable PDF with at least one page and
// returns a Document whose pages render at dpi. Callers must Close it.
// All failures are *RasterizationError.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte, dpi int) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	data = Sanitize(data)
	count, err := PageCount(data)
	if err != nil {
		return nil, &RasterizationError{Err: err}
	}

	f, err := os.CreateTemp(r.tempDir, "examtile-*.pdf")
	if err != nil {
		return nil, &RasterizationError{Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, &RasterizationError{Err: fmt.Errorf("failed to write temp file: %w", err)}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, &RasterizationError{Err: err}
	}

	r.logger.Debug("document ready", "pages", count, "dpi", dpi, "bytes", len(data))
	return &Document{
		path:     f.Name(),
		pages:    count,
		dpi:      dpi,
		renderer: r.renderer,
		logger:   r.logger,
	}, nil
}

// Document is a validated PDF on disk.
type Document struct {
	path     string
	pages    int
	dpi      int
	renderer Renderer
	logger   *slog.Logger
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.pages }

// DPI returns the render resolution.
func (d *Document) DPI() int { return d.dpi }

// Pages renders pages in ascending order as the consumer pulls them. A
// render failure is yielded as a *RasterizationError and ends the sequence.
func (d *Document) Pages(ctx context.Context) iter.Seq2[pipeline.Page, error] {
	return func(yield func(pipeline.Page, error) bool) {
		for n := 1; n <= d.pages; n++ {
			if err := ctx.Err(); err != nil {
				yield(pipeline.Page{Index: n}, err)
				return
			}
			img, err := d.renderer.Render(ctx, d.path, n, d.dpi)
			if err != nil {
				if ctx.Err() != nil {
					yield(pipeline.Page{Index: n}, ctx.Err())
				} else {
					yield(pipeline.Page{Index: n}, &RasterizationError{Page: n, Err: err})
				}
				return
			}
			b := img.Bounds()
			d.logger.Debug("page rendered", "page", n, "width", b.Dx(), "height", b.Dy())
			if !yield(pipeline.Page{Index: n, Image: img}, nil) {
				return
			}
		}
	}
}

// Close removes the working copy.
func (d *Document) Close() error {
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var numericSuffix = regexp.MustCompile(`[-_ ]\d+$`)

// Title derives a display title from a file name.
// e.g., "chem-final-2.pdf" -> "chem-final"
func Title(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if t := numericSuffix.ReplaceAllString(name, ""); t != "" {
		return t
	}
	return name
}
