package ingest

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Renderer draws one page (1-based) of the PDF at path.
type Renderer interface {
	Render(ctx context.Context, path string, page, dpi int) (image.Image, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, path string, page, dpi int) (image.Image, error)

func (f RendererFunc) Render(ctx context.Context, path string, page, dpi int) (image.Image, error) {
	return f(ctx, path, page, dpi)
}

// Pdftoppm renders pages with poppler's pdftoppm.
type Pdftoppm struct {
	// Binary overrides the executable (default "pdftoppm" from PATH).
	Binary string
}

func (p *Pdftoppm) binary() string {
	if p.Binary != "" {
		return p.Binary
	}
	return "pdftoppm"
}

// Available reports whether the renderer binary can be found.
func (p *Pdftoppm) Available() error {
	if _, err := exec.LookPath(p.binary()); err != nil {
		return fmt.Errorf("%s not found (install poppler-utils): %w", p.binary(), err)
	}
	return nil
}

// Render renders a single page. pdftoppm draws the page as displayed,
// unlike image extraction, which returns embedded objects out of page order.
func (p *Pdftoppm) Render(ctx context.Context, path string, page, dpi int) (image.Image, error) {
	tmpDir, err := os.MkdirTemp("", "examtile-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -singlefile: no page number suffix on the output name
	pageStr := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.binary(),
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		path,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	f, err := os.Open(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered page: %w", err)
	}
	return img, nil
}
