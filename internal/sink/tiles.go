package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/examtile/examtile/internal/home"
	"github.com/examtile/examtile/internal/pipeline"
	"github.com/examtile/examtile/internal/tiling"
)

// TileSaver writes each cropped tile image to a directory.
type TileSaver struct {
	dir     string
	format  tiling.Format
	quality int
	saved   int
}

// NewTileSaver creates dir and returns a saver writing images in format.
func NewTileSaver(dir string, format tiling.Format, quality int) (*TileSaver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tiles directory: %w", err)
	}
	if format == "" {
		format = tiling.FormatPNG
	}
	return &TileSaver{dir: dir, format: format, quality: quality}, nil
}

func (s *TileSaver) Emit(ctx context.Context, ev pipeline.TileEvent) error {
	if ev.Image == nil || ev.Image.Bounds().Empty() {
		return nil
	}
	data, err := tiling.Encode(ev.Image, s.format, s.quality)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, home.TileFileName(ev.PageIndex, ev.Result.Label, s.format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write tile image: %w", err)
	}
	s.saved++
	return nil
}

func (s *TileSaver) PageDone(ctx context.Context, page pipeline.PageResult) error { return nil }

func (s *TileSaver) Close(sum pipeline.Summary, runErr error) error { return nil }

// Saved returns the number of images written.
func (s *TileSaver) Saved() int { return s.saved }
