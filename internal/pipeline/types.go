// Package pipeline drives an exam document through tiling and inference.
//
// Pages are processed strictly one at a time and tiles within a page in
// their tiling order. Every tile yields exactly one TileResult: a failed
// inference call is recorded on its tile and never stops the tiles or pages
// after it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/examtile/examtile/internal/tiling"
)

var (
	// ErrQuotaExhausted ends a run when quota errors are configured to halt.
	ErrQuotaExhausted = errors.New("inference quota exhausted")
	// ErrAlreadyRun is yielded when a run sequence is ranged over twice.
	ErrAlreadyRun = errors.New("run sequence already consumed")
	// ErrEmptyTile marks a tile with no pixels; no request is made for it.
	ErrEmptyTile = errors.New("tile has no pixels")
)

// Page is one rasterized page. Index is 1-based.
type Page struct {
	Index int
	Image image.Image
}

// TileResult is the outcome of one tile. Exactly one of Text or Error is set.
type TileResult struct {
	PageIndex int    `json:"page" yaml:"page"`
	Order     int    `json:"order" yaml:"order"`
	Label     string `json:"label" yaml:"label"`
	Text      string `json:"text,omitempty" yaml:"text,omitempty"`

	Err       error  `json:"-" yaml:"-"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Skipped   bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	Attempts  int           `json:"attempts" yaml:"attempts"`
	Latency   time.Duration `json:"latency_ns" yaml:"latency"`
	Tokens    int           `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	RequestID string        `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// OK reports whether the tile produced text.
func (r TileResult) OK() bool { return r.Error == "" && r.Err == nil }

// Caption is the display heading for the tile, e.g. "P1 - Left".
func (r TileResult) Caption() string { return Caption(r.PageIndex, r.Label) }

// Caption formats a page index and tile label.
func Caption(page int, label string) string {
	return fmt.Sprintf("P%d - %s", page, label)
}

// PageResult holds every tile result of one page, in tile order.
type PageResult struct {
	Index int          `json:"page" yaml:"page"`
	Tiles []TileResult `json:"tiles" yaml:"tiles"`
}

// Failed returns the number of tiles without text.
func (p PageResult) Failed() int {
	n := 0
	for _, t := range p.Tiles {
		if !t.OK() {
			n++
		}
	}
	return n
}

// TileEvent is delivered to a TileObserver after each tile completes.
type TileEvent struct {
	PageIndex int
	Spec      tiling.TileSpec
	Image     image.Image // the cropped tile before any downscaling
	Result    TileResult
}

// TileObserver receives tiles in emission order. An error from Emit is
// logged and does not affect processing.
type TileObserver interface {
	Emit(ctx context.Context, ev TileEvent) error
}

// ObserverFunc adapts a function to TileObserver.
type ObserverFunc func(ctx context.Context, ev TileEvent) error

func (f ObserverFunc) Emit(ctx context.Context, ev TileEvent) error { return f(ctx, ev) }
