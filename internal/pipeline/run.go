package pipeline

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/examtile/examtile/internal/tiling"
)

// Run returns a lazy, single-use sequence of page results. Pages are pulled
// from pages in order and processed only as the consumer ranges over the
// sequence.
//
// A page-source error is yielded once and ends the run. A cancelled context
// or a halting quota error yields the partial page (remaining tiles
// skipped) followed by the error. Results already yielded stay valid.
func (s *Scheduler) Run(ctx context.Context, pages iter.Seq2[Page, error], mode tiling.Mode) iter.Seq2[PageResult, error] {
	var used atomic.Bool
	return func(yield func(PageResult, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(PageResult{}, ErrAlreadyRun)
			return
		}

		s.logger.Info("run started", "mode", mode)
		for page, err := range pages {
			if err != nil {
				s.logger.Error("page source failed", "page", page.Index, "error", err)
				yield(PageResult{Index: page.Index}, err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(PageResult{Index: page.Index}, err)
				return
			}

			specs := tiling.ForImage(page.Image, mode)
			tiles, perr := s.ProcessPage(ctx, page, specs)
			s.pageDone()

			result := PageResult{Index: page.Index, Tiles: tiles}
			s.logger.Info("page complete", "page", page.Index, "tiles", len(tiles), "failed", result.Failed())
			if !yield(result, nil) {
				return
			}
			if perr != nil {
				yield(PageResult{Index: page.Index}, perr)
				return
			}
		}
		sum := s.Summary()
		s.logger.Info("run finished", "pages", sum.Pages, "ok", sum.OK, "failed", sum.Failed, "elapsed", sum.Elapsed)
	}
}

// Collect drains a run into a slice. It stops at the first error and
// returns the pages gathered so far with it.
func Collect(seq iter.Seq2[PageResult, error]) ([]PageResult, error) {
	var pages []PageResult
	for p, err := range seq {
		if err != nil {
			return pages, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// Flatten returns every tile result across pages in emission order.
func Flatten(pages []PageResult) []TileResult {
	var out []TileResult
	for _, p := range pages {
		out = append(out, p.Tiles...)
	}
	return out
}

// SlicePages adapts a slice of pages to a page sequence.
func SlicePages(pages []Page) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for _, p := range pages {
			if !yield(p, nil) {
				return
			}
		}
	}
}
