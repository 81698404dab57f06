// Package sink presents tile results as a run produces them.
package sink

import (
	"context"
	"errors"
	"iter"

	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/ingest"
	"github.com/examtile/examtile/internal/pipeline"
)

// Sink consumes a run. Emit is called by the scheduler after each tile
// (skipped tiles are not emitted), PageDone after each page with every
// tile result, and Close once at the end.
type Sink interface {
	Emit(ctx context.Context, ev pipeline.TileEvent) error
	PageDone(ctx context.Context, page pipeline.PageResult) error
	Close(sum pipeline.Summary, runErr error) error
}

// Drain ranges over a run, forwarding pages to s, then closes s with the
// final summary. It returns the run error, or the close error if the run
// succeeded.
func Drain(ctx context.Context, seq iter.Seq2[pipeline.PageResult, error], s Sink, summary func() pipeline.Summary) error {
	var runErr error
	for page, err := range seq {
		if err != nil {
			runErr = err
			break
		}
		if err := s.PageDone(ctx, page); err != nil {
			runErr = err
			break
		}
	}
	closeErr := s.Close(summary(), runErr)
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// Error kinds reported for a failed run.
const (
	KindConfiguration = "configuration"
	KindRasterization = "rasterization"
	KindQuota         = "quota"
	KindCanceled      = "canceled"
	KindInternal      = "internal"
)

// Classify names the kind of a run-level error.
func Classify(err error) string {
	var cerr *config.ConfigurationError
	var rerr *ingest.RasterizationError
	var kinded interface{ ErrorKind() string }
	switch {
	case errors.As(err, &kinded):
		return kinded.ErrorKind()
	case errors.As(err, &cerr):
		return KindConfiguration
	case errors.As(err, &rerr):
		return KindRasterization
	case errors.Is(err, pipeline.ErrQuotaExhausted):
		return KindQuota
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindInternal
}

type multi []Sink

// Multi fans out to every sink in order. Errors are joined.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Emit(ctx context.Context, ev pipeline.TileEvent) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Emit(ctx, ev))
	}
	return errors.Join(errs...)
}

func (m multi) PageDone(ctx context.Context, page pipeline.PageResult) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.PageDone(ctx, page))
	}
	return errors.Join(errs...)
}

func (m multi) Close(sum pipeline.Summary, runErr error) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close(sum, runErr))
	}
	return errors.Join(errs...)
}
