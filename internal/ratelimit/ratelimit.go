// Package ratelimit paces requests to the inference provider.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Strategy names a limiter implementation.
type Strategy string

const (
	// StrategyInterval waits a fixed minimum interval after each completed request.
	StrategyInterval Strategy = "interval"
	// StrategyBucket is a token bucket sized by requests per minute.
	StrategyBucket Strategy = "bucket"
)

// DefaultMinInterval matches the free-tier ceiling of the hosted model.
const DefaultMinInterval = 30 * time.Second

// Limiter gates each request. Wait is called before a request starts and
// Done after it finishes, whether it succeeded or not.
type Limiter interface {
	Wait(ctx context.Context) error
	Done()
	// Record429 pushes back the next request after a quota response.
	Record429(retryAfter time.Duration)
	Status() Status
}

// Status reports current limiter state.
type Status struct {
	Strategy       Strategy      `json:"strategy"`
	Interval       time.Duration `json:"interval"`
	LastCompleted  time.Time     `json:"last_completed,omitempty"`
	TimeUntilReady time.Duration `json:"time_until_ready"`
	TotalRequests  int64         `json:"total_requests"`
	TotalWaited    time.Duration `json:"total_waited"`
	Last429Time    time.Time     `json:"last_429_time,omitempty"`
}

// Options configure New.
type Options struct {
	Strategy          Strategy
	MinInterval       time.Duration
	RequestsPerMinute int
	Burst             int
	Clock             Clock
}

// New builds the limiter selected by opts.Strategy.
// For the interval strategy a positive RequestsPerMinute overrides MinInterval.
func New(opts Options) (Limiter, error) {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	switch opts.Strategy {
	case StrategyInterval, "":
		interval := opts.MinInterval
		if opts.RequestsPerMinute > 0 {
			interval = time.Minute / time.Duration(opts.RequestsPerMinute)
		}
		if interval < 0 {
			return nil, fmt.Errorf("min interval must not be negative: %s", interval)
		}
		return NewIntervalGate(interval, opts.Clock), nil
	case StrategyBucket:
		if opts.RequestsPerMinute <= 0 {
			return nil, fmt.Errorf("bucket strategy requires requests_per_minute > 0")
		}
		return NewBucket(opts.RequestsPerMinute, opts.Burst, opts.Clock), nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", opts.Strategy)
	}
}

// sleep waits on clock for d or until ctx is done.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
