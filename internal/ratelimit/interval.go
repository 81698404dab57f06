package ratelimit

import (
	"context"
	"sync"
	"time"
)

// IntervalGate enforces a minimum gap between the completion of one request
// and the start of the next. Since a request always starts before it
// completes, the gap between consecutive request starts is at least the
// interval as well.
type IntervalGate struct {
	mu sync.Mutex

	interval time.Duration
	clock    Clock

	// last is the completion time of the previous request; zero until the
	// first request finishes. notBefore is set by Record429.
	last      time.Time
	notBefore time.Time

	totalRequests int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// NewIntervalGate creates a gate with the given minimum interval.
func NewIntervalGate(interval time.Duration, clock Clock) *IntervalGate {
	if clock == nil {
		clock = RealClock{}
	}
	return &IntervalGate{interval: interval, clock: clock}
}

// Wait blocks until the interval since the last completed request has elapsed.
func (g *IntervalGate) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.mu.Lock()
		wait := g.untilReady()
		if wait <= 0 {
			g.totalRequests++
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		// Wait outside lock
		if err := sleep(ctx, g.clock, wait); err != nil {
			return err
		}
		g.mu.Lock()
		g.totalWaited += wait
		g.mu.Unlock()
	}
}

// Done records the completion time of the current request.
func (g *IntervalGate) Done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = g.clock.Now()
}

// Record429 delays the next request by at least retryAfter from now.
func (g *IntervalGate) Record429(retryAfter time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.last429Time = now
	if retryAfter > 0 {
		if nb := now.Add(retryAfter); nb.After(g.notBefore) {
			g.notBefore = nb
		}
	}
}

// Status returns current gate status.
func (g *IntervalGate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Strategy:       StrategyInterval,
		Interval:       g.interval,
		LastCompleted:  g.last,
		TimeUntilReady: max(0, g.untilReady()),
		TotalRequests:  g.totalRequests,
		TotalWaited:    g.totalWaited,
		Last429Time:    g.last429Time,
	}
}

// untilReady must be called with lock held.
func (g *IntervalGate) untilReady() time.Duration {
	now := g.clock.Now()
	var wait time.Duration
	if !g.last.IsZero() {
		wait = g.last.Add(g.interval).Sub(now)
	}
	if d := g.notBefore.Sub(now); d > wait {
		wait = d
	}
	return wait
}
