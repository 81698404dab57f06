package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a token bucket refilled at requestsPerMinute/60 tokens per second.
type Bucket struct {
	mu sync.Mutex

	limiter *rate.Limiter
	clock   Clock
	rpm     int

	notBefore     time.Time
	lastCompleted time.Time
	totalRequests int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// NewBucket creates a token bucket. A rate or burst below one is treated
// as one.
func NewBucket(requestsPerMinute, burst int, clock Clock) *Bucket {
	if clock == nil {
		clock = RealClock{}
	}
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Bucket{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
		clock:   clock,
		rpm:     requestsPerMinute,
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (b *Bucket) Wait(ctx context.Context) error {
	b.mu.Lock()
	now := b.clock.Now()
	if d := b.notBefore.Sub(now); d > 0 {
		b.mu.Unlock()
		if err := sleep(ctx, b.clock, d); err != nil {
			return err
		}
		b.mu.Lock()
		b.totalWaited += d
		now = b.clock.Now()
	}
	r := b.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	b.totalRequests++
	b.mu.Unlock()

	if err := sleep(ctx, b.clock, wait); err != nil {
		r.CancelAt(b.clock.Now())
		b.mu.Lock()
		b.totalRequests--
		b.mu.Unlock()
		return err
	}
	if wait > 0 {
		b.mu.Lock()
		b.totalWaited += wait
		b.mu.Unlock()
	}
	return nil
}

// Done records the completion time.
func (b *Bucket) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastCompleted = b.clock.Now()
}

// Record429 drains the bucket and blocks requests for retryAfter.
func (b *Bucket) Record429(retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.last429Time = now
	if retryAfter > 0 {
		b.notBefore = now.Add(retryAfter)
		if n := int(b.limiter.TokensAt(now)); n > 0 {
			b.limiter.AllowN(now, n)
		}
	}
}

// Status returns current bucket status.
func (b *Bucket) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	var until time.Duration
	if b.limiter.TokensAt(now) < 1 {
		until = time.Duration((1 - b.limiter.TokensAt(now)) / float64(b.limiter.Limit()) * float64(time.Second))
	}
	if d := b.notBefore.Sub(now); d > until {
		until = d
	}
	return Status{
		Strategy:       StrategyBucket,
		Interval:       time.Minute / time.Duration(b.rpm),
		LastCompleted:  b.lastCompleted,
		TimeUntilReady: until,
		TotalRequests:  b.totalRequests,
		TotalWaited:    b.totalWaited,
		Last429Time:    b.last429Time,
	}
}
