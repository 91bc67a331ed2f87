// Package pace provides the timing primitives shared by the list and clone
// pipelines: call spacing against API rate limits, exponential retry
// backoff, and a clock that tests can fake.
package pace

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces successive calls to a remote API.
type Pacer interface {
	Wait(ctx context.Context) error
}

// IntervalPacer is a token-bucket Pacer with a burst of one, so the first
// call proceeds immediately and each later call is spaced from the previous
// one by the configured interval. Placing Wait before each call means no
// trailing pause is spent after the final call.
type IntervalPacer struct {
	limiter *rate.Limiter
}

// NewIntervalPacer returns a Pacer that allows one call per interval.
// A non-positive interval disables pacing.
func NewIntervalPacer(interval time.Duration) *IntervalPacer {
	if interval <= 0 {
		return &IntervalPacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &IntervalPacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *IntervalPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Backoff computes exponential retry delays: Base doubled per attempt,
// capped at Cap.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the pause before retry attempt n, counted from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}

// Clock abstracts wall-clock time and sleeping so every timed behaviour
// in the pipelines can be exercised in tests without real waits.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
