package tempus

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces the start of consecutive remote calls by at least interval.
// It holds the time of the last release and is not safe for concurrent use;
// the pipeline is sequential.
type Pacer struct {
	interval time.Duration
	limiter  *rate.Limiter
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) PacerOption {
	return func(p *Pacer) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// NewPacer returns a pacer releasing at most one call per interval.
// A non-positive interval disables pacing.
func NewPacer(interval time.Duration, opts ...PacerOption) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	p := &Pacer{
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured minimum spacing.
func (p *Pacer) Interval() time.Duration { return p.interval }

// roundingSlack bounds the correction applied on top of the limiter. The
// limiter converts between float tokens and durations and may release a call
// a few nanoseconds early.
const roundingSlack = time.Microsecond

// Wait blocks until the next call may start and reports how long it waited.
//
// The token is only taken when the limiter allows an immediate release, so
// the limiter always measures from the moment a call actually started. A
// wait that is canceled consumes nothing.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var waited time.Duration
	for {
		now := p.now()
		r := p.limiter.ReserveN(now, 1)
		if !r.OK() {
			return waited, errNoReservation
		}
		delay := r.DelayFrom(now)
		if delay <= 0 {
			break
		}
		r.CancelAt(now)
		if err := p.sleep(ctx, delay); err != nil {
			return waited, err
		}
		waited += delay
	}

	if !p.last.IsZero() {
		if gap := p.last.Add(p.interval).Sub(p.now()); gap > 0 && gap <= roundingSlack {
			if err := p.sleep(ctx, gap); err != nil {
				return waited, err
			}
			waited += gap
		}
	}
	p.last = p.now()
	return waited, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
