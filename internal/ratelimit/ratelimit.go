package ratelimit

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff computes exponential delays between retries: Base, Base*Multiplier, ...
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	// Max caps a single delay. Zero means no cap.
	Max   time.Duration
	Sleep Sleeper
}

func NewBackoff(base time.Duration, multiplier float64) *Backoff {
	if multiplier < 1 {
		multiplier = 2
	}
	return &Backoff{
		Base:       base,
		Multiplier: multiplier,
		Sleep:      Sleep,
	}
}

// Delay returns the wait after the given failed attempt, counting from 1.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1)))
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Wait sleeps for Delay(attempt), returning early with ctx.Err() on cancellation.
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	sleep := b.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return sleep(ctx, b.Delay(attempt))
}

// Pacer spaces out consecutive requests made by one session.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows perSecond requests per second with a burst of one.
// A non-positive rate disables pacing.
func NewPacer(perSecond float64) *Pacer {
	if perSecond <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
