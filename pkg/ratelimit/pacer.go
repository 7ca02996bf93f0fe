package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Pacer issues randomized delays between page actions to mimic human
// browsing. Delays are uniform over [min, max].
type Pacer struct {
	min time.Duration
	max time.Duration
}

// NewPacer creates a pacer with the given delay bounds. A max below min is
// clamped to min.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max}
}

// Pause sleeps for a randomized delay or until the context is cancelled
func (p *Pacer) Pause(ctx context.Context) error {
	delay := p.min
	if span := p.max - p.min; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
