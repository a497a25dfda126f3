package transport

import (
	"context"
	"math/rand"
	"time"
)

type backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

func newBackoff(base, max time.Duration) *backoff { return &backoff{base: base, max: max} }

// Next returns the following delay: base, doubled each call up to max,
// with ~±20% jitter.
func (b *backoff) Next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.base
	} else {
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}
	j := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(b.cur) * j)
}

// Wait sleeps for Next() or until ctx is done.
func (b *backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *backoff) Reset() { b.cur = 0 }
