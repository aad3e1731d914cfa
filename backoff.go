package controlloop

import (
	rand "math/rand/v2"
	"time"
)

// backoffState tracks the retry delay for one object/handler pairing.
//
// The delay starts at min, doubles after every consecutive failure, and is
// clamped to max. A success resets it to zero so the next failure starts
// over at min. The zero value is unusable; use newBackoff.
type backoffState struct {
	current time.Duration
	min     time.Duration
	max     time.Duration
}

func newBackoff(minDelay, maxDelay time.Duration) backoffState {
	if minDelay <= 0 {
		minDelay = time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	return backoffState{min: minDelay, max: maxDelay}
}

// Next returns the delay to apply to the current failure and advances the
// doubling sequence: min, 2*min, 4*min, ... capped at max.
func (b *backoffState) Next() time.Duration {
	if b.current == 0 {
		b.current = b.min
	} else {
		b.current *= 2
		if b.current > b.max {
			b.current = b.max
		}
	}

	return b.current
}

// Reset restores the sequence so the next failure starts at min again.
func (b *backoffState) Reset() {
	b.current = 0
}

// jittered returns base plus a bounded random fraction of base.
//
// Periodic work across fleet members uses this to avoid thundering-herd
// alignment; the fraction bounds the spread, so the result is always within
// [base, base*(1+fraction)).
func jittered(base time.Duration, fraction float64) time.Duration {
	if base <= 0 || fraction <= 0 {
		return base
	}

	spread := time.Duration(float64(base) * fraction)
	if spread <= 0 {
		return base
	}

	return base + rand.N(spread) //nolint:gosec // non-crypto scheduling jitter
}
