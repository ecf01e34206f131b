package supervisor

import (
	"time"
)

// restartBreaker bounds restart storms: it keeps a sliding window of
// restart timestamps and trips once more than maxAttempts fall inside the
// window. Fast crashes count the same as slow ones; only the attempt
// timestamp matters.
type restartBreaker struct {
	maxAttempts int
	window      time.Duration
	attempts    []time.Time
}

func newRestartBreaker(maxAttempts int, window time.Duration) *restartBreaker {
	return &restartBreaker{
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make([]time.Time, 0),
	}
}

// Record prunes attempts outside the window, appends the current one, and
// returns how many remain inside.
func (b *restartBreaker) Record(now time.Time) int {
	b.pruneOld(now)
	b.attempts = append(b.attempts, now)
	return len(b.attempts)
}

// Tripped reports whether the recorded attempts exceed the allowance.
func (b *restartBreaker) Tripped() bool {
	return len(b.attempts) > b.maxAttempts
}

func (b *restartBreaker) pruneOld(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.attempts[:0]
	for _, t := range b.attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.attempts = kept
}
