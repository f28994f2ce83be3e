package connection

import "time"

// Backoff yields reconnect delays. Each delay is the previous one times
// factor, capped at max. It is never reset. Not safe for concurrent use.
type Backoff struct {
	max     time.Duration
	factor  float64
	current time.Duration
}

// NewBackoff creates a Backoff starting at initial.
func NewBackoff(initial, max time.Duration, factor float64) *Backoff {
	if factor < 1 {
		factor = 1
	}
	if initial > max {
		initial = max
	}
	return &Backoff{
		max:     max,
		factor:  factor,
		current: initial,
	}
}

// Next returns the delay to wait now and grows the following one.
func (b *Backoff) Next() time.Duration {
	d := b.current
	next := time.Duration(float64(b.current) * b.factor)
	if next > b.max || next < b.current {
		next = b.max
	}
	b.current = next
	return d
}

// Current returns the delay the next call to Next will yield.
func (b *Backoff) Current() time.Duration {
	return b.current
}
