package util

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff is an exponential backoff calculator with optional jitter.
// It is safe for concurrent use.
type Backoff struct {
	mu       sync.Mutex
	current  time.Duration
	initial  time.Duration
	maxDelay time.Duration
	factor   float64
	jitter   float64
}

// NewBackoff returns a new Backoff with the given initial and maximum delays.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{
		current:  initial,
		initial:  initial,
		maxDelay: maxDelay,
		factor:   2.0,
	}
}

// WithJitter spreads every delay returned by Next by up to ±fraction of it.
// The fraction is clamped to [0, 1].
func (b *Backoff) WithJitter(fraction float64) *Backoff {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jitter = min(max(fraction, 0), 1)
	return b
}

// Next returns the current delay, jittered if configured, and advances the base delay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.current
	b.current = min(time.Duration(float64(b.current)*b.factor), b.maxDelay)
	if b.jitter == 0 {
		return current
	}
	spread := (rand.Float64()*2 - 1) * b.jitter * float64(current)
	return time.Duration(float64(current) + spread)
}

// Current returns the base delay without advancing or jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Reset sets the backoff back to the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
}
