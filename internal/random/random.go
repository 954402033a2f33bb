// Package random provides a goroutine-safe source of pseudo-random numbers
// that can be seeded deterministically in tests.
package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is the subset of *rand.Rand used by identity selection, typing,
// and pacing.
type Source interface {
	IntN(n int) int
	Int64N(n int64) int64
	Float64() float64
}

// Locked serializes access to a *rand.Rand.
type Locked struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Locked source seeded with seed.
func New(seed uint64) *Locked {
	return &Locked{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewFromTime seeds a Locked source from the wall clock.
func NewFromTime() *Locked {
	return New(uint64(time.Now().UnixNano()))
}

// IntN returns a value in [0, n).
func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.IntN(n)
}

// Int64N returns a value in [0, n).
func (l *Locked) Int64N(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Int64N(n)
}

// Float64 returns a value in [0.0, 1.0).
func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}

// Between returns a duration uniformly drawn from [lo, hi]. It returns lo
// when the range is empty.
func Between(src Source, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(src.Int64N(int64(hi-lo)+1))
}
