// Package clock provides an injectable time source so timing-sensitive
// components can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock access.
type Clock interface {
	Now() time.Time
}

// Sleeper abstracts blocking waits so breakout backoff can be tested
// without real delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

// System is the wall clock. It implements both Clock and Sleeper.
type System struct{}

func (System) Now() time.Time        { return time.Now() }
func (System) Sleep(d time.Duration) { time.Sleep(d) }

// Manual is a hand-advanced clock for tests. Sleep advances the clock
// instead of blocking.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set jumps the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) Sleep(d time.Duration) {
	m.Advance(d)
}
