// Package clock abstracts wall time so window and expiry math can run
// against a manually advanced clock in tests.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System returns the wall clock.
func System() Clock {
	return systemClock{}
}

// Mock is a Clock that only moves when told to.
type Mock struct {
	lock sync.Mutex
	now  time.Time
}

func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

func (m *Mock) Now() time.Time {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.now
}

// Advance moves the clock forward and returns the new time.
func (m *Mock) Advance(d time.Duration) time.Time {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.now = m.now.Add(d)
	return m.now
}

func (m *Mock) Set(t time.Time) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.now = t
}
