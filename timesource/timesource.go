// Package timesource reports the wall time elapsed between simulation frames.
package timesource

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// A Source measures frame deltas against a clock. The first call to Delta after construction or
// Reset only records the reference and returns zero.
type Source struct {
	mu    sync.Mutex
	clock clock.Clock
	last  time.Time
	set   bool
}

// New returns a Source reading from c. A nil clock selects the real wall clock.
func New(c clock.Clock) *Source {
	if c == nil {
		c = clock.New()
	}
	return &Source{clock: c}
}

// Clock returns the underlying clock.
func (s *Source) Clock() clock.Clock {
	return s.clock
}

// Now returns the current time of the underlying clock.
func (s *Source) Now() time.Time {
	return s.clock.Now()
}

// Delta returns the milliseconds elapsed since the previous call.
func (s *Source) Delta() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !s.set {
		s.last = now
		s.set = true
		return 0
	}
	dt := now.Sub(s.last)
	s.last = now
	if dt < 0 {
		return 0
	}
	return float64(dt) / float64(time.Millisecond)
}

// Reset forgets the reference time so the next Delta returns zero.
func (s *Source) Reset() {
	s.mu.Lock()
	s.set = false
	s.mu.Unlock()
}
