package simulation

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// StopWatch measures elapsed time on a clock. It starts running.
type StopWatch struct {
	mu      sync.Mutex
	clock   clock.Clock
	elapsed time.Duration
	started time.Time
	running bool
}

// NewStopWatch returns a running stopwatch reading zero.
func NewStopWatch(c clock.Clock) *StopWatch {
	if c == nil {
		c = clock.New()
	}
	return &StopWatch{clock: c, started: c.Now(), running: true}
}

// Time returns the elapsed time in milliseconds.
func (sw *StopWatch) Time() float64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	total := sw.elapsed
	if sw.running {
		total += sw.clock.Since(sw.started)
	}
	return float64(total) / float64(time.Millisecond)
}

// Pause stops accumulating time. Pausing a paused stopwatch does nothing.
func (sw *StopWatch) Pause() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.running {
		return
	}
	sw.elapsed += sw.clock.Since(sw.started)
	sw.running = false
}

// Resume starts accumulating time again.
func (sw *StopWatch) Resume() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return
	}
	sw.started = sw.clock.Now()
	sw.running = true
}

// Reset sets the elapsed time to zero, keeping the stopwatch running or paused.
func (sw *StopWatch) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.elapsed = 0
	if sw.running {
		sw.started = sw.clock.Now()
	}
}
