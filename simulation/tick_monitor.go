package simulation

import (
	"sync"

	"github.com/montanaflynn/stats"
)

// DefaultMonitorWindow is the number of frame deltas kept for statistics, ten seconds at 60 Hz.
const DefaultMonitorWindow = 600

// TickStats summarises recent frame deltas in milliseconds.
type TickStats struct {
	Samples int
	Total   int
	Mean    float64
	StdDev  float64
	Max     float64
	Last    float64
}

// FPS derives the frame rate from the mean delta.
func (s TickStats) FPS() float64 {
	if s.Mean <= 0 {
		return 0
	}
	return 1000 / s.Mean
}

// TickMonitor keeps a sliding window of frame deltas.
type TickMonitor struct {
	mu      sync.Mutex
	window  int
	samples []float64
	total   int
}

// NewTickMonitor returns a monitor keeping the last window deltas.
func NewTickMonitor(window int) *TickMonitor {
	if window <= 0 {
		window = DefaultMonitorWindow
	}
	return &TickMonitor{window: window}
}

// Observe records one frame delta.
func (m *TickMonitor) Observe(dtMS float64) {
	if m == nil || dtMS <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if len(m.samples) == m.window {
		copy(m.samples, m.samples[1:])
		m.samples = m.samples[:m.window-1]
	}
	m.samples = append(m.samples, dtMS)
}

// Snapshot returns statistics over the current window.
func (m *TickMonitor) Snapshot() TickStats {
	if m == nil {
		return TickStats{}
	}
	m.mu.Lock()
	data := stats.Float64Data(append([]float64(nil), m.samples...))
	total := m.total
	m.mu.Unlock()

	out := TickStats{Samples: data.Len(), Total: total}
	if data.Len() == 0 {
		return out
	}
	out.Last = data.Get(data.Len() - 1)
	// errors only come back for empty input
	out.Mean, _ = stats.Mean(data)
	out.StdDev, _ = stats.StandardDeviation(data)
	out.Max, _ = stats.Max(data)
	return out
}

// Reset clears the window.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = nil
	m.total = 0
}
