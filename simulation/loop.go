package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// DefaultFrameRate is the frame loop's default rate in Hz.
const DefaultFrameRate = 60

// A Stepper advances a simulation by one frame.
type Stepper interface {
	Step() error
}

// Loop calls a Stepper once per frame until stopped.
type Loop struct {
	clock    clock.Clock
	interval time.Duration
	stepper  Stepper
	logger   golog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop returns a stopped loop stepping at hz frames per second on c. A non-positive rate
// selects DefaultFrameRate and a nil clock the wall clock.
func NewLoop(c clock.Clock, hz float64, stepper Stepper, logger golog.Logger) *Loop {
	if c == nil {
		c = clock.New()
	}
	if hz <= 0 {
		hz = DefaultFrameRate
	}
	interval := time.Duration(float64(time.Second) / hz)
	if interval <= 0 {
		interval = time.Second / DefaultFrameRate
	}
	return &Loop{clock: c, interval: interval, stepper: stepper, logger: logger}
}

// Interval returns the time between frames.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Start begins stepping in the background until ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return errors.New("frame loop already running")
	}
	ctx, l.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	l.done = done
	ticker := l.clock.Ticker(l.interval)

	goutils.PanicCapturingGo(func() {
		defer close(done)
		defer ticker.Stop()
		for {
			if !goutils.SelectContextOrWaitChan(ctx, ticker.C) {
				return
			}
			if err := l.stepper.Step(); err != nil {
				l.logger.Debugw("frame step failed", "error", err)
			}
		}
	})
	return nil
}

// Stop halts the loop and waits for the in-flight frame to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
