// Package simmotor implements a motor whose angle is advanced by the simulation clock.
package simmotor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/edaniels/golog"

	"go.viam.com/fieldsim/components/motor"
	"go.viam.com/fieldsim/components/port"
	"go.viam.com/fieldsim/events"
)

var (
	_ motor.Motor   = &Motor{}
	_ motor.Updater = &Motor{}
)

// A Motor is a simulated motor attached to one port of a hub.
type Motor struct {
	port   port.Port
	table  *port.Table
	bus    *events.Bus
	logger golog.Logger

	mu         sync.Mutex
	rand       *rand.Rand
	control    motor.Control
	maxVoltage float64
	mode       motor.Mode
	speed      float64
	timeLeft   float64
	rotation   float64 // remaining rotation in RunAngle, target angle in TrackTarget
	angle      float64
	delta      float64
	closed     bool
}

// New attaches a new idle motor to p. It fails with a *port.PortError if p does not exist or is
// already occupied.
func New(table *port.Table, bus *events.Bus, p port.Port, logger golog.Logger) (*Motor, error) {
	m := &Motor{
		port:       p,
		table:      table,
		bus:        bus,
		logger:     logger,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
		control:    motor.DefaultControl(),
		maxVoltage: motor.DefaultMaxVoltage,
	}
	if err := table.Attach(m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetRandSource replaces the source of the duty cycle jitter.
func (m *Motor) SetRandSource(r *rand.Rand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rand = r
}

// Port returns the port the motor is attached to.
func (m *Motor) Port() port.Port {
	return m.port
}

// Kind always returns port.KindMotor.
func (m *Motor) Kind() port.DeviceKind {
	return port.KindMotor
}

func (m *Motor) event() events.Key {
	return events.MotorDone(int(m.port))
}

// setMode must be called with mu held.
func (m *Motor) setMode(mode motor.Mode, speed float64) {
	if mode != m.mode {
		m.logger.Debugw("motor mode change", "port", m.port.String(), "from", m.mode.String(), "to", mode.String(), "speed", speed)
	}
	m.mode = mode
	m.speed = speed
}

// Run turns the motor at speed until another command is given.
func (m *Motor) Run(speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setMode(motor.ModeRun, speed)
}

// DutyCycle runs the motor open loop. The resulting speed is not exact and varies from tick to
// tick by up to ten percent.
func (m *Motor) DutyCycle(duty float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setMode(motor.ModeDutyCycle, DutyCycleSpeed(duty))
}

// DutyCycleSpeed returns the nominal speed, in deg/s, of a motor driven at duty percent.
func DutyCycleSpeed(duty float64) float64 {
	return math.Pow(math.Abs(duty)/100, 0.375) * duty * 10
}

func (m *Motor) runTime(speed, timeMS float64) {
	m.setMode(motor.ModeRunTime, speed)
	m.timeLeft = math.Max(timeMS, 0)
}

// RunTime turns the motor at speed for timeMS milliseconds.
func (m *Motor) RunTime(ctx context.Context, speed, timeMS float64, wait bool) error {
	if wait {
		return m.StartRunTime(speed, timeMS).Wait(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runTime(speed, timeMS)
	return nil
}

// StartRunTime is RunTime returning a waiter for its completion.
func (m *Motor) StartRunTime(speed, timeMS float64) *events.Waiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runTime(speed, timeMS)
	return m.bus.Register(m.event())
}

func (m *Motor) runAngle(speed, angle float64) {
	m.setMode(motor.ModeRunAngle, math.Abs(speed))
	m.rotation = angle
}

// RunAngle rotates the motor by angle degrees at the magnitude of speed.
func (m *Motor) RunAngle(ctx context.Context, speed, angle float64, wait bool) error {
	if wait {
		return m.StartRunAngle(speed, angle).Wait(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runAngle(speed, angle)
	return nil
}

// StartRunAngle is RunAngle returning a waiter for its completion.
func (m *Motor) StartRunAngle(speed, angle float64) *events.Waiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runAngle(speed, angle)
	return m.bus.Register(m.event())
}

// RunTarget rotates the motor to the absolute angle target.
func (m *Motor) RunTarget(ctx context.Context, speed, target float64, wait bool) error {
	if wait {
		return m.StartRunTarget(speed, target).Wait(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runAngle(speed, target-m.angle)
	return nil
}

// StartRunTarget is RunTarget returning a waiter for its completion.
func (m *Motor) StartRunTarget(speed, target float64) *events.Waiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runAngle(speed, target-m.angle)
	return m.bus.Register(m.event())
}

// RunUntilStalled returns the current angle without moving, since a simulated motor never stalls.
func (m *Motor) RunUntilStalled(ctx context.Context, speed float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.Angle(), nil
}

// TrackTarget follows target at the control speed limit.
func (m *Motor) TrackTarget(target float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setMode(motor.ModeTrackTarget, m.control.Limits.Speed)
	m.rotation = target
}

// Stop makes the motor idle, firing its completion event if it was running.
func (m *Motor) Stop() {
	m.idle()
}

// Brake is the same as Stop in simulation.
func (m *Motor) Brake() {
	m.idle()
}

// Hold is the same as Stop in simulation.
func (m *Motor) Hold() {
	m.idle()
}

func (m *Motor) idle() {
	m.mu.Lock()
	wasActive := m.mode != motor.ModeIdle
	m.setMode(motor.ModeIdle, 0)
	var w *events.Waiter
	if wasActive {
		w = m.bus.Take(m.event())
	}
	m.mu.Unlock()

	if wasActive {
		m.bus.Release(m.event(), w)
	}
}

// ResetAngle sets the accumulated angle.
func (m *Motor) ResetAngle(angle float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.angle = angle
}

// Angle returns the accumulated angle in degrees.
func (m *Motor) Angle() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.angle
}

// Delta returns the change in angle of the most recent tick.
func (m *Motor) Delta() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delta
}

// Speed returns the commanded speed in deg/s, or 0 when idle.
func (m *Motor) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode {
	case motor.ModeIdle:
		return 0
	case motor.ModeRunAngle:
		return math.Copysign(m.speed, m.rotation)
	case motor.ModeTrackTarget:
		if m.rotation == m.angle {
			return 0
		}
		return math.Copysign(m.speed, m.rotation-m.angle)
	default:
		return m.speed
	}
}

// Load always returns 0.
func (m *Motor) Load() float64 {
	return 0
}

// Stalled always returns false.
func (m *Motor) Stalled() bool {
	return false
}

// Done reports whether the motor is idle.
func (m *Motor) Done() bool {
	return m.Mode() == motor.ModeIdle
}

// Mode returns the current run mode.
func (m *Motor) Mode() motor.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Control returns the controller configuration.
func (m *Motor) Control() motor.Control {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.control
}

// SetControl replaces the controller configuration. The new speed limit applies from the next tick.
func (m *Motor) SetControl(ctrl motor.Control) error {
	if err := ctrl.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.control = ctrl
	if m.mode == motor.ModeTrackTarget {
		m.speed = ctrl.Limits.Speed
	}
	return nil
}

// MaxVoltage returns the voltage setting in mV.
func (m *Motor) MaxVoltage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxVoltage
}

// SetMaxVoltage stores the voltage setting in mV.
func (m *Motor) SetMaxVoltage(mv float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxVoltage = mv
}

// Close stops the motor and frees its port.
func (m *Motor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.idle()
	m.table.Detach(m)
	return nil
}

// Update advances the motor by dtMS milliseconds and returns the change in angle.
func (m *Motor) Update(dtMS float64) float64 {
	m.mu.Lock()
	delta, finished := m.step(dtMS)
	m.angle += delta
	m.delta = delta
	var w *events.Waiter
	if finished {
		m.setMode(motor.ModeIdle, 0)
		w = m.bus.Take(m.event())
	}
	m.mu.Unlock()

	if finished {
		m.bus.Release(m.event(), w)
	}
	return delta
}

// step must be called with mu held.
func (m *Motor) step(dtMS float64) (float64, bool) {
	switch m.mode {
	case motor.ModeRun:
		return m.speed * dtMS / 1000, false

	case motor.ModeDutyCycle:
		return m.speed * dtMS * (0.9 + m.rand.Float64()/5) / 1000, false

	case motor.ModeRunTime:
		if dtMS < m.timeLeft {
			m.timeLeft -= dtMS
			return m.speed * dtMS / 1000, false
		}
		delta := m.speed * m.timeLeft / 1000
		m.timeLeft = 0
		return delta, true

	case motor.ModeRunAngle:
		stepSize := m.speed * dtMS / 1000
		var delta float64
		if math.Abs(m.rotation) > stepSize {
			delta = math.Copysign(stepSize, m.rotation)
			m.rotation -= delta
		} else {
			delta = m.rotation
			m.rotation = 0
		}
		return delta, m.rotation == 0

	case motor.ModeTrackTarget:
		stepSize := m.control.Limits.Speed * dtMS / 1000
		remaining := m.rotation - m.angle
		if math.Abs(remaining) <= stepSize {
			return remaining, false
		}
		return math.Copysign(stepSize, remaining), false

	default:
		return 0, false
	}
}
