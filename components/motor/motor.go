// Package motor defines the simulated hub motors: the run modes they can be in, their control
// settings and the operations a script may issue to them.
package motor

import (
	"context"
	"fmt"

	"go.viam.com/fieldsim/components/port"
	"go.viam.com/fieldsim/events"
)

// Mode is the run mode of a motor. A motor is in exactly one mode at a time.
type Mode int

// The motor run modes.
const (
	ModeIdle Mode = iota
	ModeRun
	ModeDutyCycle
	ModeRunTime
	ModeRunAngle
	ModeTrackTarget
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRun:
		return "run"
	case ModeDutyCycle:
		return "duty_cycle"
	case ModeRunTime:
		return "run_time"
	case ModeRunAngle:
		return "run_angle"
	case ModeTrackTarget:
		return "track_target"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// A Motor is a powered actuator with a rotation sensor attached to one hub port. Speeds are in
// degrees per second, angles in degrees and times in milliseconds.
//
// The blocking operations take a wait flag. When it is set they return once the maneuver
// completes or ctx is done. The Start variants issue the same command and return a waiter
// instead; the waiter is registered together with the command so no completion is missed.
type Motor interface {
	port.Device

	// Run turns the motor at a constant speed until another command is given.
	Run(speed float64)
	// DutyCycle runs the motor open loop at the given duty, in percent.
	DutyCycle(duty float64)

	RunTime(ctx context.Context, speed, timeMS float64, wait bool) error
	StartRunTime(speed, timeMS float64) *events.Waiter

	// RunAngle rotates by angle degrees, relative to the current angle, at the magnitude of speed.
	RunAngle(ctx context.Context, speed, angle float64, wait bool) error
	StartRunAngle(speed, angle float64) *events.Waiter

	// RunTarget rotates to the absolute target angle.
	RunTarget(ctx context.Context, speed, target float64, wait bool) error
	StartRunTarget(speed, target float64) *events.Waiter

	// RunUntilStalled returns the current angle. Simulated motors never stall.
	RunUntilStalled(ctx context.Context, speed float64) (float64, error)

	// TrackTarget follows target at the control speed limit. It never completes.
	TrackTarget(target float64)

	Stop()
	Brake()
	Hold()

	ResetAngle(angle float64)
	Angle() float64
	Speed() float64
	Load() float64
	Stalled() bool
	Done() bool
	Mode() Mode

	Control() Control
	SetControl(ctrl Control) error
	MaxVoltage() float64
	SetMaxVoltage(mv float64)

	// Close frees the motor's port.
	Close() error
}

// An Updater advances a device by one simulation tick.
type Updater interface {
	// Update advances the device by dtMS milliseconds and returns the change in angle, in degrees.
	Update(dtMS float64) float64
}
