package motor

import (
	"github.com/pkg/errors"
)

// DefaultMaxVoltage is the motor voltage setting, in mV, a new motor starts with.
const DefaultMaxVoltage = 9000

// Limits are the motion limits of a motor controller.
type Limits struct {
	Speed        float64 `json:"speed"`
	Acceleration float64 `json:"acceleration"`
	Torque       float64 `json:"torque"`
}

// PID holds the position and speed control constants.
type PID struct {
	Kp               float64 `json:"kp"`
	Ki               float64 `json:"ki"`
	Kd               float64 `json:"kd"`
	IntegralDeadzone float64 `json:"integral_deadzone"`
	IntegralRate     float64 `json:"integral_rate"`
}

// Tolerances say when a maneuver counts as done or stalled.
type Tolerances struct {
	Speed    float64 `json:"speed"`
	Position float64 `json:"position,omitempty"`
	TimeMS   float64 `json:"time_ms,omitempty"`
}

// Control is the stored controller configuration of a motor. Only Limits.Speed influences the
// simulation, as the step size of TrackTarget.
type Control struct {
	Limits           Limits     `json:"limits"`
	PID              PID        `json:"pid"`
	TargetTolerances Tolerances `json:"target_tolerances"`
	StallTolerances  Tolerances `json:"stall_tolerances"`
}

// DefaultControl returns the controller configuration of a new motor.
func DefaultControl() Control {
	return Control{
		Limits: Limits{Speed: 1000, Acceleration: 2000, Torque: 199},
		PID: PID{
			Kp:               15117,
			Ki:               7558,
			Kd:               1889,
			IntegralDeadzone: 8,
			IntegralRate:     15,
		},
		TargetTolerances: Tolerances{Speed: 50, Position: 11},
		StallTolerances:  Tolerances{Speed: 20, TimeMS: 200},
	}
}

// Validate ensures the limits are usable.
func (c Control) Validate() error {
	if c.Limits.Speed <= 0 {
		return NewInvalidLimitError("speed", c.Limits.Speed)
	}
	if c.Limits.Acceleration <= 0 {
		return NewInvalidLimitError("acceleration", c.Limits.Acceleration)
	}
	if c.Limits.Torque <= 0 {
		return NewInvalidLimitError("torque", c.Limits.Torque)
	}
	return nil
}

// NewInvalidLimitError returns an error for a control limit that is not positive.
func NewInvalidLimitError(name string, value float64) error {
	return errors.Errorf("motor %s limit must be positive, got %v", name, value)
}
