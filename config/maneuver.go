package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/fieldsim/components/port"
)

// ManeuverType names a scripted command.
type ManeuverType string

// The known maneuvers.
const (
	ManeuverRun         = ManeuverType("run")
	ManeuverDutyCycle   = ManeuverType("dc")
	ManeuverRunTime     = ManeuverType("run_time")
	ManeuverRunAngle    = ManeuverType("run_angle")
	ManeuverRunTarget   = ManeuverType("run_target")
	ManeuverTrackTarget = ManeuverType("track_target")
	ManeuverMotorStop   = ManeuverType("motor_stop")
	ManeuverResetAngle  = ManeuverType("reset_angle")
	ManeuverStraight    = ManeuverType("straight")
	ManeuverTurn        = ManeuverType("turn")
	ManeuverCurve       = ManeuverType("curve")
	ManeuverDrive       = ManeuverType("drive")
	ManeuverStop        = ManeuverType("stop")
	ManeuverSettings    = ManeuverType("settings")
	ManeuverWait        = ManeuverType("wait")
	ManeuverReset       = ManeuverType("reset")
)

// IsMotor reports whether t commands a single motor.
func (t ManeuverType) IsMotor() bool {
	switch t {
	case ManeuverRun, ManeuverDutyCycle, ManeuverRunTime, ManeuverRunAngle, ManeuverRunTarget,
		ManeuverTrackTarget, ManeuverMotorStop, ManeuverResetAngle:
		return true
	default:
		return false
	}
}

// IsDriveBase reports whether t commands the drive base.
func (t ManeuverType) IsDriveBase() bool {
	switch t {
	case ManeuverStraight, ManeuverTurn, ManeuverCurve, ManeuverDrive, ManeuverStop:
		return true
	default:
		return false
	}
}

// A Maneuver is one scripted command with its arguments.
type Maneuver struct {
	Type ManeuverType           `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// MotorArgs are the arguments of a motor maneuver.
type MotorArgs struct {
	Port   string  `json:"port"`
	Speed  float64 `json:"speed"`
	TimeMS float64 `json:"time_ms"`
	Angle  float64 `json:"angle"`
	Target float64 `json:"target"`
	Duty   float64 `json:"duty"`
	Wait   *bool   `json:"wait"`
}

// ShouldWait reports whether the script blocks until the maneuver completes. It does by default.
func (a MotorArgs) ShouldWait() bool {
	return a.Wait == nil || *a.Wait
}

// DriveArgs are the arguments of a drive base maneuver.
type DriveArgs struct {
	DistanceMM float64 `json:"distance_mm"`
	Angle      float64 `json:"angle"`
	RadiusMM   float64 `json:"radius_mm"`
	Speed      float64 `json:"speed"`
	TurnRate   float64 `json:"turn_rate"`
	Wait       *bool   `json:"wait"`
}

// ShouldWait reports whether the script blocks until the maneuver completes. It does by default.
func (a DriveArgs) ShouldWait() bool {
	return a.Wait == nil || *a.Wait
}

// WaitArgs are the arguments of a pause in the script.
type WaitArgs struct {
	TimeMS float64 `json:"time_ms"`
}

// Decode decodes the arguments into out, rejecting unknown keys.
func (m *Maneuver) Decode(out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "error creating decoder")
	}
	return errors.Wrapf(decoder.Decode(m.Args), "bad arguments for %s", m.Type)
}

// MotorArgs decodes the arguments of a motor maneuver.
func (m *Maneuver) MotorArgs() (MotorArgs, error) {
	var args MotorArgs
	err := m.Decode(&args)
	return args, err
}

// DriveArgs decodes the arguments of a drive base maneuver.
func (m *Maneuver) DriveArgs() (DriveArgs, error) {
	var args DriveArgs
	err := m.Decode(&args)
	return args, err
}

// WaitArgs decodes the arguments of a wait.
func (m *Maneuver) WaitArgs() (WaitArgs, error) {
	var args WaitArgs
	err := m.Decode(&args)
	return args, err
}

// SettingsArgs decodes the arguments of a drive base settings change.
func (m *Maneuver) SettingsArgs() (DriveBase, error) {
	var args DriveBase
	err := m.Decode(&args)
	return args, err
}

// Validate ensures all parts of the config are valid.
func (m *Maneuver) Validate(path string) error {
	if m.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	switch {
	case m.Type.IsMotor():
		args, err := m.MotorArgs()
		if err != nil {
			return utils.NewConfigValidationError(path, err)
		}
		if args.Port == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "args.port")
		}
		if _, err := port.Parse(args.Port); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
		if args.TimeMS < 0 {
			return utils.NewConfigValidationError(path, errors.New("time_ms can not be negative"))
		}
	case m.Type.IsDriveBase():
		if _, err := m.DriveArgs(); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	case m.Type == ManeuverWait:
		args, err := m.WaitArgs()
		if err != nil {
			return utils.NewConfigValidationError(path, err)
		}
		if args.TimeMS < 0 {
			return utils.NewConfigValidationError(path, errors.New("time_ms can not be negative"))
		}
	case m.Type == ManeuverSettings:
		args, err := m.SettingsArgs()
		if err != nil {
			return utils.NewConfigValidationError(path, err)
		}
		return args.Validate(path + ".args")
	case m.Type == ManeuverReset:
		if len(m.Args) != 0 {
			return utils.NewConfigValidationError(path, errors.New("reset takes no arguments"))
		}
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown maneuver type %q", m.Type))
	}
	return nil
}
