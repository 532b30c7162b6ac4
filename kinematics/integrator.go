// Package kinematics turns the per-tick wheel rotation of a differential drive robot into a new
// field pose.
package kinematics

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/fieldsim/spatialmath"
	"go.viam.com/fieldsim/utils"
)

const (
	// DefaultSlip scales wheel rotation to emulate the slip of a real robot.
	DefaultSlip = 0.9825
	// DefaultStraightEpsilon is the relative difference below which two wheel deltas count as equal.
	DefaultStraightEpsilon = 1e-9
)

// Config describes the drive geometry of a robot.
type Config struct {
	WheelDiameterMM float64 `json:"wheel_diameter_mm"`
	AxleTrackMM     float64 `json:"axle_track_mm"`
	Slip            float64 `json:"slip"`
	// StraightEpsilon routes wheel deltas whose relative difference is at most this value to the
	// straight line case. Zero only treats exactly equal deltas as straight.
	StraightEpsilon float64 `json:"straight_epsilon"`
}

// DefaultConfig returns the geometry of the standard robot.
func DefaultConfig() Config {
	return Config{
		WheelDiameterMM: 56,
		AxleTrackMM:     112,
		Slip:            DefaultSlip,
		StraightEpsilon: DefaultStraightEpsilon,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if cfg.WheelDiameterMM <= 0 {
		return errors.Errorf("wheel diameter must be positive, got %v", cfg.WheelDiameterMM)
	}
	if cfg.AxleTrackMM <= 0 {
		return errors.Errorf("axle track must be positive, got %v", cfg.AxleTrackMM)
	}
	if cfg.Slip <= 0 || cfg.Slip > 1 {
		return errors.Errorf("slip must be in (0, 1], got %v", cfg.Slip)
	}
	if cfg.StraightEpsilon < 0 {
		return errors.Errorf("straight epsilon can not be negative, got %v", cfg.StraightEpsilon)
	}
	return nil
}

// GeometryInstabilityError is returned when the arc computation does not produce a finite pose.
type GeometryInstabilityError struct {
	DeltaLeft  float64
	DeltaRight float64
	From       spatialmath.Pose
}

func (e *GeometryInstabilityError) Error() string {
	return fmt.Sprintf("unstable arc geometry from pose %s with wheel deltas left=%v right=%v",
		e.From, e.DeltaLeft, e.DeltaRight)
}

// Integrator folds wheel deltas into poses. It holds no pose of its own.
type Integrator struct {
	cfg Config
}

// NewIntegrator returns an integrator for the given geometry.
func NewIntegrator(cfg Config) (*Integrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Integrator{cfg: cfg}, nil
}

// Config returns the geometry the integrator was built with.
func (k *Integrator) Config() Config {
	return k.cfg
}

// Travel converts a wheel rotation in degrees into the distance, in inches, that wheel moves
// along the ground after slip.
func (k *Integrator) Travel(deltaDeg float64) float64 {
	return deltaDeg * k.cfg.Slip * k.cfg.WheelDiameterMM * math.Pi / (utils.MMPerInch * 360)
}

// Step returns the pose reached from pose when the left and right wheels turn by deltaL and
// deltaR degrees. On a *GeometryInstabilityError the returned pose is the starting one.
func (k *Integrator) Step(pose spatialmath.Pose, deltaL, deltaR float64) (spatialmath.Pose, error) {
	left := k.Travel(deltaL)
	right := k.Travel(deltaR)
	track := utils.MMToInches(k.cfg.AxleTrackMM)

	var next spatialmath.Pose
	switch {
	case left == right || k.nearlyEqual(left, right):
		d := (left + right) / 2
		heading := pose.Heading()
		next = spatialmath.NewPose(pose.X+d*heading.X, pose.Y+d*heading.Y, pose.Theta)
	case math.Abs(left) < math.Abs(right):
		// right wheel on the outside, turning counterclockwise
		next = arc(pose, left/right, right, track, 1)
	default:
		next = arc(pose, right/left, left, track, -1)
	}

	if !next.IsFinite() {
		return pose, &GeometryInstabilityError{DeltaLeft: deltaL, DeltaRight: deltaR, From: pose}
	}
	return next, nil
}

func (k *Integrator) nearlyEqual(left, right float64) bool {
	if k.cfg.StraightEpsilon == 0 {
		return false
	}
	return math.Abs(left-right) <= k.cfg.StraightEpsilon*math.Max(math.Abs(left), math.Abs(right))
}

// arc moves pose along the circle followed when the outer wheel travels outer inches and the
// inner wheel ratio times that. dir is 1 when the circle's center is to the left of the robot.
func arc(pose spatialmath.Pose, ratio, outer, track, dir float64) spatialmath.Pose {
	outerDiameter := 2 * track / (1 - ratio)
	swept := dir * 360 * outer / (outerDiameter * math.Pi)
	robotDiameter := outerDiameter - track

	toCenter := spatialmath.NewPose(0, 0, pose.Theta+dir*90).Heading().Mul(robotDiameter / 2)
	center := pose.Point().Add(toCenter)
	rel := pose.Point().Sub(center)
	rotated := spatialmath.NewPose(0, 0, swept).Rotate(rel).Add(center)

	return spatialmath.NewPose(rotated.X, rotated.Y, pose.Theta+swept)
}
