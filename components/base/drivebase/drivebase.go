// Package drivebase implements a differential drive base made of two simulated motors. It offers
// straight, turn and curve maneuvers that complete on their own and an open ended drive mode.
//
// Distances are in millimeters, angles in degrees with clockwise positive, speeds in mm/s and
// turn rates in deg/s.
package drivebase

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/fieldsim/components/motor"
	"go.viam.com/fieldsim/events"
	"go.viam.com/fieldsim/utils"
)

// Mode is the maneuver a drive base is performing.
type Mode int

// The drive base modes.
const (
	ModeIdle Mode = iota
	ModeStraight
	ModeTurn
	ModeCurve
	ModeDrive
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeStraight:
		return "straight"
	case ModeTurn:
		return "turn"
	case ModeCurve:
		return "curve"
	case ModeDrive:
		return "drive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Config is the drive geometry.
type Config struct {
	WheelDiameterMM float64 `json:"wheel_diameter_mm"`
	AxleTrackMM     float64 `json:"axle_track_mm"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.WheelDiameterMM <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "wheel_diameter_mm")
	}
	if cfg.AxleTrackMM <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "axle_track_mm")
	}
	return nil
}

// Settings is the motion profile used by the maneuvers.
type Settings struct {
	StraightSpeed        float64 `json:"straight_speed"`
	StraightAcceleration float64 `json:"straight_acceleration"`
	TurnRate             float64 `json:"turn_rate"`
	TurnAcceleration     float64 `json:"turn_acceleration"`
}

// DefaultSettings returns the motion profile of a new drive base.
func DefaultSettings() Settings {
	return Settings{StraightSpeed: 195, StraightAcceleration: 733, TurnRate: 166, TurnAcceleration: 750}
}

// MaxSettings holds the largest accepted value of each setting.
var MaxSettings = Settings{StraightSpeed: 488, StraightAcceleration: 9775, TurnRate: 500, TurnAcceleration: 10000}

// Capped returns s with every value limited to MaxSettings.
func (s Settings) Capped() Settings {
	return Settings{
		StraightSpeed:        math.Min(s.StraightSpeed, MaxSettings.StraightSpeed),
		StraightAcceleration: math.Min(s.StraightAcceleration, MaxSettings.StraightAcceleration),
		TurnRate:             math.Min(s.TurnRate, MaxSettings.TurnRate),
		TurnAcceleration:     math.Min(s.TurnAcceleration, MaxSettings.TurnAcceleration),
	}
}

// State is a snapshot of the drive base odometry. The simulated hub measures no speeds, so
// DriveSpeed and TurnRate are always zero.
type State struct {
	Distance   float64
	DriveSpeed float64
	Angle      float64
	TurnRate   float64
}

// DriveBase drives a robot with two motors. Its odometry advances only through Update.
type DriveBase struct {
	index  int
	left   motor.Motor
	right  motor.Motor
	cfg    Config
	bus    *events.Bus
	gyro   HeadingSource
	logger golog.Logger

	mu        sync.Mutex
	settings  Settings
	useGyro   bool
	corrector GyroCorrector
	mode      Mode
	distance  float64
	angle     float64

	target     float64 // straight distance or turn angle asked for
	remaining  float64 // straight distance or turn angle still to go
	gyroRef    float64
	heading    float64 // curve heading tracked from the start
	curveGoal  float64
	radius     float64
	driveSpeed float64
	turnRate   float64
}

// New returns an idle drive base. index identifies its completion event. gyro may be nil, in
// which case gyro assist has no effect.
func New(
	index int,
	left, right motor.Motor,
	cfg Config,
	bus *events.Bus,
	gyro HeadingSource,
	logger golog.Logger,
) (*DriveBase, error) {
	if left == nil || right == nil {
		return nil, errors.New("drive base needs a left and a right motor")
	}
	if left.Port() == right.Port() {
		return nil, errors.Errorf("drive base motors must be on different ports, both are on %s", left.Port())
	}
	if err := cfg.Validate(fmt.Sprintf("drive_base.%d", index)); err != nil {
		return nil, err
	}
	return &DriveBase{
		index:    index,
		left:     left,
		right:    right,
		cfg:      cfg,
		bus:      bus,
		gyro:     gyro,
		logger:   logger,
		settings: DefaultSettings(),
	}, nil
}

// Index returns the drive base's index.
func (db *DriveBase) Index() int {
	return db.index
}

// Motors returns the left and right motors.
func (db *DriveBase) Motors() (motor.Motor, motor.Motor) {
	return db.left, db.right
}

// Config returns the drive geometry.
func (db *DriveBase) Config() Config {
	return db.cfg
}

func (db *DriveBase) event() events.Key {
	return events.DriveBaseDone(db.index)
}

// start must be called with mu held.
func (db *DriveBase) start(mode Mode) {
	db.logger.Debugw("drive base maneuver", "index", db.index, "from", db.mode.String(), "to", mode.String())
	db.mode = mode
}

// Straight drives distanceMM forward, or backward when negative.
func (db *DriveBase) Straight(ctx context.Context, distanceMM float64, wait bool) error {
	if wait {
		return db.StartStraight(distanceMM).Wait(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.straight(distanceMM)
	return nil
}

// StartStraight is Straight returning a waiter for its completion.
func (db *DriveBase) StartStraight(distanceMM float64) *events.Waiter {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.straight(distanceMM)
	return db.bus.Register(db.event())
}

func (db *DriveBase) straight(distanceMM float64) {
	db.start(ModeStraight)
	db.target = distanceMM
	db.remaining = distanceMM
	if db.gyro != nil {
		db.gyroRef = db.gyro.Heading()
	}
	db.issueStraight()
}

// Turn turns in place by angleDeg, clockwise when positive.
func (db *DriveBase) Turn(ctx context.Context, angleDeg float64, wait bool) error {
	if wait {
		return db.StartTurn(angleDeg).Wait(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.turn(angleDeg)
	return nil
}

// StartTurn is Turn returning a waiter for its completion.
func (db *DriveBase) StartTurn(angleDeg float64) *events.Waiter {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.turn(angleDeg)
	return db.bus.Register(db.event())
}

func (db *DriveBase) turn(angleDeg float64) {
	db.start(ModeTurn)
	db.target = angleDeg
	db.remaining = angleDeg
	db.issueTurn()
}

// Curve drives along a circle of radiusMM until the heading has changed by angleDeg. A negative
// radius drives backward.
func (db *DriveBase) Curve(ctx context.Context, radiusMM, angleDeg float64, wait bool) error {
	if wait {
		return db.StartCurve(radiusMM, angleDeg).Wait(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.curve(radiusMM, angleDeg)
	return nil
}

// StartCurve is Curve returning a waiter for its completion.
func (db *DriveBase) StartCurve(radiusMM, angleDeg float64) *events.Waiter {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.curve(radiusMM, angleDeg)
	return db.bus.Register(db.event())
}

func (db *DriveBase) curve(radiusMM, angleDeg float64) {
	db.start(ModeCurve)
	db.radius = radiusMM
	db.heading = 0
	if radiusMM < 0 {
		db.curveGoal = -angleDeg
	} else {
		db.curveGoal = angleDeg
	}
	db.issueCurve()
}

// Drive runs both motors at the wheel speeds giving speedMMPerSec and turnRate, each limited to
// the current settings. It never completes on its own.
func (db *DriveBase) Drive(speedMMPerSec, turnRate float64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.start(ModeDrive)
	db.driveSpeed = utils.ClampMagnitude(speedMMPerSec, db.settings.StraightSpeed)
	db.turnRate = utils.ClampMagnitude(turnRate, db.settings.TurnRate)

	speed := db.cfg.linearSpeedToWheel(db.driveSpeed)
	turn := db.cfg.turnRateToWheel(db.turnRate)
	db.left.Run(speed + turn)
	db.right.Run(speed - turn)
}

// Stop stops both motors. If a maneuver was running it ends and its completion event fires.
func (db *DriveBase) Stop() {
	db.halt()
}

// Brake is the same as Stop in simulation.
func (db *DriveBase) Brake() {
	db.halt()
}

func (db *DriveBase) halt() {
	db.mu.Lock()
	wasActive := db.mode != ModeIdle
	var w *events.Waiter
	if wasActive {
		db.finish()
		w = db.bus.Take(db.event())
	}
	db.mu.Unlock()

	if wasActive {
		db.bus.Release(db.event(), w)
	}
}

// finish must be called with mu held. The caller fires the completion event.
func (db *DriveBase) finish() {
	db.left.Stop()
	db.right.Stop()
	db.logger.Debugw("drive base maneuver done", "index", db.index, "mode", db.mode.String(),
		"distance", db.distance, "angle", db.angle)
	db.mode = ModeIdle
	db.driveSpeed = 0
	db.turnRate = 0
}

// Close stops both motors and releases their ports.
func (db *DriveBase) Close() error {
	db.Stop()
	return multierr.Combine(db.left.Close(), db.right.Close())
}

// Done reports whether the drive base is idle.
func (db *DriveBase) Done() bool {
	return db.Mode() == ModeIdle
}

// Mode returns the current maneuver.
func (db *DriveBase) Mode() Mode {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.mode
}

// Distance returns the distance driven since the last reset, in mm.
func (db *DriveBase) Distance() float64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.distance
}

// Angle returns the angle turned since the last reset, in degrees.
func (db *DriveBase) Angle() float64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.angle
}

// State returns the odometry.
func (db *DriveBase) State() State {
	db.mu.Lock()
	defer db.mu.Unlock()
	return State{Distance: db.distance, Angle: db.angle}
}

// Reset zeroes the distance and angle.
func (db *DriveBase) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.distance = 0
	db.angle = 0
}

// Stalled always returns false.
func (db *DriveBase) Stalled() bool {
	return false
}

// Settings returns the motion profile.
func (db *DriveBase) Settings() Settings {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.settings
}

// SetSettings replaces the motion profile, capped to MaxSettings, and returns what was stored.
func (db *DriveBase) SetSettings(s Settings) (Settings, error) {
	if s.StraightSpeed <= 0 || s.TurnRate <= 0 {
		return Settings{}, errors.Errorf("drive base speeds must be positive, got %v and %v", s.StraightSpeed, s.TurnRate)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.settings = s.Capped()
	return db.settings, nil
}

// UseGyro turns gyro assist on or off for straight maneuvers.
func (db *DriveBase) UseGyro(use bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.useGyro = use
}

// SetGyroCorrector installs the algorithm used by gyro assist. Nil disables the correction even
// when gyro assist is on.
func (db *DriveBase) SetGyroCorrector(c GyroCorrector) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.corrector = c
}

// Update consumes the wheel rotation of one tick, in degrees, advancing the odometry and the
// running maneuver.
func (db *DriveBase) Update(deltaL, deltaR float64) {
	db.mu.Lock()
	finished := db.update(deltaL, deltaR)
	var w *events.Waiter
	if finished {
		w = db.bus.Take(db.event())
	}
	db.mu.Unlock()

	if finished {
		db.bus.Release(db.event(), w)
	}
}

// update must be called with mu held. It reports whether a maneuver just completed.
func (db *DriveBase) update(deltaL, deltaR float64) bool {
	if db.mode == ModeIdle {
		return false
	}
	moved := db.cfg.distanceMoved(deltaL, deltaR)
	turned := db.cfg.angleTurned(deltaL, deltaR)
	db.distance += moved
	db.angle += turned

	switch db.mode {
	case ModeStraight:
		db.remaining -= moved
		if reached(db.remaining, db.target) {
			db.finish()
			return true
		}
		db.issueStraight()

	case ModeTurn:
		db.remaining -= turned
		if reached(db.remaining, db.target) {
			db.finish()
			return true
		}
		db.issueTurn()

	case ModeCurve:
		db.heading += turned
		if reached(db.curveGoal-db.heading, db.curveGoal) {
			db.finish()
			return true
		}
		db.issueCurve()

	case ModeIdle, ModeDrive:
	}
	return false
}

// issueStraight must be called with mu held.
func (db *DriveBase) issueStraight() {
	speed := db.cfg.linearSpeedToWheel(db.settings.StraightSpeed)
	speedL, speedR := speed, speed
	if db.useGyro && db.corrector != nil && db.gyro != nil {
		speedL, speedR = db.corrector.Correct(db.gyro.Heading()-db.gyroRef, speedL, speedR)
	}
	wheel := db.cfg.straightDistanceToWheel(db.remaining)
	runAngle(db.left, speedL, wheel)
	runAngle(db.right, speedR, wheel)
}

// issueTurn must be called with mu held.
func (db *DriveBase) issueTurn() {
	speed := db.cfg.turnRateToWheel(db.settings.TurnRate)
	wheel := db.cfg.spinMath(db.remaining)
	runAngle(db.left, speed, wheel)
	runAngle(db.right, speed, -wheel)
}

// issueCurve must be called with mu held.
func (db *DriveBase) issueCurve() {
	need := db.curveGoal - db.heading
	travel := 1.0
	if db.radius < 0 {
		travel = -1
	}
	ratio := db.cfg.curveRatio(db.radius)
	speed := db.cfg.linearSpeedToWheel(db.settings.StraightSpeed)
	outer := travel * db.cfg.curveOuterDegrees(need, ratio)
	inner := ratio * outer

	if (travel > 0) == (need > 0) {
		runAngle(db.left, speed, outer)
		runAngle(db.right, speed*ratio, inner)
	} else {
		runAngle(db.left, speed*ratio, inner)
		runAngle(db.right, speed, outer)
	}
}

func runAngle(m motor.Motor, speed, angle float64) {
	//nolint:errcheck
	m.RunAngle(context.Background(), speed, angle, false)
}
