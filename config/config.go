// Package config defines the structures to configure a simulation run.
package config

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/fieldsim/collision"
	"go.viam.com/fieldsim/components/base/drivebase"
	"go.viam.com/fieldsim/components/port"
	"go.viam.com/fieldsim/kinematics"
	"go.viam.com/fieldsim/simulation"
	"go.viam.com/fieldsim/spatialmath"
)

// A Config describes the configuration of a simulation run.
type Config struct {
	Robot      Robot            `json:"robot"`
	Field      Field            `json:"field"`
	Simulation SimulationConfig `json:"simulation"`
	Maneuvers  []Maneuver       `json:"maneuvers,omitempty"`

	Debug bool `json:"-"`

	ConfigFilePath string `json:"-"`
}

// Ensure ensures all parts of the config are valid, filling in defaults.
func (c *Config) Ensure() error {
	if err := c.Robot.Validate("robot"); err != nil {
		return err
	}
	if err := c.Field.Validate("field"); err != nil {
		return err
	}
	if err := c.Simulation.Validate("simulation"); err != nil {
		return err
	}
	for idx := 0; idx < len(c.Maneuvers); idx++ {
		if err := c.Maneuvers[idx].Validate(fmt.Sprintf("%s.%d", "maneuvers", idx)); err != nil {
			return err
		}
	}
	return nil
}

// Options builds the simulation options the config describes.
func (c *Config) Options() (simulation.Options, error) {
	robot, err := c.Robot.SimulationRobot()
	if err != nil {
		return simulation.Options{}, err
	}
	field, err := c.Field.CollisionField()
	if err != nil {
		return simulation.Options{}, err
	}
	return simulation.Options{Robot: robot, Field: field}, nil
}

// Pose is a position on the field in inches with a heading in degrees.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Pose converts p.
func (p Pose) Pose() spatialmath.Pose {
	return spatialmath.NewPose(p.X, p.Y, p.Theta)
}

// A Box is a cuboid in inches, centred at Center and turned by Yaw degrees.
type Box struct {
	Label  string    `json:"label,omitempty"`
	Center r3.Vector `json:"center"`
	Dims   r3.Vector `json:"dims"`
	Yaw    float64   `json:"yaw,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (b *Box) Validate(path string) error {
	if b.Dims.X <= 0 || b.Dims.Y <= 0 || b.Dims.Z <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("dims must be positive, got %v", b.Dims))
	}
	return nil
}

func geometry(label string, boxes []Box) (spatialmath.Geometry, error) {
	parts := make([]spatialmath.Geometry, 0, len(boxes))
	for _, b := range boxes {
		name := b.Label
		if name == "" {
			name = label
		}
		box, err := spatialmath.NewBox(b.Center, b.Yaw, b.Dims, name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, box)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return spatialmath.NewCompound(label, parts...)
}

// Robot describes the simulated robot. Zero values take the defaults of a new script.
type Robot struct {
	StartPosition   *Pose    `json:"start_position,omitempty"`
	LeftWheel       string   `json:"left_wheel,omitempty"`
	RightWheel      string   `json:"right_wheel,omitempty"`
	WheelDiameterMM float64  `json:"wheel_diameter_mm,omitempty"`
	AxleTrackMM     float64  `json:"axle_track_mm,omitempty"`
	Slip            float64  `json:"slip,omitempty"`
	StraightEpsilon *float64 `json:"straight_epsilon,omitempty"`
	Body            []Box    `json:"body,omitempty"`

	DriveBase *DriveBase `json:"drive_base,omitempty"`
}

// Validate ensures all parts of the config are valid, filling in defaults.
func (r *Robot) Validate(path string) error {
	defaults := DefaultHeader()
	if r.StartPosition == nil {
		start := defaults.StartPosition
		r.StartPosition = &start
	}
	if r.LeftWheel == "" {
		r.LeftWheel = defaults.LeftWheel
	}
	if r.RightWheel == "" {
		r.RightWheel = defaults.RightWheel
	}
	if r.WheelDiameterMM == 0 {
		r.WheelDiameterMM = defaults.WheelDiameterMM
	}
	if r.AxleTrackMM == 0 {
		r.AxleTrackMM = defaults.WheelTrackMM
	}
	if r.Slip == 0 {
		r.Slip = kinematics.DefaultSlip
	}

	left, err := port.Parse(r.LeftWheel)
	if err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "left_wheel"))
	}
	right, err := port.Parse(r.RightWheel)
	if err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "right_wheel"))
	}
	if left == right {
		return utils.NewConfigValidationError(path, errors.Errorf("left_wheel and right_wheel are both %s", left))
	}
	kin := r.kinematics()
	if err := kin.Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	for idx := range r.Body {
		if err := r.Body[idx].Validate(fmt.Sprintf("%s.body.%d", path, idx)); err != nil {
			return err
		}
	}
	if r.DriveBase != nil {
		if err := r.DriveBase.Validate(path + ".drive_base"); err != nil {
			return err
		}
	}
	return nil
}

// ApplyHeader overrides the robot with the metadata a script declares.
func (r *Robot) ApplyHeader(h Header) {
	start := h.StartPosition
	r.StartPosition = &start
	r.LeftWheel = h.LeftWheel
	r.RightWheel = h.RightWheel
	r.WheelDiameterMM = h.WheelDiameterMM
	r.AxleTrackMM = h.WheelTrackMM
}

func (r *Robot) kinematics() kinematics.Config {
	cfg := kinematics.Config{
		WheelDiameterMM: r.WheelDiameterMM,
		AxleTrackMM:     r.AxleTrackMM,
		Slip:            r.Slip,
		StraightEpsilon: kinematics.DefaultStraightEpsilon,
	}
	if r.StraightEpsilon != nil {
		cfg.StraightEpsilon = *r.StraightEpsilon
	}
	return cfg
}

// SimulationRobot converts a validated robot config.
func (r *Robot) SimulationRobot() (simulation.Robot, error) {
	left, err := port.Parse(r.LeftWheel)
	if err != nil {
		return simulation.Robot{}, err
	}
	right, err := port.Parse(r.RightWheel)
	if err != nil {
		return simulation.Robot{}, err
	}
	out := simulation.Robot{
		Start:      simulation.DefaultStart,
		LeftPort:   left,
		RightPort:  right,
		Kinematics: r.kinematics(),
	}
	if r.StartPosition != nil {
		out.Start = r.StartPosition.Pose()
	}
	if len(r.Body) > 0 {
		if out.Geometry, err = geometry("robot", r.Body); err != nil {
			return simulation.Robot{}, err
		}
	}
	return out, nil
}

// DriveBaseConfig returns the geometry a drive base over the robot's wheels uses.
func (r *Robot) DriveBaseConfig() drivebase.Config {
	return drivebase.Config{WheelDiameterMM: r.WheelDiameterMM, AxleTrackMM: r.AxleTrackMM}
}

// DriveBase configures the drive base built over the robot's wheels.
type DriveBase struct {
	StraightSpeed        float64 `json:"straight_speed,omitempty"`
	StraightAcceleration float64 `json:"straight_acceleration,omitempty"`
	TurnRate             float64 `json:"turn_rate,omitempty"`
	TurnAcceleration     float64 `json:"turn_acceleration,omitempty"`
	UseGyro              bool    `json:"use_gyro,omitempty"`
	GyroGain             float64 `json:"gyro_gain,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (d *DriveBase) Validate(path string) error {
	for name, v := range map[string]float64{
		"straight_speed":        d.StraightSpeed,
		"straight_acceleration": d.StraightAcceleration,
		"turn_rate":             d.TurnRate,
		"turn_acceleration":     d.TurnAcceleration,
	} {
		if v < 0 {
			return utils.NewConfigValidationError(path, errors.Errorf("%s can not be negative", name))
		}
	}
	if d.GyroGain < 0 {
		return utils.NewConfigValidationError(path, errors.New("gyro_gain can not be negative"))
	}
	return nil
}

// Settings merges the configured values over defaults.
func (d *DriveBase) Settings(defaults drivebase.Settings) drivebase.Settings {
	s := defaults
	if d.StraightSpeed > 0 {
		s.StraightSpeed = d.StraightSpeed
	}
	if d.StraightAcceleration > 0 {
		s.StraightAcceleration = d.StraightAcceleration
	}
	if d.TurnRate > 0 {
		s.TurnRate = d.TurnRate
	}
	if d.TurnAcceleration > 0 {
		s.TurnAcceleration = d.TurnAcceleration
	}
	return s
}

// Field describes the obstacles on the field.
type Field struct {
	Boundary  *Boundary  `json:"boundary,omitempty"`
	Obstacles []Obstacle `json:"obstacles,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (f *Field) Validate(path string) error {
	if f.Boundary != nil {
		if err := f.Boundary.Validate(path + ".boundary"); err != nil {
			return err
		}
	}
	for idx := range f.Obstacles {
		if err := f.Obstacles[idx].Validate(fmt.Sprintf("%s.obstacles.%d", path, idx)); err != nil {
			return err
		}
	}
	return nil
}

// CollisionField converts a validated field config.
func (f *Field) CollisionField() (collision.Field, error) {
	var out collision.Field
	if f.Boundary != nil {
		walls, err := f.Boundary.walls()
		if err != nil {
			return collision.Field{}, err
		}
		out.Obstacles = append(out.Obstacles, walls...)
	}
	for idx, o := range f.Obstacles {
		label := o.Label
		if label == "" {
			label = fmt.Sprintf("obstacle_%d", idx)
		}
		geom, err := geometry(label, o.Boxes)
		if err != nil {
			return collision.Field{}, err
		}
		category, err := parseCategory(o.Category)
		if err != nil {
			return collision.Field{}, err
		}
		out.Obstacles = append(out.Obstacles, collision.Obstacle{Geometry: geom, Pose: o.Pose.Pose(), Category: category})
	}
	return out, nil
}

// Boundary surrounds a Width by Height inch mat, whose corner is the origin, with four walls.
type Boundary struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Thickness  float64 `json:"thickness,omitempty"`
	WallHeight float64 `json:"wall_height,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (b *Boundary) Validate(path string) error {
	if b.Width <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "width")
	}
	if b.Height <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "height")
	}
	if b.Thickness == 0 {
		b.Thickness = 1
	}
	if b.WallHeight == 0 {
		b.WallHeight = 3
	}
	if b.Thickness < 0 || b.WallHeight < 0 {
		return utils.NewConfigValidationError(path, errors.New("thickness and wall_height must be positive"))
	}
	return nil
}

func (b *Boundary) walls() ([]collision.Obstacle, error) {
	t, h := b.Thickness, b.WallHeight
	specs := []struct {
		label string
		x, y  float64
		dims  r3.Vector
	}{
		{"wall_south", b.Width / 2, -t / 2, r3.Vector{X: b.Width + 2*t, Y: t, Z: h}},
		{"wall_north", b.Width / 2, b.Height + t/2, r3.Vector{X: b.Width + 2*t, Y: t, Z: h}},
		{"wall_west", -t / 2, b.Height / 2, r3.Vector{X: t, Y: b.Height, Z: h}},
		{"wall_east", b.Width + t/2, b.Height / 2, r3.Vector{X: t, Y: b.Height, Z: h}},
	}
	out := make([]collision.Obstacle, 0, len(specs))
	for _, s := range specs {
		box, err := spatialmath.NewBox(r3.Vector{Z: h / 2}, 0, s.dims, s.label)
		if err != nil {
			return nil, err
		}
		out = append(out, collision.Obstacle{
			Geometry: box,
			Pose:     spatialmath.NewPose(s.x, s.y, 0),
			Category: collision.CategoryWall,
		})
	}
	return out, nil
}

// Obstacle is one solid on the field.
type Obstacle struct {
	Label    string `json:"label,omitempty"`
	Category string `json:"category"`
	Pose     Pose   `json:"pose"`
	Boxes    []Box  `json:"boxes"`
}

// Validate ensures all parts of the config are valid.
func (o *Obstacle) Validate(path string) error {
	if _, err := parseCategory(o.Category); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if len(o.Boxes) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "boxes")
	}
	for idx := range o.Boxes {
		if err := o.Boxes[idx].Validate(fmt.Sprintf("%s.boxes.%d", path, idx)); err != nil {
			return err
		}
	}
	return nil
}

func parseCategory(name string) (collision.Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "wall":
		return collision.CategoryWall, nil
	case "model", "":
		return collision.CategoryModel, nil
	case "game_piece", "gamepiece":
		return collision.CategoryGamePiece, nil
	default:
		return 0, errors.Errorf("unknown obstacle category %q", name)
	}
}

// SimulationConfig holds the run settings.
type SimulationConfig struct {
	FrameRate float64 `json:"frame_rate,omitempty"`
	// TimeoutMS bounds the simulated time one maneuver may take.
	TimeoutMS float64 `json:"timeout_ms,omitempty"`
	// Seed seeds the duty cycle jitter of every motor. Zero keeps the default source.
	Seed int64 `json:"seed,omitempty"`

	PauseOnWall      bool  `json:"pause_on_wall,omitempty"`
	PauseOnModel     *bool `json:"pause_on_model,omitempty"`
	PauseOnGamePiece bool  `json:"pause_on_game_piece,omitempty"`
}

// DefaultTimeoutMS is the default bound on one maneuver.
const DefaultTimeoutMS = 60000

// Validate ensures all parts of the config are valid, filling in defaults.
func (s *SimulationConfig) Validate(path string) error {
	if s.FrameRate < 0 {
		return utils.NewConfigValidationError(path, errors.New("frame_rate can not be negative"))
	}
	if s.FrameRate == 0 {
		s.FrameRate = simulation.DefaultFrameRate
	}
	if s.TimeoutMS < 0 {
		return utils.NewConfigValidationError(path, errors.New("timeout_ms can not be negative"))
	}
	if s.TimeoutMS == 0 {
		s.TimeoutMS = DefaultTimeoutMS
	}
	if s.PauseOnModel == nil {
		on := true
		s.PauseOnModel = &on
	}
	return nil
}

// PausePolicy builds the auto-pause listener the config asks for.
func (s *SimulationConfig) PausePolicy(p simulation.Pauser) *simulation.PausePolicy {
	policy := simulation.NewPausePolicy(p)
	policy.Wall = s.PauseOnWall
	policy.GamePiece = s.PauseOnGamePiece
	if s.PauseOnModel != nil {
		policy.Model = *s.PauseOnModel
	}
	return policy
}
