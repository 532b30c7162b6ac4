// Package simulation ties the devices, kinematics and collision detection together and advances
// them one frame at a time.
package simulation

import (
	"fmt"
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/fieldsim/collision"
	"go.viam.com/fieldsim/components/base/drivebase"
	"go.viam.com/fieldsim/components/hub"
	"go.viam.com/fieldsim/components/motor"
	"go.viam.com/fieldsim/components/motor/simmotor"
	"go.viam.com/fieldsim/components/port"
	"go.viam.com/fieldsim/components/sensor"
	"go.viam.com/fieldsim/events"
	"go.viam.com/fieldsim/kinematics"
	"go.viam.com/fieldsim/spatialmath"
	"go.viam.com/fieldsim/timesource"
)

// DefaultStart is the start pose used when a robot does not declare one.
var DefaultStart = spatialmath.NewPose(15.5, 8.5, 45)

// Robot describes the simulated robot. Start, LeftPort, RightPort and Kinematics take effect at the
// next reset; Geometry takes effect immediately.
type Robot struct {
	Start      spatialmath.Pose
	LeftPort   port.Port
	RightPort  port.Port
	Kinematics kinematics.Config
	// Geometry is the robot's collision volume in the robot frame. Nil disables collisions.
	Geometry spatialmath.Geometry
}

// DefaultRobot returns the standard robot: wheels on A and B, 56 mm wheels on a 112 mm track.
func DefaultRobot() Robot {
	return Robot{
		Start:      DefaultStart,
		LeftPort:   port.A,
		RightPort:  port.B,
		Kinematics: kinematics.DefaultConfig(),
	}
}

// Validate ensures all parts of the robot are valid.
func (r *Robot) Validate() error {
	if !r.LeftPort.Valid() {
		return &port.PortError{Kind: port.InvalidPort, Port: r.LeftPort}
	}
	if !r.RightPort.Valid() {
		return &port.PortError{Kind: port.InvalidPort, Port: r.RightPort}
	}
	if r.LeftPort == r.RightPort {
		return errors.Errorf("left and right wheels can not share port %s", r.LeftPort)
	}
	if !r.Start.IsFinite() {
		return errors.Errorf("start pose %s is not finite", r.Start)
	}
	return errors.Wrap(r.Kinematics.Validate(), "invalid kinematics")
}

// Options configure a new Simulation.
type Options struct {
	Robot Robot
	Field collision.Field
	// Clock drives the time source. Nil selects the wall clock.
	Clock clock.Clock
	// Intersector overrides the collision primitive. Nil selects the separating axis test.
	Intersector collision.Intersector
}

// Simulation owns every simulated device and the robot's pose. Step may be called from a frame
// loop while script goroutines issue commands to the devices concurrently.
type Simulation struct {
	logger  golog.Logger
	time    *timesource.Source
	table   *port.Table
	bus     *events.Bus
	imu     *hub.IMU
	monitor *TickMonitor
	paused  atomic.Bool

	// mu serialises ticks, resets and device registration.
	mu         sync.Mutex
	runID      uuid.UUID
	robot      Robot
	integrator *kinematics.Integrator
	detector   *collision.Detector
	driveBases []*drivebase.DriveBase

	listenersMu  sync.Mutex
	listeners    []listenerEntry
	nextListener int
}

// New returns a simulation with no devices and the robot placed at its start pose.
func New(opts Options, logger golog.Logger) (*Simulation, error) {
	if err := opts.Robot.Validate(); err != nil {
		return nil, err
	}
	integrator, err := kinematics.NewIntegrator(opts.Robot.Kinematics)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		logger:     logger,
		time:       timesource.New(opts.Clock),
		table:      port.NewTable(),
		bus:        events.NewBus(logger),
		imu:        hub.NewIMU(opts.Robot.Start.Theta),
		monitor:    NewTickMonitor(DefaultMonitorWindow),
		runID:      uuid.New(),
		robot:      opts.Robot,
		integrator: integrator,
		detector:   collision.NewDetector(opts.Intersector, logger),
	}
	s.detector.SetRobot(opts.Robot.Geometry)
	s.detector.SetField(opts.Field)
	s.detector.Place(opts.Robot.Start)
	return s, nil
}

// RunID identifies the current script run. It changes on every hard reset.
func (s *Simulation) RunID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

func (s *Simulation) runLogger() golog.Logger {
	return s.logger.With("run", s.runID.String())
}

// Bus returns the completion channel shared by all devices.
func (s *Simulation) Bus() *events.Bus {
	return s.bus
}

// Ports returns the port table.
func (s *Simulation) Ports() *port.Table {
	return s.table
}

// IMU returns the hub's inertial unit.
func (s *Simulation) IMU() *hub.IMU {
	return s.imu
}

// Clock returns the clock the simulation measures time with.
func (s *Simulation) Clock() clock.Clock {
	return s.time.Clock()
}

// Monitor returns the frame statistics.
func (s *Simulation) Monitor() *TickMonitor {
	return s.monitor
}

// Pose returns the robot's committed pose.
func (s *Simulation) Pose() spatialmath.Pose {
	return s.detector.Pose()
}

// CollisionState returns the robot's current contacts.
func (s *Simulation) CollisionState() collision.State {
	return s.detector.State()
}

// Robot returns the robot description.
func (s *Simulation) Robot() Robot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.robot
}

// SetRobot replaces the robot description. The geometry is swapped right away, which ends every
// active contact; the rest applies at the next reset.
func (s *Simulation) SetRobot(robot Robot) error {
	if err := robot.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.robot = robot
	notes := s.detector.SetRobot(robot.Geometry)
	pose := s.detector.Pose()
	s.mu.Unlock()

	s.notifyCollisions(notes, pose)
	return nil
}

// SetField replaces the field obstacles, ending every active contact.
func (s *Simulation) SetField(field collision.Field) {
	s.mu.Lock()
	notes := s.detector.SetField(field)
	pose := s.detector.Pose()
	s.mu.Unlock()

	s.notifyCollisions(notes, pose)
}

// NewMotor creates a motor on p.
func (s *Simulation) NewMotor(p port.Port) (*simmotor.Motor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return simmotor.New(s.table, s.bus, p, s.runLogger())
}

// NewColorSensor creates a colour sensor on p.
func (s *Simulation) NewColorSensor(p port.Port) (*sensor.ColorSensor, error) {
	return sensor.NewColorSensor(s.table, p)
}

// NewForceSensor creates a force sensor on p.
func (s *Simulation) NewForceSensor(p port.Port) (*sensor.ForceSensor, error) {
	return sensor.NewForceSensor(s.table, p)
}

// NewUltrasonicSensor creates an ultrasonic sensor on p.
func (s *Simulation) NewUltrasonicSensor(p port.Port) (*sensor.UltrasonicSensor, error) {
	return sensor.NewUltrasonicSensor(s.table, p)
}

// NewDriveBase creates a drive base over two motors. Its gyro assist reads the hub IMU.
func (s *Simulation) NewDriveBase(left, right motor.Motor, cfg drivebase.Config) (*drivebase.DriveBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := drivebase.New(len(s.driveBases), left, right, cfg, s.bus, s.imu, s.runLogger())
	if err != nil {
		return nil, err
	}
	s.driveBases = append(s.driveBases, db)
	return db, nil
}

// DriveBases returns the drive bases in creation order.
func (s *Simulation) DriveBases() []*drivebase.DriveBase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*drivebase.DriveBase(nil), s.driveBases...)
}

// Paused reports whether ticks are currently ignored.
func (s *Simulation) Paused() bool {
	return s.paused.Load()
}

// Pause freezes the simulation. Pending waits stay pending.
func (s *Simulation) Pause() {
	if !s.paused.Swap(true) {
		s.logger.Debug("simulation paused")
	}
}

// Resume continues a paused simulation. Time spent paused is not simulated.
func (s *Simulation) Resume() {
	if s.paused.Swap(false) {
		s.time.Reset()
		s.logger.Debug("simulation resumed")
	}
}

// Step advances the simulation by the wall time elapsed since the previous Step. The first step
// after construction, a reset or a pause only records the time.
func (s *Simulation) Step() error {
	if s.paused.Load() {
		s.time.Reset()
		return nil
	}
	dt := s.time.Delta()
	if dt <= 0 {
		return nil
	}
	s.monitor.Observe(dt)
	return s.Advance(dt)
}

// Advance runs one tick of dtMS milliseconds regardless of the clock. Motors move in port order,
// then the robot, then the drive bases; completions of the tick fire once it is over. A tick
// that is not positive does nothing.
func (s *Simulation) Advance(dtMS float64) error {
	if dtMS <= 0 || math.IsNaN(dtMS) {
		return nil
	}
	s.mu.Lock()
	var (
		tickErr error
		notes   []collision.Event
		moved   bool
	)
	s.bus.Batch(func() {
		deltas := make(map[port.Port]float64, port.Count)
		for _, dev := range s.table.Devices() {
			if u, ok := dev.(motor.Updater); ok {
				deltas[dev.Port()] = u.Update(dtMS)
			}
		}

		current := s.detector.Pose()
		candidate, err := s.integrator.Step(current, deltas[s.robot.LeftPort], deltas[s.robot.RightPort])
		if err != nil {
			tickErr = err
		} else {
			moved, notes = s.detector.Move(candidate)
			moved = moved && candidate != current
		}
		s.imu.Sync(s.detector.Pose().Theta)

		for _, db := range s.driveBases {
			left, right := db.Motors()
			db.Update(deltas[left.Port()], deltas[right.Port()])
		}
	})
	pose := s.detector.Pose()
	s.mu.Unlock()

	if tickErr != nil {
		s.logger.Warnw("tick skipped robot motion", "error", tickErr, "pose", pose.String())
		s.notifyError(tickErr)
		return tickErr
	}
	s.notifyCollisions(notes, pose)
	if moved {
		s.notifyPose(pose)
	}
	return nil
}

// Reset restarts the current script run: every device is stopped, motor angles and drive base
// accumulators are zeroed, and anything still waiting is released. Devices are kept.
func (s *Simulation) Reset() {
	s.mu.Lock()
	s.stopDevices()
	for _, dev := range s.table.Devices() {
		if m, ok := dev.(motor.Motor); ok {
			m.ResetAngle(0)
		}
	}
	for _, db := range s.driveBases {
		db.Reset()
	}
	s.bus.FireAll()
	notes, pose := s.restart()
	s.mu.Unlock()

	s.logger.Infow("simulation soft reset", "run", s.RunID().String(), "start", pose.String())
	s.notifyCollisions(notes, pose)
}

// HardReset discards every device, releasing anything waiting on one, and starts a new run.
func (s *Simulation) HardReset() error {
	s.mu.Lock()
	err := s.closeDevices()
	s.bus.FireAll()
	s.runID = uuid.New()
	notes, pose := s.restart()
	s.mu.Unlock()

	s.logger.Infow("simulation hard reset", "run", s.RunID().String(), "start", pose.String())
	s.notifyCollisions(notes, pose)
	return err
}

// Close stops and releases every device.
func (s *Simulation) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeDevices()
	s.bus.FireAll()
	return err
}

// StopAll stops every drive base and motor, firing their completions. The devices stay attached.
func (s *Simulation) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopDevices()
}

// stopDevices must be called with mu held.
func (s *Simulation) stopDevices() {
	for _, db := range s.driveBases {
		db.Stop()
	}
	for _, dev := range s.table.Devices() {
		if m, ok := dev.(motor.Motor); ok {
			m.Stop()
		}
	}
}

// closeDevices must be called with mu held.
func (s *Simulation) closeDevices() error {
	var err error
	for _, db := range s.driveBases {
		db.Stop()
	}
	s.driveBases = nil
	for _, dev := range s.table.Devices() {
		if c, ok := dev.(interface{ Close() error }); ok {
			err = multierr.Append(err, errors.Wrap(c.Close(), fmt.Sprintf("closing %s on port %s", dev.Kind(), dev.Port())))
		}
	}
	s.table.Clear()
	return err
}

// restart must be called with mu held.
func (s *Simulation) restart() ([]collision.Event, spatialmath.Pose) {
	if integrator, err := kinematics.NewIntegrator(s.robot.Kinematics); err == nil {
		s.integrator = integrator
	}
	notes := s.detector.Place(s.robot.Start)
	s.imu.Reset(s.robot.Start.Theta)
	s.time.Reset()
	s.paused.Store(false)
	return notes, s.robot.Start
}

// NewStopWatch returns a running stopwatch on the simulation clock.
func (s *Simulation) NewStopWatch() *StopWatch {
	return NewStopWatch(s.time.Clock())
}
