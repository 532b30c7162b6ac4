package simulation

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/fieldsim/collision"
	"go.viam.com/fieldsim/components/base/drivebase"
	"go.viam.com/fieldsim/components/motor"
	"go.viam.com/fieldsim/components/port"
	"go.viam.com/fieldsim/events"
	"go.viam.com/fieldsim/kinematics"
	"go.viam.com/fieldsim/spatialmath"
	"go.viam.com/fieldsim/utils"
)

type recorder struct {
	mu     sync.Mutex
	events []collision.Event
	poses  []spatialmath.Pose
	errs   []error
}

func (r *recorder) CollisionEvent(event collision.Event, _ spatialmath.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) PoseChanged(pose spatialmath.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poses = append(r.poses, pose)
}

func (r *recorder) TickError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) count(event collision.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func originRobot() Robot {
	robot := DefaultRobot()
	robot.Start = spatialmath.NewPose(0, 0, 0)
	return robot
}

func newTestSim(t *testing.T, opts Options) (*Simulation, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	opts.Clock = mock
	if opts.Robot == (Robot{}) {
		opts.Robot = originRobot()
	}
	sim, err := New(opts, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return sim, mock
}

func TestNew(t *testing.T) {
	logger := golog.NewTestLogger(t)

	sim, err := New(Options{Robot: DefaultRobot()}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sim.Pose(), test.ShouldResemble, DefaultStart)
	test.That(t, sim.IMU().Heading(), test.ShouldEqual, 0)
	test.That(t, sim.Paused(), test.ShouldBeFalse)

	robot := DefaultRobot()
	robot.RightPort = port.A
	_, err = New(Options{Robot: robot}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	robot = DefaultRobot()
	robot.LeftPort = port.Port(9)
	_, err = New(Options{Robot: robot}, logger)
	test.That(t, errors.Is(err, port.ErrInvalidPort), test.ShouldBeTrue)

	robot = DefaultRobot()
	robot.Kinematics.WheelDiameterMM = 0
	_, err = New(Options{Robot: robot}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStep(t *testing.T) {
	sim, mock := newTestSim(t, Options{})
	m, err := sim.NewMotor(port.C)
	test.That(t, err, test.ShouldBeNil)
	m.Run(200)

	test.That(t, sim.Step(), test.ShouldBeNil)
	test.That(t, m.Angle(), test.ShouldEqual, 0)

	mock.Add(20 * time.Millisecond)
	test.That(t, sim.Step(), test.ShouldBeNil)
	test.That(t, m.Angle(), test.ShouldAlmostEqual, 4)

	mock.Add(30 * time.Millisecond)
	test.That(t, sim.Step(), test.ShouldBeNil)
	test.That(t, m.Angle(), test.ShouldAlmostEqual, 10)

	snap := sim.Monitor().Snapshot()
	test.That(t, snap.Samples, test.ShouldEqual, 2)
	test.That(t, snap.Mean, test.ShouldAlmostEqual, 25)
	test.That(t, snap.Max, test.ShouldAlmostEqual, 30)

	// port C is not a wheel, so the robot stays put
	test.That(t, sim.Pose(), test.ShouldResemble, spatialmath.NewPose(0, 0, 0))
}

func TestPause(t *testing.T) {
	sim, mock := newTestSim(t, Options{})
	m, err := sim.NewMotor(port.A)
	test.That(t, err, test.ShouldBeNil)
	m.Run(100)
	sim.Step()

	sim.Pause()
	test.That(t, sim.Paused(), test.ShouldBeTrue)
	mock.Add(time.Second)
	test.That(t, sim.Step(), test.ShouldBeNil)
	test.That(t, m.Angle(), test.ShouldEqual, 0)

	sim.Resume()
	mock.Add(time.Second)
	// the first step after resuming only takes the time reference
	sim.Step()
	test.That(t, m.Angle(), test.ShouldEqual, 0)

	mock.Add(100 * time.Millisecond)
	sim.Step()
	test.That(t, m.Angle(), test.ShouldAlmostEqual, 10)
}

func TestStraightMovesRobot(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	rec := &recorder{}
	sim.AddListener(rec)

	left, err := sim.NewMotor(port.A)
	test.That(t, err, test.ShouldBeNil)
	right, err := sim.NewMotor(port.B)
	test.That(t, err, test.ShouldBeNil)
	db, err := sim.NewDriveBase(left, right, drivebase.Config{WheelDiameterMM: 56, AxleTrackMM: 112})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, db.Index(), test.ShouldEqual, 0)

	w := db.StartStraight(400)
	for i := 0; i < 1000 && !w.Resolved(); i++ {
		test.That(t, sim.Advance(20), test.ShouldBeNil)
	}
	test.That(t, w.Resolved(), test.ShouldBeTrue)
	test.That(t, db.Distance(), test.ShouldAlmostEqual, 400, 4)

	pose := sim.Pose()
	test.That(t, pose.Theta, test.ShouldAlmostEqual, 0)
	test.That(t, pose.Y, test.ShouldAlmostEqual, 0)
	test.That(t, pose.X, test.ShouldAlmostEqual, utils.MMToInches(db.Distance()*kinematics.DefaultSlip), 1e-6)
	test.That(t, sim.IMU().Heading(), test.ShouldAlmostEqual, 0)
	test.That(t, len(rec.poses), test.ShouldBeGreaterThan, 0)
	test.That(t, rec.poses[len(rec.poses)-1], test.ShouldResemble, pose)
}

func TestTurnTracksIMU(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	left, _ := sim.NewMotor(port.A)
	right, _ := sim.NewMotor(port.B)
	db, err := sim.NewDriveBase(left, right, drivebase.Config{WheelDiameterMM: 56, AxleTrackMM: 112})
	test.That(t, err, test.ShouldBeNil)

	w := db.StartTurn(90)
	for i := 0; i < 1000 && !w.Resolved(); i++ {
		sim.Advance(20)
	}
	test.That(t, w.Resolved(), test.ShouldBeTrue)
	// a clockwise turn lowers the field heading and raises the gyro heading
	test.That(t, sim.Pose().Theta, test.ShouldBeLessThan, 0)
	test.That(t, sim.IMU().Heading(), test.ShouldAlmostEqual, -sim.Pose().Theta)
}

func wallField(t *testing.T) collision.Field {
	t.Helper()
	wall, err := spatialmath.NewBox(r3.Vector{}, 0, r3.Vector{X: 1, Y: 20, Z: 1}, "wall")
	test.That(t, err, test.ShouldBeNil)
	return collision.Field{Obstacles: []collision.Obstacle{
		{Geometry: wall, Pose: spatialmath.NewPose(10.5, 0, 0), Category: collision.CategoryWall},
	}}
}

func unitRobot(t *testing.T) Robot {
	t.Helper()
	body, err := spatialmath.NewBox(r3.Vector{}, 0, r3.Vector{X: 1, Y: 1, Z: 1}, "robot")
	test.That(t, err, test.ShouldBeNil)
	robot := originRobot()
	robot.Geometry = body
	return robot
}

func TestWallStall(t *testing.T) {
	sim, _ := newTestSim(t, Options{Robot: unitRobot(t), Field: wallField(t)})
	rec := &recorder{}
	sim.AddListener(rec)

	left, _ := sim.NewMotor(port.A)
	right, _ := sim.NewMotor(port.B)
	left.Run(720)
	right.Run(720)

	for i := 0; i < 100; i++ {
		test.That(t, sim.Advance(20), test.ShouldBeNil)
		test.That(t, sim.Pose().X, test.ShouldBeLessThanOrEqualTo, 9.5)
	}
	test.That(t, sim.Pose().X, test.ShouldBeGreaterThan, 9)
	test.That(t, rec.count(collision.WallStart), test.ShouldEqual, 1)
	test.That(t, sim.CollisionState().Wall, test.ShouldBeTrue)

	// backing away ends the contact
	left.Run(-720)
	right.Run(-720)
	sim.Advance(20)
	test.That(t, rec.count(collision.WallEnd), test.ShouldEqual, 1)
	test.That(t, sim.CollisionState().Wall, test.ShouldBeFalse)
}

func TestPausePolicy(t *testing.T) {
	sim, _ := newTestSim(t, Options{Robot: unitRobot(t), Field: wallField(t)})
	policy := NewPausePolicy(sim)
	test.That(t, policy.Model, test.ShouldBeTrue)
	test.That(t, policy.Wall, test.ShouldBeFalse)
	policy.Wall = true
	remove := sim.AddListener(policy)

	left, _ := sim.NewMotor(port.A)
	right, _ := sim.NewMotor(port.B)
	left.Run(720)
	right.Run(720)
	for i := 0; i < 100 && !sim.Paused(); i++ {
		sim.Advance(20)
	}
	test.That(t, sim.Paused(), test.ShouldBeTrue)

	remove()
	sim.Resume()
	sim.Advance(20)
	test.That(t, sim.Paused(), test.ShouldBeFalse)

	policy = &PausePolicy{pauser: sim}
	policy.CollisionEvent(collision.GamePieceStart, spatialmath.Pose{})
	policy.CollisionEvent(collision.WallEnd, spatialmath.Pose{})
	test.That(t, sim.Paused(), test.ShouldBeFalse)
	policy.GamePiece = true
	policy.CollisionEvent(collision.GamePieceStart, spatialmath.Pose{})
	test.That(t, sim.Paused(), test.ShouldBeTrue)
}

func TestFieldReplacementEndsContacts(t *testing.T) {
	robot := unitRobot(t)
	robot.Start = spatialmath.NewPose(10, 0, 0)
	sim, _ := newTestSim(t, Options{Robot: robot, Field: wallField(t)})
	test.That(t, sim.CollisionState().Wall, test.ShouldBeTrue)

	rec := &recorder{}
	sim.AddListener(rec)
	sim.SetField(collision.Field{})
	test.That(t, rec.count(collision.WallEnd), test.ShouldEqual, 1)
	test.That(t, sim.CollisionState(), test.ShouldResemble, collision.State{})
}

func TestInstability(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	rec := &recorder{}
	sim.AddListener(rec)

	left, _ := sim.NewMotor(port.A)
	_, err := sim.NewMotor(port.B)
	test.That(t, err, test.ShouldBeNil)
	left.Run(math.Inf(1))

	err = sim.Advance(20)
	var instability *kinematics.GeometryInstabilityError
	test.That(t, errors.As(err, &instability), test.ShouldBeTrue)
	test.That(t, sim.Pose(), test.ShouldResemble, spatialmath.NewPose(0, 0, 0))
	test.That(t, rec.errs, test.ShouldHaveLength, 1)
}

func TestHardResetReleasesWaiter(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	m, err := sim.NewMotor(port.A)
	test.That(t, err, test.ShouldBeNil)
	runID := sim.RunID()

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.RunTime(context.Background(), 100, 5000, true)
	}()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, sim.Bus().Pending(events.MotorDone(int(port.A))), test.ShouldBeTrue)
	})
	sim.Advance(20)

	test.That(t, sim.HardReset(), test.ShouldBeNil)
	select {
	case err := <-errCh:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter still blocked after hard reset")
	}

	test.That(t, sim.Ports().Devices(), test.ShouldBeEmpty)
	test.That(t, sim.DriveBases(), test.ShouldBeEmpty)
	test.That(t, sim.RunID(), test.ShouldNotEqual, runID)
	test.That(t, m.Mode(), test.ShouldEqual, motor.ModeIdle)

	// the port is free again
	_, err = sim.NewMotor(port.A)
	test.That(t, err, test.ShouldBeNil)
}

func TestHardResetDriveBase(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	left, _ := sim.NewMotor(port.A)
	right, _ := sim.NewMotor(port.B)
	db, err := sim.NewDriveBase(left, right, drivebase.Config{WheelDiameterMM: 56, AxleTrackMM: 112})
	test.That(t, err, test.ShouldBeNil)

	w := db.StartStraight(1000)
	sim.Advance(20)
	test.That(t, sim.Pose().X, test.ShouldBeGreaterThan, 0)

	test.That(t, sim.HardReset(), test.ShouldBeNil)
	test.That(t, w.Resolved(), test.ShouldBeTrue)
	test.That(t, sim.Pose(), test.ShouldResemble, spatialmath.NewPose(0, 0, 0))
}

func TestSoftReset(t *testing.T) {
	sim, mock := newTestSim(t, Options{})
	left, _ := sim.NewMotor(port.A)
	right, _ := sim.NewMotor(port.B)
	db, err := sim.NewDriveBase(left, right, drivebase.Config{WheelDiameterMM: 56, AxleTrackMM: 112})
	test.That(t, err, test.ShouldBeNil)
	runID := sim.RunID()

	w := db.StartTurn(360)
	for i := 0; i < 10; i++ {
		sim.Advance(20)
	}
	sim.IMU().ResetHeading(50)
	sim.Pause()

	sim.Reset()
	test.That(t, w.Resolved(), test.ShouldBeTrue)
	test.That(t, sim.Paused(), test.ShouldBeFalse)
	test.That(t, sim.RunID(), test.ShouldEqual, runID)
	test.That(t, sim.Ports().Devices(), test.ShouldHaveLength, 2)
	test.That(t, left.Angle(), test.ShouldEqual, 0)
	test.That(t, right.Angle(), test.ShouldEqual, 0)
	test.That(t, db.Angle(), test.ShouldEqual, 0)
	test.That(t, db.Distance(), test.ShouldEqual, 0)
	test.That(t, db.Done(), test.ShouldBeTrue)
	test.That(t, sim.Pose(), test.ShouldResemble, spatialmath.NewPose(0, 0, 0))
	test.That(t, sim.IMU().Heading(), test.ShouldEqual, 0)

	// the time reference was dropped, so the next step only records it
	left.Run(100)
	mock.Add(time.Second)
	sim.Step()
	test.That(t, left.Angle(), test.ShouldEqual, 0)
}

func TestSetRobotAppliesOnReset(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	robot := originRobot()
	robot.Start = spatialmath.NewPose(5, 6, 90)
	robot.LeftPort = port.C
	robot.RightPort = port.D
	test.That(t, sim.SetRobot(robot), test.ShouldBeNil)
	test.That(t, sim.Pose(), test.ShouldResemble, spatialmath.NewPose(0, 0, 0))

	test.That(t, sim.HardReset(), test.ShouldBeNil)
	test.That(t, sim.Pose(), test.ShouldResemble, robot.Start)

	left, _ := sim.NewMotor(port.C)
	right, _ := sim.NewMotor(port.D)
	left.Run(360)
	right.Run(360)
	sim.Advance(100)
	pose := sim.Pose()
	test.That(t, pose.X, test.ShouldAlmostEqual, 5)
	test.That(t, pose.Y, test.ShouldBeGreaterThan, 6)

	robot.LeftPort = robot.RightPort
	test.That(t, sim.SetRobot(robot), test.ShouldNotBeNil)
}

func TestSensorsOccupyPorts(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	_, err := sim.NewColorSensor(port.E)
	test.That(t, err, test.ShouldBeNil)
	_, err = sim.NewMotor(port.E)
	test.That(t, errors.Is(err, port.ErrPortInUse), test.ShouldBeTrue)
	_, err = sim.NewUltrasonicSensor(port.F)
	test.That(t, err, test.ShouldBeNil)
	_, err = sim.NewForceSensor(port.F)
	test.That(t, errors.Is(err, port.ErrPortInUse), test.ShouldBeTrue)

	test.That(t, sim.HardReset(), test.ShouldBeNil)
	_, err = sim.NewForceSensor(port.F)
	test.That(t, err, test.ShouldBeNil)
}

func TestClose(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	m, _ := sim.NewMotor(port.A)
	w := m.StartRunAngle(100, 720)
	test.That(t, sim.Close(), test.ShouldBeNil)
	test.That(t, w.Resolved(), test.ShouldBeTrue)
	test.That(t, sim.Ports().Devices(), test.ShouldBeEmpty)
}

func TestTickCompletionOrder(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	left, _ := sim.NewMotor(port.A)
	right, _ := sim.NewMotor(port.B)
	arm, err := sim.NewMotor(port.C)
	test.That(t, err, test.ShouldBeNil)
	db, err := sim.NewDriveBase(left, right, drivebase.Config{WheelDiameterMM: 56, AxleTrackMM: 112})
	test.That(t, err, test.ShouldBeNil)

	var fired []events.Key
	sim.Bus().SetObserver(func(key events.Key, released bool) {
		fired = append(fired, key)
	})

	baseDone := db.StartStraight(2)
	armDone := arm.StartRunTime(100, 20)
	test.That(t, sim.Advance(20), test.ShouldBeNil)

	test.That(t, baseDone.Resolved(), test.ShouldBeTrue)
	test.That(t, armDone.Resolved(), test.ShouldBeTrue)
	test.That(t, fired, test.ShouldResemble, []events.Key{
		events.MotorDone(int(port.A)),
		events.MotorDone(int(port.B)),
		events.MotorDone(int(port.C)),
		events.DriveBaseDone(0),
	})
}

func TestAdvanceIgnoresNonPositive(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	m, _ := sim.NewMotor(port.A)
	w := m.StartRunTime(100, 100)

	for _, dt := range []float64{0, -50, math.NaN()} {
		test.That(t, sim.Advance(dt), test.ShouldBeNil)
	}
	test.That(t, m.Angle(), test.ShouldEqual, 0)

	for i := 0; i < 5; i++ {
		sim.Advance(20)
	}
	test.That(t, w.Resolved(), test.ShouldBeTrue)
	test.That(t, m.Angle(), test.ShouldAlmostEqual, 10)
}

func TestStopAll(t *testing.T) {
	sim, _ := newTestSim(t, Options{})
	left, _ := sim.NewMotor(port.A)
	right, _ := sim.NewMotor(port.B)
	arm, _ := sim.NewMotor(port.C)
	db, err := sim.NewDriveBase(left, right, drivebase.Config{WheelDiameterMM: 56, AxleTrackMM: 112})
	test.That(t, err, test.ShouldBeNil)

	baseDone := db.StartStraight(1000)
	armDone := arm.StartRunAngle(100, 720)
	sim.Advance(20)
	distance := db.Distance()

	sim.StopAll()
	test.That(t, baseDone.Resolved(), test.ShouldBeTrue)
	test.That(t, armDone.Resolved(), test.ShouldBeTrue)
	test.That(t, db.Done(), test.ShouldBeTrue)
	test.That(t, arm.Done(), test.ShouldBeTrue)
	test.That(t, left.Done(), test.ShouldBeTrue)
	test.That(t, sim.Ports().Devices(), test.ShouldHaveLength, 3)

	sim.Advance(20)
	test.That(t, db.Distance(), test.ShouldEqual, distance)
}
