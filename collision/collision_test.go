package collision

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/fieldsim/spatialmath"
)

func mustBox(t *testing.T, center r3.Vector, yaw float64, dims r3.Vector, label string) *spatialmath.Box {
	t.Helper()
	b, err := spatialmath.NewBox(center, yaw, dims, label)
	test.That(t, err, test.ShouldBeNil)
	return b
}

// unitRobot is a 1x1 inch robot footprint centered on the robot origin.
func unitRobot(t *testing.T) spatialmath.Geometry {
	return mustBox(t, r3.Vector{Z: 1}, 0, r3.Vector{X: 1, Y: 1, Z: 2}, "robot")
}

// wallAt returns a wall whose near face is the plane x = face.
func wallAt(t *testing.T, face float64) Obstacle {
	return Obstacle{
		Geometry: mustBox(t, r3.Vector{X: face + 1, Z: 1}, 0, r3.Vector{X: 2, Y: 100, Z: 2}, "wall"),
		Category: CategoryWall,
	}
}

func TestBoxVsBox(t *testing.T) {
	a := mustBox(t, r3.Vector{}, 0, r3.Vector{X: 2, Y: 2, Z: 2}, "a")
	b := mustBox(t, r3.Vector{}, 0, r3.Vector{X: 2, Y: 2, Z: 2}, "b")
	sat := SATIntersector{}

	test.That(t, sat.Intersects(a, spatialmath.NewPose(0, 0, 0), b, spatialmath.NewPose(1.9, 0, 0)), test.ShouldBeTrue)
	test.That(t, sat.Intersects(a, spatialmath.NewPose(0, 0, 0), b, spatialmath.NewPose(2, 0, 0)), test.ShouldBeFalse)
	test.That(t, sat.Intersects(a, spatialmath.NewPose(0, 0, 0), b, spatialmath.NewPose(2.1, 0, 0)), test.ShouldBeFalse)

	// rotated 45 degrees the corner reaches sqrt(2)
	test.That(t, sat.Intersects(a, spatialmath.NewPose(0, 0, 0), b, spatialmath.NewPose(2.3, 0, 45)), test.ShouldBeTrue)
	test.That(t, sat.Intersects(a, spatialmath.NewPose(0, 0, 0), b, spatialmath.NewPose(2.5, 0, 45)), test.ShouldBeFalse)

	// diagonal offset separated only along a face normal
	test.That(t, sat.Intersects(a, spatialmath.NewPose(0, 0, 0), b, spatialmath.NewPose(1.5, 1.5, 0)), test.ShouldBeTrue)
	test.That(t, sat.Intersects(a, spatialmath.NewPose(0, 0, 0), b, spatialmath.NewPose(2.5, 1.5, 0)), test.ShouldBeFalse)

	t.Run("height", func(t *testing.T) {
		high := mustBox(t, r3.Vector{Z: 5}, 0, r3.Vector{X: 2, Y: 2, Z: 2}, "high")
		test.That(t, sat.Intersects(a, spatialmath.NewPose(0, 0, 0), high, spatialmath.NewPose(0, 0, 0)), test.ShouldBeFalse)
	})
}

func TestWallStall(t *testing.T) {
	logger := golog.NewTestLogger(t)
	d := NewDetector(nil, logger)
	test.That(t, d.SetRobot(unitRobot(t)), test.ShouldBeEmpty)
	test.That(t, d.SetField(Field{Obstacles: []Obstacle{wallAt(t, 10)}}), test.ShouldBeEmpty)
	test.That(t, d.Place(spatialmath.NewPose(0, 0, 0)), test.ShouldBeEmpty)

	var wallStarts int
	var firstBlocked float64
	for x := 0.25; x <= 12; x += 0.25 {
		ok, events := d.Move(spatialmath.NewPose(x, 0, 0))
		for _, e := range events {
			test.That(t, e, test.ShouldNotResemble, ModelStart)
			test.That(t, e, test.ShouldNotResemble, GamePieceStart)
			if e == WallStart {
				wallStarts++
				if firstBlocked == 0 {
					firstBlocked = x
				}
			}
		}
		test.That(t, d.Pose().X, test.ShouldBeLessThanOrEqualTo, 9.5)
		if x <= 9.5 {
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, d.Pose().X, test.ShouldEqual, x)
		} else {
			test.That(t, ok, test.ShouldBeFalse)
			test.That(t, d.Pose().X, test.ShouldEqual, 9.5)
		}
	}
	test.That(t, wallStarts, test.ShouldEqual, 1)
	test.That(t, firstBlocked, test.ShouldEqual, 9.75)
	test.That(t, d.State().Wall, test.ShouldBeTrue)

	// backing away ends the wall contact
	ok, events := d.Move(spatialmath.NewPose(5, 0, 0))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, events, test.ShouldResemble, []Event{WallEnd})
}

func TestGamePiece(t *testing.T) {
	d := NewDetector(SATIntersector{}, golog.NewTestLogger(t))
	d.SetRobot(unitRobot(t))
	piece := Obstacle{
		Geometry: mustBox(t, r3.Vector{Z: 0.5}, 0, r3.Vector{X: 1, Y: 1, Z: 1}, "piece"),
		Pose:     spatialmath.NewPose(5, 0, 0),
		Category: CategoryGamePiece,
	}
	prop := Obstacle{
		Geometry: mustBox(t, r3.Vector{Z: 0.5}, 0, r3.Vector{X: 1, Y: 1, Z: 1}, "prop"),
		Pose:     spatialmath.NewPose(5, 5, 0),
		Category: CategoryModel,
	}
	d.SetField(Field{Obstacles: []Obstacle{piece, prop, wallAt(t, 20)}})
	d.Place(spatialmath.NewPose(0, 0, 0))

	var seen []Event
	for x := 0.5; x <= 10; x += 0.5 {
		candidate := spatialmath.NewPose(x, 0, 0)
		ok, events := d.Move(candidate)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, d.Pose(), test.ShouldResemble, candidate)
		seen = append(seen, events...)
	}
	test.That(t, seen, test.ShouldResemble, []Event{GamePieceStart, GamePieceEnd})

	t.Run("prop", func(t *testing.T) {
		ok, events := d.Move(spatialmath.NewPose(5, 4.5, 0))
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, events, test.ShouldResemble, []Event{ModelStart})
		test.That(t, d.State(), test.ShouldResemble, State{Model: true})
	})

	t.Run("both", func(t *testing.T) {
		big := mustBox(t, r3.Vector{Z: 1}, 0, r3.Vector{X: 1, Y: 6, Z: 2}, "long robot")
		test.That(t, d.SetRobot(big), test.ShouldResemble, []Event{ModelEnd})
		_, events := d.Move(spatialmath.NewPose(5, 2.5, 0))
		test.That(t, events, test.ShouldResemble, []Event{ModelStart, GamePieceStart})

		// reloading the field ends every active category
		test.That(t, d.SetField(Field{}), test.ShouldResemble, []Event{ModelEnd, GamePieceEnd})
		test.That(t, d.State(), test.ShouldResemble, State{})
	})
}

func TestUnchangedPose(t *testing.T) {
	calls := 0
	d := NewDetector(countingIntersector{calls: &calls}, golog.NewTestLogger(t))
	d.SetRobot(unitRobot(t))
	d.SetField(Field{Obstacles: []Obstacle{wallAt(t, 0.2)}})

	ok, events := d.Move(spatialmath.NewPose(0, 0, 0))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, events, test.ShouldBeEmpty)
	test.That(t, calls, test.ShouldEqual, 0)

	ok, events = d.Move(spatialmath.NewPose(0, 0, 1))
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, events, test.ShouldResemble, []Event{WallStart})
	test.That(t, calls, test.ShouldEqual, 1)
}

func TestEventNames(t *testing.T) {
	test.That(t, WallStart.String(), test.ShouldEqual, "CollisionWallStart")
	test.That(t, ModelEnd.String(), test.ShouldEqual, "CollisionModelEnd")
	test.That(t, GamePieceStart.String(), test.ShouldEqual, "CollisionGamePieceStart")
}

type countingIntersector struct {
	calls *int
}

func (c countingIntersector) Intersects(a spatialmath.Geometry, aPose spatialmath.Pose, b spatialmath.Geometry, bPose spatialmath.Pose) bool {
	*c.calls++
	return SATIntersector{}.Intersects(a, aPose, b, bPose)
}
