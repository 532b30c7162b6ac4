// Package collision validates candidate robot poses against the field. Walls veto a move; props
// and game pieces are only reported.
package collision

import (
	"fmt"
	"sync"

	"github.com/edaniels/golog"

	"go.viam.com/fieldsim/spatialmath"
)

// Category is a class of obstacle.
type Category int

// The obstacle categories. A model is any field prop that is not a game piece.
const (
	CategoryWall Category = iota
	CategoryModel
	CategoryGamePiece
)

func (c Category) String() string {
	switch c {
	case CategoryWall:
		return "Wall"
	case CategoryModel:
		return "Model"
	case CategoryGamePiece:
		return "GamePiece"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Phase says whether contact began or ended.
type Phase int

// The transition phases.
const (
	PhaseStart Phase = iota
	PhaseEnd
)

// Event is a change in contact for one category.
type Event struct {
	Category Category
	Phase    Phase
}

// The six collision transitions.
var (
	WallStart      = Event{CategoryWall, PhaseStart}
	WallEnd        = Event{CategoryWall, PhaseEnd}
	ModelStart     = Event{CategoryModel, PhaseStart}
	ModelEnd       = Event{CategoryModel, PhaseEnd}
	GamePieceStart = Event{CategoryGamePiece, PhaseStart}
	GamePieceEnd   = Event{CategoryGamePiece, PhaseEnd}
)

func (e Event) String() string {
	phase := "Start"
	if e.Phase == PhaseEnd {
		phase = "End"
	}
	return "Collision" + e.Category.String() + phase
}

// State records which categories the robot currently touches.
type State struct {
	Wall      bool
	Model     bool
	GamePiece bool
}

func (s State) get(c Category) bool {
	switch c {
	case CategoryWall:
		return s.Wall
	case CategoryModel:
		return s.Model
	default:
		return s.GamePiece
	}
}

// transitions lists the events leading from s to next, in category order.
func (s State) transitions(next State) []Event {
	var out []Event
	for _, c := range []Category{CategoryWall, CategoryModel, CategoryGamePiece} {
		was, is := s.get(c), next.get(c)
		switch {
		case !was && is:
			out = append(out, Event{c, PhaseStart})
		case was && !is:
			out = append(out, Event{c, PhaseEnd})
		}
	}
	return out
}

// Obstacle is a solid placed on the field.
type Obstacle struct {
	Geometry spatialmath.Geometry
	Pose     spatialmath.Pose
	Category Category
}

// Field is the set of obstacles the robot can hit.
type Field struct {
	Obstacles []Obstacle
}

// Detector owns the robot's committed pose and its collision state.
type Detector struct {
	mu          sync.Mutex
	intersector Intersector
	robot       spatialmath.Geometry
	walls       []Obstacle
	props       []Obstacle
	pose        spatialmath.Pose
	state       State
	logger      golog.Logger
}

// NewDetector returns a detector with an empty field and no robot geometry. A nil intersector
// selects SATIntersector.
func NewDetector(intersector Intersector, logger golog.Logger) *Detector {
	if intersector == nil {
		intersector = SATIntersector{}
	}
	return &Detector{intersector: intersector, logger: logger}
}

// SetField replaces the obstacles. Every active category ends.
func (d *Detector) SetField(field Field) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.walls, d.props = nil, nil
	for _, o := range field.Obstacles {
		if o.Category == CategoryWall {
			d.walls = append(d.walls, o)
		} else {
			d.props = append(d.props, o)
		}
	}
	return d.flush()
}

// SetRobot replaces the robot geometry, in the robot frame. Every active category ends. A nil
// geometry disables testing.
func (d *Detector) SetRobot(robot spatialmath.Geometry) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.robot = robot
	return d.flush()
}

func (d *Detector) flush() []Event {
	events := d.state.transitions(State{})
	d.state = State{}
	return events
}

// Pose returns the committed pose.
func (d *Detector) Pose() spatialmath.Pose {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pose
}

// State returns the current collision state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Place commits pose without a wall veto and refreshes the collision state there.
func (d *Detector) Place(pose spatialmath.Pose) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.evaluate(pose)
	events := d.state.transitions(next)
	d.state = next
	d.pose = pose
	return events
}

// Move tries to commit candidate. It returns false, keeping the previous pose, when the robot
// would hit a wall. Contact with props and game pieces is recorded but never blocks the move.
// Moving to the committed pose tests nothing.
func (d *Detector) Move(candidate spatialmath.Pose) (bool, []Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if candidate == d.pose {
		return true, nil
	}

	next := d.evaluate(candidate)
	events := d.state.transitions(next)
	wasWall := d.state.Wall
	d.state = next
	if next.Wall {
		if !wasWall {
			d.logger.Debugw("robot blocked by wall", "at", d.pose.String(), "candidate", candidate.String())
		}
		return false, events
	}
	d.pose = candidate
	return true, events
}

// evaluate must be called with mu held.
func (d *Detector) evaluate(pose spatialmath.Pose) State {
	var s State
	if d.robot == nil {
		return s
	}
	for _, wall := range d.walls {
		if d.intersector.Intersects(d.robot, pose, wall.Geometry, wall.Pose) {
			s.Wall = true
			break
		}
	}
	for _, prop := range d.props {
		if s.Model && s.GamePiece {
			break
		}
		if prop.Category == CategoryGamePiece && s.GamePiece || prop.Category == CategoryModel && s.Model {
			continue
		}
		if !d.intersector.Intersects(d.robot, pose, prop.Geometry, prop.Pose) {
			continue
		}
		if prop.Category == CategoryGamePiece {
			s.GamePiece = true
		} else {
			s.Model = true
		}
	}
	return s
}
