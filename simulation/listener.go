package simulation

import (
	"go.viam.com/fieldsim/collision"
	"go.viam.com/fieldsim/spatialmath"
)

// A Listener observes the simulation. Callbacks run on the goroutine that stepped or reset the
// simulation, after its internal locks are released, so they may call back into it.
type Listener interface {
	// CollisionEvent reports a contact starting or ending at the committed pose.
	CollisionEvent(event collision.Event, pose spatialmath.Pose)
	// PoseChanged reports a newly committed pose.
	PoseChanged(pose spatialmath.Pose)
	// TickError reports a tick that could not move the robot.
	TickError(err error)
}

// NopListener ignores everything. Embed it to implement only part of Listener.
type NopListener struct{}

// CollisionEvent does nothing.
func (NopListener) CollisionEvent(collision.Event, spatialmath.Pose) {}

// PoseChanged does nothing.
func (NopListener) PoseChanged(spatialmath.Pose) {}

// TickError does nothing.
func (NopListener) TickError(error) {}

type listenerEntry struct {
	id int
	l  Listener
}

// AddListener registers l. It returns a function that removes it again.
func (s *Simulation) AddListener(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, listenerEntry{id: id, l: l})
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Simulation) snapshotListeners() []Listener {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	out := make([]Listener, 0, len(s.listeners))
	for _, entry := range s.listeners {
		out = append(out, entry.l)
	}
	return out
}

func (s *Simulation) notifyCollisions(notes []collision.Event, pose spatialmath.Pose) {
	if len(notes) == 0 {
		return
	}
	for _, note := range notes {
		s.logger.Debugw("collision", "event", note.String(), "pose", pose.String())
	}
	for _, l := range s.snapshotListeners() {
		for _, note := range notes {
			l.CollisionEvent(note, pose)
		}
	}
}

func (s *Simulation) notifyPose(pose spatialmath.Pose) {
	for _, l := range s.snapshotListeners() {
		l.PoseChanged(pose)
	}
}

func (s *Simulation) notifyError(err error) {
	for _, l := range s.snapshotListeners() {
		l.TickError(err)
	}
}

// A Pauser can be paused.
type Pauser interface {
	Pause()
}

// PausePolicy pauses the simulation when a contact of an enabled category starts.
type PausePolicy struct {
	NopListener
	Wall      bool
	Model     bool
	GamePiece bool

	pauser Pauser
}

// NewPausePolicy returns a policy that pauses p on model contacts only.
func NewPausePolicy(p Pauser) *PausePolicy {
	return &PausePolicy{Model: true, pauser: p}
}

// CollisionEvent implements Listener.
func (pp *PausePolicy) CollisionEvent(event collision.Event, _ spatialmath.Pose) {
	if event.Phase != collision.PhaseStart || !pp.enabled(event.Category) {
		return
	}
	pp.pauser.Pause()
}

func (pp *PausePolicy) enabled(c collision.Category) bool {
	switch c {
	case collision.CategoryWall:
		return pp.Wall
	case collision.CategoryModel:
		return pp.Model
	case collision.CategoryGamePiece:
		return pp.GamePiece
	default:
		return false
	}
}
