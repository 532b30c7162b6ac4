package main

import (
	"fmt"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"go.viam.com/fieldsim/collision"
	"go.viam.com/fieldsim/components/base/drivebase"
	"go.viam.com/fieldsim/config"
	"go.viam.com/fieldsim/simulation"
	"go.viam.com/fieldsim/spatialmath"
)

type collisionNote struct {
	atMS  float64
	event collision.Event
	pose  spatialmath.Pose
}

// recorder collects collision notifications stamped with simulated time.
type recorder struct {
	simulation.NopListener
	watch *simulation.StopWatch

	mu    sync.Mutex
	notes []collisionNote
	moves int
	errs  int
}

func newRecorder(sim *simulation.Simulation) *recorder {
	return &recorder{watch: sim.NewStopWatch()}
}

func (r *recorder) CollisionEvent(event collision.Event, pose spatialmath.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, collisionNote{atMS: r.watch.Time(), event: event, pose: pose})
}

func (r *recorder) PoseChanged(spatialmath.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves++
}

func (r *recorder) TickError(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs++
}

type result struct {
	runID       string
	elapsedMS   float64
	pose        spatialmath.Pose
	heading     float64
	driveBases  []drivebase.State
	ticks       simulation.TickStats
	moves       int
	instability int
	notes       []collisionNote
}

func (r *recorder) result(sim *simulation.Simulation) *result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &result{
		runID:       sim.RunID().String(),
		elapsedMS:   r.watch.Time(),
		pose:        sim.Pose(),
		heading:     sim.IMU().Heading(),
		ticks:       sim.Monitor().Snapshot(),
		moves:       r.moves,
		instability: r.errs,
		notes:       append([]collisionNote(nil), r.notes...),
	}
	for _, db := range sim.DriveBases() {
		res.driveBases = append(res.driveBases, db.State())
	}
	return res
}

func (res *result) render() string {
	t := table.NewWriter()
	t.SetTitle("run " + res.runID)
	t.AppendHeader(table.Row{"Quantity", "Value"})
	t.AppendRow(table.Row{"Simulated time (ms)", fmt.Sprintf("%.0f", res.elapsedMS)})
	t.AppendRow(table.Row{"Frames", res.ticks.Total})
	t.AppendRow(table.Row{"Frame delta (ms)", fmt.Sprintf("%.2f ± %.2f", res.ticks.Mean, res.ticks.StdDev)})
	t.AppendRow(table.Row{"Pose updates", res.moves})
	t.AppendRow(table.Row{"Unstable ticks", res.instability})
	t.AppendRow(table.Row{"X (in)", fmt.Sprintf("%.3f", res.pose.X)})
	t.AppendRow(table.Row{"Y (in)", fmt.Sprintf("%.3f", res.pose.Y)})
	t.AppendRow(table.Row{"Field heading (deg)", fmt.Sprintf("%.2f", res.pose.Theta)})
	t.AppendRow(table.Row{"Gyro heading (deg)", fmt.Sprintf("%.2f", res.heading)})
	for i, state := range res.driveBases {
		t.AppendRow(table.Row{fmt.Sprintf("Drive base %d distance (mm)", i), fmt.Sprintf("%.1f", state.Distance)})
		t.AppendRow(table.Row{fmt.Sprintf("Drive base %d angle (deg)", i), fmt.Sprintf("%.1f", state.Angle)})
	}
	out := t.Render()
	if len(res.notes) == 0 {
		return out
	}

	events := table.NewWriter()
	events.SetTitle("collisions")
	events.AppendHeader(table.Row{"#", "Time (ms)", "Event", "Pose"})
	for i, note := range res.notes {
		events.AppendRow(table.Row{i, fmt.Sprintf("%.0f", note.atMS), note.event.String(), note.pose.String()})
	}
	return out + "\n" + events.Render()
}

func renderHeader(h config.Header) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Key", "Value"})
	t.AppendRow(table.Row{"start_position", fmt.Sprintf("%.2f %.2f %.0f", h.StartPosition.X, h.StartPosition.Y, h.StartPosition.Theta)})
	t.AppendRow(table.Row{"left_wheel", h.LeftWheel})
	t.AppendRow(table.Row{"right_wheel", h.RightWheel})
	t.AppendRow(table.Row{"wheel_diameter", h.WheelDiameterMM})
	t.AppendRow(table.Row{"wheel_track", h.WheelTrackMM})
	return t.Render()
}
