package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/fieldsim/components/base/drivebase"
	"go.viam.com/fieldsim/components/motor/simmotor"
	"go.viam.com/fieldsim/components/port"
	"go.viam.com/fieldsim/config"
	"go.viam.com/fieldsim/events"
	"go.viam.com/fieldsim/simulation"
)

// parked is sent by the script each time it blocks, so a stepping driver knows when to
// advance the simulation and when to stop.
type parked struct {
	label string
	done  func() bool
}

// script runs the configured maneuvers on its own goroutine.
type script struct {
	sim       *simulation.Simulation
	clock     clock.Clock
	maneuvers []config.Maneuver
	timeout   time.Duration
	logger    golog.Logger

	// park is nil when the simulation runs in real time.
	park chan<- parked

	seed      int64
	motors    map[port.Port]*simmotor.Motor
	driveBase *drivebase.DriveBase
}

func newScript(
	sim *simulation.Simulation,
	cfg *config.Config,
	park chan<- parked,
	logger golog.Logger,
) (*script, error) {
	s := &script{
		sim:       sim,
		clock:     sim.Clock(),
		maneuvers: cfg.Maneuvers,
		timeout:   time.Duration(cfg.Simulation.TimeoutMS * float64(time.Millisecond)),
		logger:    logger,
		park:      park,
		seed:      cfg.Simulation.Seed,
		motors:    map[port.Port]*simmotor.Motor{},
	}

	robot := sim.Robot()
	left, err := s.motor(robot.LeftPort)
	if err != nil {
		return nil, err
	}
	right, err := s.motor(robot.RightPort)
	if err != nil {
		return nil, err
	}
	s.driveBase, err = sim.NewDriveBase(left, right, cfg.Robot.DriveBaseConfig())
	if err != nil {
		return nil, err
	}
	if cfg.Robot.DriveBase != nil {
		if err := s.applySettings(*cfg.Robot.DriveBase); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *script) motor(p port.Port) (*simmotor.Motor, error) {
	if m, ok := s.motors[p]; ok {
		return m, nil
	}
	m, err := s.sim.NewMotor(p)
	if err != nil {
		return nil, err
	}
	if s.seed != 0 {
		//nolint:gosec
		m.SetRandSource(rand.New(rand.NewSource(s.seed + int64(p))))
	}
	s.motors[p] = m
	return m, nil
}

func (s *script) applySettings(cfg config.DriveBase) error {
	if _, err := s.driveBase.SetSettings(cfg.Settings(s.driveBase.Settings())); err != nil {
		return err
	}
	s.driveBase.UseGyro(cfg.UseGyro)
	if cfg.GyroGain > 0 {
		s.driveBase.SetGyroCorrector(drivebase.ProportionalCorrector{Gain: cfg.GyroGain})
	}
	return nil
}

func (s *script) run(ctx context.Context) error {
	if s.park != nil {
		defer close(s.park)
	}
	for idx := range s.maneuvers {
		m := &s.maneuvers[idx]
		s.logger.Debugw("maneuver", "index", idx, "type", string(m.Type), "args", m.Args)
		if err := s.execute(ctx, m); err != nil {
			return errors.Wrapf(err, "maneuver %d (%s)", idx, m.Type)
		}
	}
	return nil
}

func (s *script) execute(ctx context.Context, m *config.Maneuver) error {
	switch {
	case m.Type.IsMotor():
		return s.executeMotor(ctx, m)
	case m.Type.IsDriveBase():
		return s.executeDriveBase(ctx, m)
	}

	switch m.Type {
	case config.ManeuverWait:
		args, err := m.WaitArgs()
		if err != nil {
			return err
		}
		return s.sleep(ctx, time.Duration(args.TimeMS*float64(time.Millisecond)))
	case config.ManeuverSettings:
		args, err := m.SettingsArgs()
		if err != nil {
			return err
		}
		return s.applySettings(args)
	case config.ManeuverReset:
		s.sim.Reset()
		return nil
	default:
		return errors.Errorf("unknown maneuver type %q", m.Type)
	}
}

func (s *script) executeMotor(ctx context.Context, m *config.Maneuver) error {
	args, err := m.MotorArgs()
	if err != nil {
		return err
	}
	p, err := port.Parse(args.Port)
	if err != nil {
		return err
	}
	mot, err := s.motor(p)
	if err != nil {
		return err
	}

	var w *events.Waiter
	switch m.Type {
	case config.ManeuverRun:
		mot.Run(args.Speed)
	case config.ManeuverDutyCycle:
		mot.DutyCycle(args.Duty)
	case config.ManeuverRunTime:
		w = mot.StartRunTime(args.Speed, args.TimeMS)
	case config.ManeuverRunAngle:
		w = mot.StartRunAngle(args.Speed, args.Angle)
	case config.ManeuverRunTarget:
		w = mot.StartRunTarget(args.Speed, args.Target)
	case config.ManeuverTrackTarget:
		mot.TrackTarget(args.Target)
	case config.ManeuverMotorStop:
		mot.Stop()
	case config.ManeuverResetAngle:
		mot.ResetAngle(args.Angle)
	}
	if w == nil || !args.ShouldWait() {
		return nil
	}
	return s.await(ctx, m.Type, w)
}

func (s *script) executeDriveBase(ctx context.Context, m *config.Maneuver) error {
	args, err := m.DriveArgs()
	if err != nil {
		return err
	}

	var w *events.Waiter
	switch m.Type {
	case config.ManeuverStraight:
		w = s.driveBase.StartStraight(args.DistanceMM)
	case config.ManeuverTurn:
		w = s.driveBase.StartTurn(args.Angle)
	case config.ManeuverCurve:
		w = s.driveBase.StartCurve(args.RadiusMM, args.Angle)
	case config.ManeuverDrive:
		s.driveBase.Drive(args.Speed, args.TurnRate)
	case config.ManeuverStop:
		s.driveBase.Stop()
	}
	if w == nil || !args.ShouldWait() {
		return nil
	}
	return s.await(ctx, m.Type, w)
}

func (s *script) await(ctx context.Context, kind config.ManeuverType, w *events.Waiter) error {
	if s.park != nil {
		if err := s.parkOn(ctx, parked{label: string(kind), done: w.Resolved}); err != nil {
			return err
		}
		return w.Wait(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return w.Wait(ctx)
}

func (s *script) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := s.clock.Timer(d)
	defer timer.Stop()
	if s.park != nil {
		deadline := s.clock.Now().Add(d)
		done := func() bool { return !s.clock.Now().Before(deadline) }
		if err := s.parkOn(ctx, parked{label: "wait", done: done}); err != nil {
			return err
		}
	}
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *script) parkOn(ctx context.Context, p parked) error {
	select {
	case s.park <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
