package main

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/fieldsim/config"
	"go.viam.com/fieldsim/simulation"
)

var errPaused = errors.New("simulation paused on collision")

func runAction(c *cli.Context, logger golog.Logger) error {
	cfg, err := config.Read(c.Path(flagConfig), logger)
	if err != nil {
		return err
	}
	if path := c.Path(flagScript); path != "" {
		header, err := config.ReadHeader(path)
		if err != nil {
			return err
		}
		cfg.Robot.ApplyHeader(header)
		if err := cfg.Robot.Validate("robot"); err != nil {
			return errors.Wrapf(err, "bad metadata in %s", path)
		}
	}

	res, err := simulate(c.Context, cfg, c.Bool(flagRealtime), logger)
	if res != nil {
		fmt.Fprint(c.App.Writer, res.render())
		fmt.Fprintln(c.App.Writer)
	}
	return err
}

// simulate runs cfg's maneuvers to completion. Unless realtime is set the simulation runs on a
// mock clock, advanced one frame at a time whenever the script is blocked.
func simulate(ctx context.Context, cfg *config.Config, realtime bool, logger golog.Logger) (*result, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	var mock *clock.Mock
	if realtime {
		opts.Clock = clock.New()
	} else {
		mock = clock.NewMock()
		opts.Clock = mock
	}
	sim, err := simulation.New(opts, logger)
	if err != nil {
		return nil, err
	}

	rec := newRecorder(sim)
	sim.AddListener(rec)
	sim.AddListener(cfg.Simulation.PausePolicy(sim))

	var park chan parked
	if !realtime {
		park = make(chan parked)
	}
	sc, err := newScript(sim, cfg, park, logger)
	if err != nil {
		return nil, multierr.Combine(err, sim.Close())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	scriptDone := make(chan error, 1)
	scriptExited := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(scriptExited)
		scriptDone <- sc.run(ctx)
	})

	interval := time.Duration(float64(time.Second) / cfg.Simulation.FrameRate)
	if realtime {
		err = runRealtime(ctx, sim, interval, cfg.Simulation.FrameRate, scriptDone, logger)
	} else {
		err = runStepped(sim, mock, interval, cfg.Simulation.TimeoutMS, park, scriptDone)
	}
	if errors.Is(err, errPaused) {
		logger.Infow("stopping early", "reason", err.Error(), "pose", sim.Pose().String())
		sim.StopAll()
		err = nil
	}
	cancel()
	<-scriptExited

	res := rec.result(sim)
	return res, multierr.Combine(err, sim.Close())
}

func runStepped(
	sim *simulation.Simulation,
	mock *clock.Mock,
	interval time.Duration,
	timeoutMS float64,
	park <-chan parked,
	scriptDone <-chan error,
) error {
	limit := int(timeoutMS / (float64(interval) / float64(time.Millisecond)))
	// the first step only takes the time reference
	if err := sim.Step(); err != nil {
		return err
	}
	for {
		select {
		case err := <-scriptDone:
			return err
		case p, ok := <-park:
			if !ok {
				return <-scriptDone
			}
			for i := 0; !p.done(); i++ {
				if sim.Paused() {
					return errPaused
				}
				if i >= limit {
					return errors.Errorf("%s did not finish within %vms of simulated time", p.label, timeoutMS)
				}
				mock.Add(interval)
				//nolint:errcheck
				sim.Step()
			}
		}
	}
}

func runRealtime(
	ctx context.Context,
	sim *simulation.Simulation,
	interval time.Duration,
	rate float64,
	scriptDone <-chan error,
	logger golog.Logger,
) error {
	loop := simulation.NewLoop(sim.Clock(), rate, sim, logger)
	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Stop()

	// one more frame lets the pose catch up with the final command
	err := <-scriptDone
	goutils.SelectContextOrWait(ctx, interval)
	return err
}

func headerAction(c *cli.Context) error {
	h, err := config.ReadHeader(c.Path(flagScript))
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, renderHeader(h))
	fmt.Fprintln(c.App.Writer)
	return nil
}
