// Package main runs scripted maneuvers on a simulated robot field.
package main

import (
	"log"
	"os"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagConfig   = "config"
	flagScript   = "script"
	flagRealtime = "realtime"
	flagDebug    = "debug"
	flagQuiet    = "quiet"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:            "fieldsim",
		Usage:           "drive a simulated robot around a competition field",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  flagQuiet,
				Usage: "disable logging",
			},
		},
		Before: func(c *cli.Context) error {
			switch {
			case c.Bool(flagQuiet):
				logger = zap.NewNop().Sugar()
			case c.Bool(flagDebug):
				logger = golog.NewDebugLogger("fieldsim")
			default:
				logger = golog.NewLogger("fieldsim")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the maneuvers of a config and report where the robot ended up",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
					&cli.PathFlag{
						Name:  flagScript,
						Usage: "take the robot metadata from the header of script `FILE`",
					},
					&cli.BoolFlag{
						Name:  flagRealtime,
						Usage: "step the simulation with the wall clock instead of as fast as possible",
					},
				},
				Action: func(c *cli.Context) error {
					return runAction(c, logger)
				},
			},
			{
				Name:  "header",
				Usage: "print the robot metadata a script declares",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagScript,
						Required: true,
						Usage:    "script `FILE`",
					},
				},
				Action: headerAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
