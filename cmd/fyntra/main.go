package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dexpositosanchez/fyntra/internal/app"
	"github.com/dexpositosanchez/fyntra/internal/commands"
)

// Version information - populated at build time
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

var (
	globalFlags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "offline",
			Usage:   "Do not touch the network; reads come from the cache and changes are queued",
			EnvVars: []string{"FYNTRA_OFFLINE"},
		},
	}
)

func main() {
	cliApp := &cli.App{
		Name:  "fyntra",
		Usage: "Offline-first client for Fyntra property incidents",
		Description: "Fyntra keeps a local copy of your incidents that is always readable.\n\n" +
			"Changes made while offline are queued and replayed in order once the\n" +
			"connection is back, either with 'fyntra sync run' or 'fyntra sync watch'.",
		Version: fmt.Sprintf("%s (%s)", Version, CommitHash),
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Flags: globalFlags,
		Before: func(c *cli.Context) error {
			// Initialize the application
			application, err := app.New(app.Options{Offline: c.Bool("offline")})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			// Store the app instance in the context for later use
			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			// Gracefully shutdown the application
			if app, ok := c.App.Metadata["app"].(*app.App); ok {
				return app.Shutdown()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.IncidentsCommand(),
			commands.SyncCommand(),
			commands.AuthCommand(),
			commands.InitCommand(),
			commands.MigrateCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
