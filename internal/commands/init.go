package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dexpositosanchez/fyntra/internal/app"
	"github.com/dexpositosanchez/fyntra/internal/database"
	"github.com/dexpositosanchez/fyntra/internal/utils"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

const envTemplate = `# Fyntra client configuration
FYNTRA_API_URL=%s
# FYNTRA_API_TOKEN=
# FYNTRA_API_TIMEOUT=30s
# FYNTRA_SYNC_MAX_RETRIES=3
# FYNTRA_PROBE_URL=https://clients3.google.com/generate_204
# FYNTRA_PROBE_INTERVAL=10s
FYNTRA_LOG_LEVEL=info
`

// InitCommand returns the CLI command for setting up the local environment
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the Fyntra environment",
		Description: "Creates the configuration directory, a default .env file and the local " +
			"database. Run it once after installing or upgrading.",
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}
			cfg := application.Config

			utils.PrintHeading("Initializing Fyntra")
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", cfg.ConfigDir()))

			envPath := filepath.Join(cfg.ConfigDir(), ".env")
			if _, err := os.Stat(envPath); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(envPath, []byte(fmt.Sprintf(envTemplate, cfg.Server.URL)), 0600); err != nil {
					utils.PrintWarning(fmt.Sprintf("Failed to write default configuration: %s", err))
				} else {
					utils.PrintSuccess("Wrote default configuration")
				}
			}

			version, _, err := database.MigrationVersion()
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to read schema version: %s", err))
				return fmt.Errorf("failed to read schema version: %w", err)
			}

			utils.PrintSuccess("Fyntra initialized successfully!")
			utils.PrintInfo(fmt.Sprintf("Schema version: %d", version))
			utils.PrintInfo("Configuration file: " + color.YellowString("%s", envPath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
			utils.PrintInfo("Device name: " + color.YellowString("%s", cfg.Server.DeviceName))
			fmt.Fprintln(utils.Output)
			utils.PrintInfo("Log in with " + color.CyanString("fyntra auth login --token <token>") + " to start syncing.")

			return nil
		},
	}
}
