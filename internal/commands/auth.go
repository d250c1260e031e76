package commands

import (
	"errors"
	"fmt"

	"github.com/dexpositosanchez/fyntra/internal/app"
	"github.com/dexpositosanchez/fyntra/internal/config"
	"github.com/dexpositosanchez/fyntra/internal/remote"
	"github.com/dexpositosanchez/fyntra/internal/utils"
	"github.com/urfave/cli/v2"
)

// AuthCommand returns the CLI command for managing the API credentials
func AuthCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the API token and server",
		Subcommands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Store the bearer token used for API calls",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Bearer token issued by the Fyntra API",
						EnvVars:  []string{"FYNTRA_TOKEN"},
						Required: true,
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "API base URL (default: keep the current one)",
					},
					&cli.StringFlag{
						Name:  "device",
						Usage: "Device name sent with every request",
					},
				},
				Action: login,
			},
			{
				Name:  "logout",
				Usage: "Forget the stored token",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "purge",
						Usage: "Also drop the cached incidents",
					},
				},
				Action: logout,
			},
			{
				Name:   "status",
				Usage:  "Show the configured server and whether a token is set",
				Action: authStatus,
			},
		},
	}
}

func login(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	settings := application.Settings

	if url := c.String("url"); url != "" {
		if err := settings.SetServerURL(ctx, url); err != nil {
			return fmt.Errorf("failed to save server url: %w", err)
		}
		utils.PrintInfo("Server set to " + utils.Highlight(url))
		utils.PrintInfo("The new server is used from the next command on")
	}

	if device := c.String("device"); device != "" {
		if err := settings.SetDeviceName(ctx, device); err != nil {
			return fmt.Errorf("failed to save device name: %w", err)
		}
	}

	if err := settings.SetToken(ctx, c.String("token")); err != nil {
		utils.PrintError(fmt.Sprintf("Failed to store token: %s", err))
		return fmt.Errorf("failed to store token: %w", err)
	}
	utils.PrintSuccess("Token stored")

	if c.String("url") != "" || !application.Observer.IsOnline() {
		return nil
	}

	// The client reads the token on every request, so the new one is live already
	if err := application.Incidents.RefreshFromServer(ctx); err != nil {
		if remote.ClassifyError(err) == remote.ErrorTypeAuth {
			utils.PrintError("The server rejected the token")
			return fmt.Errorf("token rejected: %w", err)
		}
		utils.PrintWarning(fmt.Sprintf("Could not verify the token: %s", describeRemoteError(err)))
		return nil
	}

	utils.PrintSuccess("Token verified, incidents cache refreshed")
	return nil
}

func logout(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if err := application.Settings.SetToken(c.Context, ""); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}

	if c.Bool("purge") {
		if err := application.Incidents.Cache().DeleteAll(c.Context); err != nil {
			return fmt.Errorf("failed to clear incident cache: %w", err)
		}
		utils.PrintInfo("Incident cache cleared")
	}

	utils.PrintSuccess("Logged out")
	return nil
}

func authStatus(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	utils.PrintKeyValue("Server", application.Config.Server.URL)
	utils.PrintKeyValue("Device", application.Config.Server.DeviceName)

	_, err = application.Settings.TokenSource().Token()
	switch {
	case err == nil:
		utils.PrintKeyValue("Token", utils.ColorStatus("synced")+" configured")
	case errors.Is(err, config.ErrNoToken):
		utils.PrintKeyValue("Token", utils.ColorStatus("error")+" missing")
		utils.PrintInfo("Run " + utils.Command("fyntra auth login --token <token>"))
	default:
		return fmt.Errorf("failed to read token: %w", err)
	}
	return nil
}
