package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/app"
	"github.com/dexpositosanchez/fyntra/internal/commands/dashboard"
	"github.com/dexpositosanchez/fyntra/internal/queue"
	"github.com/dexpositosanchez/fyntra/internal/sync"
	"github.com/dexpositosanchez/fyntra/internal/utils"
	"github.com/urfave/cli/v2"
)

// SyncCommand returns the CLI command for replaying offline changes
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Replay offline changes and refresh the local cache",
		Subcommands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Replay the queue once, then refresh from the server",
				Action: runSync,
			},
			{
				Name:  "status",
				Usage: "Show connectivity, queued operations and recent sync runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of operations and sync runs to show",
						Value: 10,
					},
				},
				Action: syncStatus,
			},
			{
				Name:    "dashboard",
				Aliases: []string{"ui"},
				Usage:   "Live view of the cache and queue that syncs on reconnect",
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}
					return dashboard.Run(c.Context, application)
				},
			},
			{
				Name:   "watch",
				Usage:  "Stay running and sync every time the connection comes back",
				Action: watchSync,
			},
		},
	}
}

func runSync(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	utils.PrintInfo("Synchronizing with " + utils.Highlight(application.Config.Server.URL))

	cycle := application.Orchestrator.RunOnce(c.Context, sync.TriggerManual)
	printCycle(cycle)

	if cycle.DrainErr != nil {
		return fmt.Errorf("sync failed: %w", cycle.DrainErr)
	}
	return nil
}

func syncStatus(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	limit := c.Int("limit")

	utils.PrintHeading("Connectivity")
	if application.Observer.IsOnline() {
		utils.PrintKeyValue("Network", utils.ColorStatus("online"))
	} else {
		utils.PrintKeyValue("Network", utils.ColorStatus("offline"))
	}
	utils.PrintKeyValue("Unmetered", strconv.FormatBool(application.Observer.IsUnmetered()))
	utils.PrintKeyValue("Server", application.Config.Server.URL)
	utils.PrintKeyValue("Device", application.Config.Server.DeviceName)

	counts, err := application.Queue.CountByStatus(ctx)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to read queue: %s", err))
		return fmt.Errorf("failed to count queued operations: %w", err)
	}

	fmt.Fprintln(utils.Output)
	utils.PrintHeading("Queue")
	for _, status := range []queue.Status{queue.StatusPending, queue.StatusSyncing, queue.StatusError} {
		utils.PrintKeyValue(string(status), strconv.Itoa(counts[status]))
	}

	ops, err := application.Queue.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list queued operations: %w", err)
	}
	if len(ops) > 0 {
		now := time.Now()
		rows := make([][]string, 0, len(ops))
		for _, op := range ops {
			rows = append(rows, []string{
				strconv.FormatInt(op.ID, 10),
				string(op.OperationType),
				op.Endpoint,
				utils.ColorStatus(string(op.Status)),
				strconv.Itoa(op.RetryCount),
				utils.FormatRelativeTime(op.Timestamp, now),
				utils.Truncate(op.ErrorMessage, 50),
			})
		}
		utils.PrintTable(
			[]string{"ID", "Type", "Endpoint", "Status", "Retries", "Queued", "Error"},
			rows,
			utils.TableOptions{Title: "Queued operations", Style: utils.DefaultTableOptions().Style},
		)
	}

	logs, err := application.SyncLogs.GetSyncLogs(ctx, limit, 0)
	if err != nil {
		return fmt.Errorf("failed to list sync logs: %w", err)
	}

	fmt.Fprintln(utils.Output)
	if len(logs) == 0 {
		utils.PrintInfo("No sync has replayed anything yet")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		outcome := utils.ColorStatus(string(l.Outcome))
		if !l.Success() {
			outcome = utils.ColorStatus("error")
		}
		rows = append(rows, []string{
			utils.FormatRelativeTime(l.StartedAt, now),
			string(l.Source),
			outcome,
			strconv.Itoa(l.SyncedCount),
			strconv.Itoa(l.ErrorCount),
			strconv.Itoa(l.DroppedCount),
			l.Duration.Round(time.Millisecond).String(),
			utils.Truncate(string(l.ErrorType)+" "+l.ErrorMessage, 50),
		})
	}
	utils.PrintTable(
		[]string{"When", "Trigger", "Outcome", "Synced", "Errors", "Dropped", "Took", "First error"},
		rows,
		utils.TableOptions{Title: "Recent syncs", Style: utils.DefaultTableOptions().Style},
	)
	return nil
}

func watchSync(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates, unsubscribe := application.Observer.Subscribe()
	defer unsubscribe()

	application.Orchestrator.OnCycle(printCycle)
	if err := application.Orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	defer application.Orchestrator.Stop()

	utils.PrintInfo("Watching connectivity, press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(utils.Output)
			utils.PrintInfo("Stopped watching")
			return nil
		case online, ok := <-updates:
			if !ok {
				return nil
			}
			if online {
				utils.PrintInfo("Network " + utils.ColorStatus("online"))
			} else {
				utils.PrintWarning("Network " + utils.ColorStatus("offline") + ", changes will be queued")
			}
		}
	}
}

func printCycle(cycle sync.Cycle) {
	if cycle.DrainErr != nil {
		utils.PrintError(fmt.Sprintf("Sync failed: %s", cycle.DrainErr))
		return
	}

	res := cycle.Result
	if res.NoConnectivity() {
		utils.PrintWarning("No connectivity, nothing was sent")
		return
	}

	summary := fmt.Sprintf("Synced %d operation(s) in %s", res.Synced, res.Duration.Round(time.Millisecond))
	if res.Dropped > 0 {
		summary += fmt.Sprintf(", %d unrecognized dropped", res.Dropped)
	}
	if res.Deferred > 0 {
		summary += fmt.Sprintf(", %d waiting on a failed create", res.Deferred)
	}
	if res.Errors > 0 {
		utils.PrintWarning(fmt.Sprintf("%s, %d failed (see %s)", summary, res.Errors, utils.Command("fyntra sync status")))
	} else {
		utils.PrintSuccess(summary)
	}

	if cycle.RefreshErr != nil {
		utils.PrintWarning(fmt.Sprintf("Refresh failed: %s", describeRemoteError(cycle.RefreshErr)))
	}
}
