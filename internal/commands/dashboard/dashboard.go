package dashboard

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dexpositosanchez/fyntra/internal/app"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/sync"
)

// Run shows the dashboard until the user quits. The orchestrator runs for the
// lifetime of the dashboard, so reconnecting syncs on its own.
func Run(ctx context.Context, application *app.App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	incidents, stopIncidents, err := application.Incidents.Observe(ctx)
	if err != nil {
		return fmt.Errorf("failed to observe incidents: %w", err)
	}
	defer stopIncidents()

	updates, unsubscribe := application.Observer.Subscribe()
	defer unsubscribe()

	model := NewModel(ctx, application.Orchestrator, application.Incidents, application.Queue, Sources{
		Incidents:    incidents,
		Connectivity: updates,
		Online:       application.Observer.IsOnline(),
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Manual cycles come back through the model's own command
	application.Orchestrator.OnCycle(func(cycle sync.Cycle) {
		if cycle.Trigger != sync.TriggerManual {
			p.Send(CycleMsg{Cycle: cycle})
		}
	})
	if err := application.Orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	defer application.Orchestrator.Stop()

	if _, err := p.Run(); err != nil {
		loggy.Error("Error running dashboard", "error", err)
		return fmt.Errorf("error running dashboard: %w", err)
	}

	loggy.Info("Dashboard finished")
	return nil
}
