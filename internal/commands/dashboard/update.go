package dashboard

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dexpositosanchez/fyntra/internal/incident"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/sync"
	"github.com/dexpositosanchez/fyntra/internal/utils"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.table.SetColumns(incidentColumns(msg.Width - 4))
		m.table.SetWidth(msg.Width - 4)
		m.table.SetHeight(max(msg.Height-12, 3))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keymap.Sync):
			if !m.syncing {
				m.syncing = true
				m.error = ""
				m.status = "Synchronizing..."
				cmds = append(cmds, m.runSync(), m.spinner.Tick)
			}
		case key.Matches(msg, m.keymap.Refresh):
			if !m.refreshing {
				m.refreshing = true
				m.error = ""
				m.status = "Refreshing from server..."
				cmds = append(cmds, m.refresh(), m.spinner.Tick)
			}
		default:
			m.table, cmd = m.table.Update(msg)
			cmds = append(cmds, cmd)
		}

	case spinner.TickMsg:
		if m.busy() {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case IncidentsMsg:
		m.incidents = msg
		m.table.SetRows(incidentRows(msg))
		if !m.busy() {
			m.status = fmt.Sprintf("%d incident(s) in cache", len(msg))
		}
		cmds = append(cmds, waitForIncidents(m.sources.Incidents), m.loadQueue())

	case ConnectivityMsg:
		m.online = bool(msg)
		if m.online {
			m.status = "Back online"
		} else {
			m.status = "Offline, changes are queued"
		}
		cmds = append(cmds, waitForConnectivity(m.sources.Connectivity))

	case CycleMsg:
		cycle := msg.Cycle
		m.lastCycle = &cycle
		if cycle.Trigger == sync.TriggerManual {
			m.syncing = false
		}
		m.status = cycleSummary(cycle)
		if cycle.DrainErr != nil {
			m.error = cycle.DrainErr.Error()
		} else if cycle.RefreshErr != nil {
			m.error = "refresh: " + cycle.RefreshErr.Error()
		}
		loggy.Debug("Dashboard received sync cycle", "trigger", cycle.Trigger, "status", m.status)
		cmds = append(cmds, m.loadQueue())

	case RefreshDoneMsg:
		m.refreshing = false
		if msg.Err != nil {
			m.error = "refresh: " + msg.Err.Error()
			m.status = "Refresh failed"
		} else {
			m.status = "Cache refreshed"
		}

	case QueueMsg:
		if msg.Err != nil {
			m.error = "queue: " + msg.Err.Error()
		} else {
			m.counts = msg.Counts
		}

	case streamClosedMsg:
		// Subscriptions end on shutdown; nothing left to wait for
	}

	return m, tea.Batch(cmds...)
}

func (m Model) busy() bool {
	return m.syncing || m.refreshing
}

func cycleSummary(cycle sync.Cycle) string {
	res := cycle.Result
	switch {
	case cycle.DrainErr != nil:
		return "Sync failed"
	case res == nil:
		return "Sync finished"
	case res.NoConnectivity():
		return "No connectivity, nothing sent"
	case res.Errors > 0:
		return fmt.Sprintf("Synced %d, %d failed", res.Synced, res.Errors)
	default:
		return fmt.Sprintf("Synced %d operation(s)", res.Synced)
	}
}

func incidentColumns(width int) []table.Column {
	fixed := 10 + 12 + 10 + 18
	title := max(width-fixed-10, 12)
	return []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Título", Width: title},
		{Title: "Estado", Width: 12},
		{Title: "Prioridad", Width: 10},
		{Title: "Sync", Width: 18},
	}
}

func incidentRows(incidents []*incident.CachedIncident) []table.Row {
	rows := make([]table.Row, 0, len(incidents))
	for _, inc := range incidents {
		label := string(inc.SyncStatus)
		if inc.PendingAction != incident.PendingNone {
			label += " (" + string(inc.PendingAction) + ")"
		}
		rows = append(rows, table.Row{
			strconv.FormatInt(inc.ID, 10),
			utils.Truncate(inc.Titulo, 60),
			inc.Estado,
			inc.Prioridad,
			label,
		})
	}
	return rows
}
