package dashboard

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dexpositosanchez/fyntra/internal/incident"
	"github.com/dexpositosanchez/fyntra/internal/sync"
)

// waitForIncidents blocks for the next cache snapshot; Update re-arms it
func waitForIncidents(ch <-chan []*incident.CachedIncident) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snapshot, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return IncidentsMsg(snapshot)
	}
}

func waitForConnectivity(ch <-chan bool) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		online, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return ConnectivityMsg(online)
	}
}

func (m Model) runSync() tea.Cmd {
	return func() tea.Msg {
		return CycleMsg{Cycle: m.syncer.RunOnce(m.ctx, sync.TriggerManual)}
	}
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		return RefreshDoneMsg{Err: m.refresher.RefreshFromServer(m.ctx)}
	}
}

func (m Model) loadQueue() tea.Cmd {
	return func() tea.Msg {
		counts, err := m.queue.CountByStatus(m.ctx)
		return QueueMsg{Counts: counts, Err: err}
	}
}
