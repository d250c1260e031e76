package dashboard

import (
	"fmt"
	"strings"

	"github.com/dexpositosanchez/fyntra/internal/queue"
)

// View renders the dashboard.
func (m Model) View() string {
	var sb strings.Builder

	network := m.styles.Error.Render("● offline")
	if m.online {
		network = m.styles.Success.Render("● online")
	}
	sb.WriteString(m.styles.Title.Render("Fyntra") + "  " + network)
	sb.WriteString("\n\n")

	pending := m.counts[queue.StatusPending] + m.counts[queue.StatusSyncing]
	queueLine := fmt.Sprintf("Queue: %d pending", pending)
	if failed := m.counts[queue.StatusError]; failed > 0 {
		queueLine += ", " + m.styles.Error.Render(fmt.Sprintf("%d failed", failed))
	}
	sb.WriteString(queueLine)
	sb.WriteString("\n")

	if m.lastCycle != nil {
		sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("Last sync (%s) at %s: %s",
			m.lastCycle.Trigger,
			m.lastCycle.StartedAt.Local().Format("15:04:05"),
			cycleSummary(*m.lastCycle),
		)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if len(m.incidents) == 0 {
		sb.WriteString(m.styles.Section.Render(m.styles.Subtle.Render("No incidents cached yet. Press r to load them.")))
	} else {
		sb.WriteString(m.styles.Section.Render(m.table.View()))
	}
	sb.WriteString("\n")

	status := m.status
	if m.busy() {
		status = m.spinner.View() + " " + status
	}
	sb.WriteString(m.styles.StatusBar.Render(status))
	sb.WriteString("\n")

	if m.error != "" {
		sb.WriteString(m.styles.Error.Render("Error: " + m.error))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keymap))
	return sb.String()
}
