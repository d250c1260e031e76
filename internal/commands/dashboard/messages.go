package dashboard

import (
	"github.com/dexpositosanchez/fyntra/internal/incident"
	"github.com/dexpositosanchez/fyntra/internal/queue"
	"github.com/dexpositosanchez/fyntra/internal/sync"
)

type (
	// IncidentsMsg carries a new snapshot of the incident cache
	IncidentsMsg []*incident.CachedIncident

	// ConnectivityMsg reports a change of the online state
	ConnectivityMsg bool

	// CycleMsg is sent when a drain-then-refresh cycle finished
	CycleMsg struct {
		Cycle sync.Cycle
	}

	// RefreshDoneMsg is sent when a manual refresh finished
	RefreshDoneMsg struct {
		Err error
	}

	// QueueMsg carries the outbound queue counts
	QueueMsg struct {
		Counts map[queue.Status]int
		Err    error
	}

	// streamClosedMsg tells the model a subscription ended
	streamClosedMsg struct{}
)
