// Package dashboard is the live terminal view of the local cache and the sync queue
package dashboard

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dexpositosanchez/fyntra/internal/incident"
	"github.com/dexpositosanchez/fyntra/internal/queue"
	"github.com/dexpositosanchez/fyntra/internal/sync"
)

// Syncer runs one drain-then-refresh cycle
type Syncer interface {
	RunOnce(ctx context.Context, trigger sync.Trigger) sync.Cycle
}

// Refresher reloads the incident cache from the server
type Refresher interface {
	RefreshFromServer(ctx context.Context) error
}

// QueueCounter reports how many operations sit in each queue status
type QueueCounter interface {
	CountByStatus(ctx context.Context) (map[queue.Status]int, error)
}

// Sources are the live streams the dashboard renders
type Sources struct {
	Incidents    <-chan []*incident.CachedIncident
	Connectivity <-chan bool
	Online       bool
}

// Model is the Bubble Tea model for the dashboard
type Model struct {
	ctx       context.Context
	syncer    Syncer
	refresher Refresher
	queue     QueueCounter
	sources   Sources

	keymap  KeyMap
	help    help.Model
	spinner spinner.Model
	table   table.Model
	styles  Styles

	// UI state
	width      int
	height     int
	online     bool
	syncing    bool
	refreshing bool
	incidents  []*incident.CachedIncident
	counts     map[queue.Status]int
	lastCycle  *sync.Cycle
	status     string
	error      string
}

// NewModel initializes and returns a new Model
func NewModel(ctx context.Context, syncer Syncer, refresher Refresher, q QueueCounter, sources Sources) Model {
	styles := DefaultStyles()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	t := table.New(
		table.WithColumns(incidentColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	return Model{
		ctx:       ctx,
		syncer:    syncer,
		refresher: refresher,
		queue:     q,
		sources:   sources,
		keymap:    DefaultKeyMap(),
		help:      help.New(),
		spinner:   s,
		table:     t,
		styles:    styles,
		online:    sources.Online,
		counts:    map[queue.Status]int{},
		status:    "Waiting for data...",
	}
}

// Init starts listening on every source
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForIncidents(m.sources.Incidents),
		waitForConnectivity(m.sources.Connectivity),
		m.loadQueue(),
	)
}
