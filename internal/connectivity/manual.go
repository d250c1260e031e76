package connectivity

import "sync"

// Manual is an Observer whose state is set explicitly. The CLI uses it for
// --offline and tests use it to drive transitions.
type Manual struct {
	mu    sync.RWMutex
	state State
	subs  *broadcaster
}

// NewManual creates a Manual observer with the given initial state
func NewManual(online bool, transport Transport) *Manual {
	return &Manual{
		state: State{Online: online, Transport: transport},
		subs:  newBroadcaster(),
	}
}

// IsOnline implements Observer
func (m *Manual) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Online
}

// IsUnmetered implements Observer
func (m *Manual) IsUnmetered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Online && m.state.Transport.Unmetered()
}

// Subscribe implements Observer
func (m *Manual) Subscribe() (<-chan bool, func()) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subs.subscribe(m.state.Online)
}

// SetOnline changes availability, notifying subscribers when it differs
func (m *Manual) SetOnline(online bool) {
	m.set(State{Online: online, Transport: m.current().Transport})
}

// SetTransport changes the transport class, notifying subscribers when it differs
func (m *Manual) SetTransport(transport Transport) {
	m.set(State{Online: m.current().Online, Transport: transport})
}

func (m *Manual) current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manual) set(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next == m.state {
		return
	}
	m.state = next
	m.subs.publish(next.Online)
}
