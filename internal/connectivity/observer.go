// Package connectivity reports whether the device can reach the internet and over
// which kind of transport, both as a point-in-time query and as a stream of changes.
package connectivity

import (
	"sync"
)

// Transport is the class of network the active route goes through
type Transport string

// Transport classes
const (
	TransportUnknown  Transport = "unknown"
	TransportWiFi     Transport = "wifi"
	TransportEthernet Transport = "ethernet"
	TransportCellular Transport = "cellular"
)

// Unmetered reports whether traffic on the transport is free of data caps
func (t Transport) Unmetered() bool {
	return t == TransportWiFi || t == TransportEthernet
}

// Observer exposes the current network state and its changes.
// Implementations never return errors: when details are unavailable they
// answer from reachability alone.
type Observer interface {
	// IsOnline reports whether a validated route to the internet exists
	IsOnline() bool

	// IsUnmetered reports whether the current transport is unmetered
	IsUnmetered() bool

	// Subscribe returns a channel receiving the online state on every change of
	// availability or transport class, starting with the current state.
	// The returned func unsubscribes and closes the channel.
	Subscribe() (<-chan bool, func())
}

// State is a snapshot of the observed network
type State struct {
	Online    bool
	Transport Transport
}

// broadcaster fans state changes out to subscribers without blocking the
// notifier. Unread values are coalesced to the latest one, except that an
// unread offline is kept ahead of a newer online so no reconnect is lost.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan bool)}
}

func (b *broadcaster) subscribe(current bool) (<-chan bool, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan bool, 2)
	ch <- current
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broadcaster) publish(online bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		missedOffline := false
	drain:
		for {
			select {
			case unread := <-ch:
				missedOffline = missedOffline || !unread
			default:
				break drain
			}
		}

		if online && missedOffline {
			ch <- false
		}
		ch <- online
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
