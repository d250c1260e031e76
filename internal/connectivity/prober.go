package connectivity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/loggy"
)

// Snapshot is what a Platform reports about the network at one point in time
type Snapshot struct {
	HasRoute  bool      // a non-loopback interface is up with a routable address
	Validated bool      // the internet was reached through it
	Transport Transport // TransportUnknown when the platform cannot tell
}

// Platform is the OS-level source of network state
type Platform interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Prober is an Observer that polls a Platform on its own goroutine
type Prober struct {
	platform Platform
	interval time.Duration
	timeout  time.Duration
	logger   *loggy.Logger

	mu    sync.RWMutex
	state State
	subs  *broadcaster

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProber creates a Prober. It reports offline until Start or Probe runs.
func NewProber(platform Platform, interval, timeout time.Duration, logger *loggy.Logger) *Prober {
	return &Prober{
		platform: platform,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		state:    State{Transport: TransportUnknown},
		subs:     newBroadcaster(),
	}
}

// Start probes once synchronously, so IsOnline is meaningful on return, then
// keeps probing every interval until Stop or ctx cancellation.
func (p *Prober) Start(ctx context.Context) {
	p.Probe(ctx)

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Probe(ctx)
			}
		}
	}()
}

// Stop ends polling and closes every subscription
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
		p.cancel = nil
	}
	p.subs.closeAll()
}

// Probe queries the platform once and publishes the result if it changed
func (p *Prober) Probe(ctx context.Context) State {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snap, err := p.platform.Snapshot(probeCtx)
	if err != nil {
		p.logger.Warn("Network state unavailable, keeping last known state", "error", err)
		return p.current()
	}

	next := State{
		Online:    snap.HasRoute && snap.Validated,
		Transport: snap.Transport,
	}
	if next.Transport == "" {
		next.Transport = TransportUnknown
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if next != p.state {
		p.logger.Info("Connectivity changed",
			"online", next.Online,
			"transport", next.Transport,
			"was_online", p.state.Online,
			"was_transport", p.state.Transport,
		)
		p.state = next
		p.subs.publish(next.Online)
	}
	return next
}

// IsOnline implements Observer
func (p *Prober) IsOnline() bool {
	return p.current().Online
}

// IsUnmetered implements Observer
func (p *Prober) IsUnmetered() bool {
	s := p.current()
	return s.Online && s.Transport.Unmetered()
}

// Subscribe implements Observer
func (p *Prober) Subscribe() (<-chan bool, func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.subs.subscribe(p.state.Online)
}

func (p *Prober) current() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Interface is the part of a network interface the NetPlatform looks at
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    []net.IP
}

// NetPlatform derives network state from the host's interfaces and an HTTP probe
type NetPlatform struct {
	probeURL   string
	client     *http.Client
	interfaces func() ([]Interface, error)
}

// NewNetPlatform creates a NetPlatform that validates reachability against probeURL
func NewNetPlatform(probeURL string, timeout time.Duration) *NetPlatform {
	return &NetPlatform{
		probeURL:   probeURL,
		client:     &http.Client{Timeout: timeout},
		interfaces: systemInterfaces,
	}
}

// Snapshot implements Platform. When interfaces cannot be listed it falls back
// to the HTTP probe alone with an unknown transport.
func (p *NetPlatform) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{HasRoute: true, Transport: TransportUnknown}

	ifaces, err := p.interfaces()
	if err != nil {
		loggy.Debug("Listing interfaces failed, using reachability only", "error", err)
	} else {
		snap.HasRoute, snap.Transport = classify(ifaces)
	}

	if !snap.HasRoute {
		return snap, nil
	}

	snap.Validated = p.validate(ctx)
	return snap, nil
}

func (p *NetPlatform) validate(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		loggy.Debug("Connectivity probe failed", "url", p.probeURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// classify reports whether any interface offers a routable address and the best
// transport class among them (ethernet, then wifi, then cellular).
func classify(ifaces []Interface) (bool, Transport) {
	hasRoute := false
	best := TransportUnknown

	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback || !hasRoutableAddr(iface.Addrs) {
			continue
		}
		hasRoute = true

		if t := transportFromName(iface.Name); rank(t) > rank(best) {
			best = t
		}
	}

	return hasRoute, best
}

func hasRoutableAddr(addrs []net.IP) bool {
	for _, ip := range addrs {
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			continue
		}
		return true
	}
	return false
}

func transportFromName(name string) Transport {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "wl"):
		return TransportWiFi
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
		return TransportEthernet
	case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ccmni"):
		return TransportCellular
	default:
		return TransportUnknown
	}
}

func rank(t Transport) int {
	switch t {
	case TransportEthernet:
		return 3
	case TransportWiFi:
		return 2
	case TransportCellular:
		return 1
	default:
		return 0
	}
}

func systemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		entry := Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				entry.Addrs = append(entry.Addrs, ipnet.IP)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
