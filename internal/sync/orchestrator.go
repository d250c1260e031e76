package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dexpositosanchez/fyntra/internal/config"
	"github.com/dexpositosanchez/fyntra/internal/connectivity"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/remote"
)

// ErrAlreadyStarted is returned by Start on a running orchestrator
var ErrAlreadyStarted = errors.New("orchestrator already started")

// Drainer replays the outbound queue
type Drainer interface {
	Drain(ctx context.Context, trigger Trigger) (*Result, error)
}

// Refresher reloads a local cache from the server
type Refresher interface {
	RefreshFromServer(ctx context.Context) error
}

// Cycle reports one drain-then-refresh run
type Cycle struct {
	Trigger    Trigger
	StartedAt  time.Time
	Result     *Result
	DrainErr   error
	RefreshErr error // first refresh that still failed after its retries
}

// Orchestrator drains the queue and refreshes caches every time the device
// comes online. All cycles run on one worker goroutine.
type Orchestrator struct {
	drainer    Drainer
	observer   connectivity.Observer
	cfg        config.SyncConfig
	refreshers []Refresher
	logger     *loggy.Logger

	mu          gosync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	onCycle     func(Cycle)
	wg          gosync.WaitGroup
}

// NewOrchestrator creates an orchestrator. Refreshers run in order after each drain.
func NewOrchestrator(drainer Drainer, observer connectivity.Observer, cfg config.SyncConfig, logger *loggy.Logger, refreshers ...Refresher) *Orchestrator {
	return &Orchestrator{
		drainer:    drainer,
		observer:   observer,
		cfg:        cfg,
		refreshers: refreshers,
		logger:     logger,
	}
}

// OnCycle sets a callback invoked on the worker goroutine after every cycle
func (o *Orchestrator) OnCycle(fn func(Cycle)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onCycle = fn
}

// Start subscribes to connectivity changes. A transition into online,
// including being online at start, schedules a cycle; transitions that arrive
// while a cycle runs collapse into a single follow-up cycle.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	updates, unsubscribe := o.observer.Subscribe()
	o.cancel = cancel
	o.unsubscribe = unsubscribe

	pending := make(chan struct{}, 1)

	o.wg.Add(2)
	go o.listen(ctx, updates, pending)
	go o.work(ctx, pending)

	o.logger.Info("Sync orchestrator started")
	return nil
}

// Stop unsubscribes from connectivity changes and waits for a running cycle
// to observe cancellation. It is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, unsubscribe := o.cancel, o.unsubscribe
	o.cancel, o.unsubscribe = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}

	unsubscribe()
	cancel()
	o.wg.Wait()
	o.logger.Info("Sync orchestrator stopped")
}

func (o *Orchestrator) listen(ctx context.Context, updates <-chan bool, pending chan<- struct{}) {
	defer o.wg.Done()

	wasOnline := false
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-updates:
			if !ok {
				return
			}
			if online && !wasOnline {
				o.logger.Debug("Connectivity restored, scheduling sync")
				select {
				case pending <- struct{}{}:
				default:
				}
			}
			wasOnline = online
		}
	}
}

func (o *Orchestrator) work(ctx context.Context, pending <-chan struct{}) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pending:
			o.RunOnce(ctx, TriggerConnectivity)
		}
	}
}

// RunOnce drains the queue and then refreshes every cache. The refresh is
// skipped when the drain found the device offline.
func (o *Orchestrator) RunOnce(ctx context.Context, trigger Trigger) Cycle {
	cycle := Cycle{Trigger: trigger, StartedAt: time.Now()}
	logger := o.logger.With("trigger", trigger)

	cycle.Result, cycle.DrainErr = o.drainer.Drain(ctx, trigger)
	if cycle.DrainErr != nil {
		logger.Error("Drain failed", "error", cycle.DrainErr)
	}

	if cycle.Result == nil || !cycle.Result.NoConnectivity() {
		for _, r := range o.refreshers {
			if err := o.refresh(ctx, r); err != nil {
				logger.Error("Refresh failed", "error", err)
				if cycle.RefreshErr == nil {
					cycle.RefreshErr = err
				}
			}
		}
	}

	o.mu.Lock()
	onCycle := o.onCycle
	o.mu.Unlock()
	if onCycle != nil {
		onCycle(cycle)
	}

	return cycle
}

// refresh retries transient failures with exponential backoff. Auth and client
// errors are not retried.
func (o *Orchestrator) refresh(ctx context.Context, r Refresher) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RefreshInitialDelay
	eb.MaxInterval = o.cfg.RefreshMaxDelay
	eb.MaxElapsedTime = 0
	eb.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.cfg.RefreshRetries)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := r.RefreshFromServer(ctx)
		if err == nil {
			return nil
		}

		switch remote.ClassifyError(err) {
		case remote.ErrorTypeAuth, remote.ErrorTypeClient:
			return backoff.Permanent(err)
		}

		o.logger.Warn("Refresh attempt failed", "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(operation, policy)
}
