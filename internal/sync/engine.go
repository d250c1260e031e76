package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/connectivity"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/queue"
)

// Handler replays the operations of one resource family against the API
type Handler interface {
	// Create posts the payload to the collection and returns the server id
	Create(ctx context.Context, payload json.RawMessage) (int64, error)
	Update(ctx context.Context, id int64, payload json.RawMessage) error
	Delete(ctx context.Context, id int64) error
}

// StatusMarker is implemented by handlers that flag the cached entity when its
// operation is given up on
type StatusMarker interface {
	MarkFailed(ctx context.Context, id int64) error
}

// Engine drains the outbound queue. Operations are replayed one at a time in
// queue order and drains never overlap.
type Engine struct {
	queue      queue.Repository
	observer   connectivity.Observer
	logs       Repository
	maxRetries int
	logger     *loggy.Logger
	now        func() time.Time

	mu       gosync.Mutex
	handlers map[string]Handler
}

// NewEngine creates a sync engine. logs may be nil to skip sync log records.
func NewEngine(q queue.Repository, observer connectivity.Observer, logs Repository, maxRetries int, logger *loggy.Logger) *Engine {
	return &Engine{
		queue:      q,
		observer:   observer,
		logs:       logs,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
		handlers:   make(map[string]Handler),
	}
}

// Register routes operations whose endpoint starts with family to h
func (e *Engine) Register(family string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[family] = h
}

// drainState is the bookkeeping of one drain
type drainState struct {
	res      Result
	firstErr error
	// remapped maps provisional endpoints to server endpoints for creates
	// replayed during this drain
	remapped map[string]string
	// awaiting holds provisional endpoints whose create failed this drain
	awaiting map[string]bool
}

// Drain replays every eligible queued operation once. It returns a
// NoConnectivity result without touching the queue when offline. The error is
// reserved for local storage failures; failed replays are counted instead.
func (e *Engine) Drain(ctx context.Context, trigger Trigger) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.now()
	logger := e.logger.With("trigger", trigger)

	if !e.observer.IsOnline() {
		logger.Debug("Skipping drain while offline")
		return &Result{Outcome: OutcomeNoConnectivity}, nil
	}

	if n, err := e.queue.ResetInterrupted(ctx); err != nil {
		return nil, fmt.Errorf("resetting interrupted operations: %w", err)
	} else if n > 0 {
		logger.Warn("Recovered operations interrupted mid-sync", "count", n)
	}

	ops, err := e.queue.ListPending(ctx, e.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("listing pending operations: %w", err)
	}

	state := &drainState{
		res:      Result{Outcome: OutcomeCompleted},
		remapped: make(map[string]string),
		awaiting: make(map[string]bool),
	}

	if len(ops) == 0 {
		state.res.Duration = e.now().Sub(started)
		return &state.res, nil
	}

	logger.Info("Draining outbound queue", "operations", len(ops))

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.replay(ctx, logger, op, state); err != nil {
			return nil, err
		}
	}

	swept, err := e.queue.SweepSynced(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweeping synced operations: %w", err)
	}
	logger.Debug("Swept synced operations", "count", swept)

	state.res.Duration = e.now().Sub(started)
	e.record(ctx, trigger, started, state)

	logger.Info("Drain completed",
		"synced", state.res.Synced,
		"errors", state.res.Errors,
		"dropped", state.res.Dropped,
		"deferred", state.res.Deferred,
		"duration", state.res.Duration)

	return &state.res, nil
}

// replay runs one operation and records its outcome in the queue
func (e *Engine) replay(ctx context.Context, logger *loggy.Logger, op *queue.PendingOperation, state *drainState) error {
	endpoint := op.Endpoint
	if mapped, ok := state.remapped[endpoint]; ok {
		endpoint = mapped
	}

	logger = logger.With("operation_id", op.ID, "type", op.OperationType, "endpoint", endpoint)

	decoded, err := decodeOperation(op, endpoint)
	var handler Handler
	if err == nil {
		handler, err = e.handler(decoded.family())
	}
	if err != nil {
		logger.Warn("Dropping operation that cannot be replayed", "error", err)
		if err := e.queue.MarkStatus(ctx, op.ID, queue.StatusSynced, ""); err != nil {
			return fmt.Errorf("dropping operation %d: %w", op.ID, err)
		}
		state.res.Synced++
		state.res.Dropped++
		return nil
	}

	if target, ok := provisionalTarget(decoded); ok && state.awaiting[target] {
		logger.Debug("Deferring operation until its create replays")
		state.res.Deferred++
		return nil
	}

	if err := e.queue.MarkStatus(ctx, op.ID, queue.StatusSyncing, ""); err != nil {
		return fmt.Errorf("marking operation %d syncing: %w", op.ID, err)
	}

	serverID, entityID, err := e.dispatch(ctx, handler, decoded)
	if err != nil {
		if c, ok := decoded.(createOp); ok && c.localID != 0 {
			state.awaiting[itemEndpoint(c.resource, c.localID)] = true
		}
		return e.fail(ctx, logger, op, handler, entityID, err, state)
	}

	c, isCreate := decoded.(createOp)
	if !isCreate || c.localID == 0 {
		if err := e.queue.MarkStatus(ctx, op.ID, queue.StatusSynced, ""); err != nil {
			return fmt.Errorf("marking operation %d synced: %w", op.ID, err)
		}
		state.res.Synced++
		logger.Debug("Replayed operation")
		return nil
	}

	from := itemEndpoint(c.resource, c.localID)
	to := itemEndpoint(c.resource, serverID)

	n, err := e.queue.CompleteCreate(ctx, op.ID, from, to)
	if err != nil {
		return fmt.Errorf("remapping %s to %s: %w", from, to, err)
	}
	state.remapped[from] = to
	state.res.Synced++
	logger.Debug("Replayed operation")

	if n > 0 {
		logger.Info("Remapped queued operations to server id", "from", from, "to", to, "count", n)
	}

	return nil
}

// provisionalTarget returns the endpoint of the not yet created entity an
// update or delete points at
func provisionalTarget(op operation) (string, bool) {
	switch o := op.(type) {
	case updateOp:
		return itemEndpoint(o.resource, o.id), o.id < 0
	case deleteOp:
		return itemEndpoint(o.resource, o.id), o.id < 0
	default:
		return "", false
	}
}

// dispatch calls the handler. It returns the server id for creates and the
// id of the affected entity.
func (e *Engine) dispatch(ctx context.Context, h Handler, op operation) (int64, int64, error) {
	switch o := op.(type) {
	case createOp:
		id, err := h.Create(ctx, o.payload)
		return id, o.localID, err
	case updateOp:
		if o.id < 0 {
			return 0, o.id, errCreatePending(o.resource, o.id)
		}
		return 0, o.id, h.Update(ctx, o.id, o.payload)
	case deleteOp:
		if o.id < 0 {
			return 0, o.id, errCreatePending(o.resource, o.id)
		}
		return 0, o.id, h.Delete(ctx, o.id)
	default:
		return 0, 0, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}
}

// errCreatePending fails operations on an entity whose create has not replayed
func errCreatePending(family string, id int64) error {
	return fmt.Errorf("%s has not been created on the server yet", itemEndpoint(family, id))
}

func (e *Engine) fail(ctx context.Context, logger *loggy.Logger, op *queue.PendingOperation, h Handler, entityID int64, cause error, state *drainState) error {
	state.res.Errors++
	if state.firstErr == nil {
		state.firstErr = cause
	}

	parked, err := e.queue.RecordFailure(ctx, op.ID, cause.Error(), e.maxRetries)
	if err != nil {
		return fmt.Errorf("recording failure of operation %d: %w", op.ID, err)
	}

	if !parked {
		logger.Warn("Operation failed, will retry", "retry_count", op.RetryCount+1, "error", cause)
		return nil
	}

	logger.Error("Operation failed too many times, giving up", "retry_count", op.RetryCount+1, "error", cause)

	if marker, ok := h.(StatusMarker); ok && entityID != 0 {
		if err := marker.MarkFailed(ctx, entityID); err != nil {
			logger.Warn("Failed to flag entity after giving up", "entity_id", entityID, "error", err)
		}
	}
	return nil
}

func (e *Engine) handler(family string) (Handler, error) {
	h, ok := e.handlers[family]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %q", ErrUnknownOperation, family)
	}
	return h, nil
}

func (e *Engine) record(ctx context.Context, trigger Trigger, started time.Time, state *drainState) {
	if e.logs == nil {
		return
	}

	log := NewSyncLog(trigger, started, &state.res, state.firstErr)
	if err := e.logs.CreateSyncLog(ctx, log); err != nil {
		e.logger.Warn("Failed to record sync log", "error", err)
	}
}

// IsUnknownOperation reports whether err marks an operation that cannot be replayed
func IsUnknownOperation(err error) bool {
	return errors.Is(err, ErrUnknownOperation)
}
