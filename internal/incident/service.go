package incident

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/connectivity"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/queue"
)

// Service is the incident repository used by the UI. While online it talks to
// the API and writes results through to the cache; while offline it writes to
// the cache and queues the mutation for replay.
type Service struct {
	cache    *Cache
	api      API
	queue    queue.Repository
	observer connectivity.Observer
	logger   *loggy.Logger
	tempIDs  *tempIDSource
	now      func() time.Time
}

// NewService creates a new incident service backed by the cached_incidents table
func NewService(db *sql.DB, api API, q queue.Repository, observer connectivity.Observer, logger *loggy.Logger) *Service {
	return NewServiceWithRepository(NewSQLRepository(db, logger), api, q, observer, logger)
}

// NewServiceWithRepository creates a new incident service with a custom repository (for testing)
func NewServiceWithRepository(repo Repository, api API, q queue.Repository, observer connectivity.Observer, logger *loggy.Logger) *Service {
	return &Service{
		cache:    NewCache(repo, logger),
		api:      api,
		queue:    q,
		observer: observer,
		logger:   logger,
		tempIDs:  newTempIDSource(),
		now:      time.Now,
	}
}

// Cache returns the live cache the service writes to
func (s *Service) Cache() *Cache {
	return s.cache
}

// Observe streams the cached incidents; it never touches the network
func (s *Service) Observe(ctx context.Context) (<-chan []*CachedIncident, func(), error) {
	return s.cache.Observe(ctx)
}

// List returns the cached incidents
func (s *Service) List(ctx context.Context) ([]*CachedIncident, error) {
	return s.cache.GetAll(ctx)
}

// RefreshFromServer replaces the cache with the server's collection. It does
// nothing while offline and leaves the cache untouched on failure.
func (s *Service) RefreshFromServer(ctx context.Context) error {
	if !s.observer.IsOnline() {
		s.logger.Debug("Skipping incident refresh while offline")
		return nil
	}

	fetched, err := s.api.List(ctx)
	if err != nil {
		return fmt.Errorf("refreshing incidents: %w", err)
	}

	now := s.now()
	incs := make([]*CachedIncident, 0, len(fetched))
	for _, inc := range fetched {
		incs = append(incs, NewSynced(inc, now))
	}

	if err := s.cache.ReplaceAll(ctx, incs); err != nil {
		return fmt.Errorf("replacing cached incidents: %w", err)
	}

	s.logger.Info("Refreshed incidents from server", "count", len(incs))
	return nil
}

// GetByID prefers the server when online and falls back to the cache
func (s *Service) GetByID(ctx context.Context, id int64) (*CachedIncident, error) {
	if s.online(id) {
		inc, err := s.api.Get(ctx, id)
		if err == nil {
			cached := NewSynced(*inc, s.now())
			if err := s.cache.Upsert(ctx, cached); err != nil {
				s.logger.Warn("Failed to cache fetched incident", "incident_id", id, "error", err)
			}
			return cached, nil
		}
		s.logger.Warn("Fetching incident failed, using cache", "incident_id", id, "error", err)
	}

	return s.cache.GetByID(ctx, id)
}

// Create posts the incident when online. Offline it caches a pending incident
// with a temporary id and queues the create.
func (s *Service) Create(ctx context.Context, payload IncidentCreate) (*CachedIncident, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling incident: %w", err)
	}

	if s.observer.IsOnline() {
		inc, err := s.api.Create(ctx, body)
		if err != nil {
			return nil, err
		}

		cached := NewSynced(*inc, s.now())
		if err := s.cache.Upsert(ctx, cached); err != nil {
			return nil, fmt.Errorf("caching created incident: %w", err)
		}
		return cached, nil
	}

	local := s.provisional(payload)
	if err := s.cache.Upsert(ctx, local); err != nil {
		return nil, fmt.Errorf("caching provisional incident: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, queue.OperationCreate, endpoint(local.ID), body); err != nil {
		if delErr := s.cache.DeleteByID(ctx, local.ID); delErr != nil {
			s.logger.Error("Failed to remove provisional incident", "incident_id", local.ID, "error", delErr)
		}
		return nil, fmt.Errorf("queueing incident creation: %w", err)
	}

	s.logger.Info("Queued incident creation", "incident_id", local.ID)
	return local, nil
}

// Update puts the change when online. Offline it applies the change to the
// cached incident, marks it pending and queues the update.
func (s *Service) Update(ctx context.Context, id int64, upd IncidentUpdate) (*CachedIncident, error) {
	if upd.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidPayload)
	}

	body, err := json.Marshal(upd)
	if err != nil {
		return nil, fmt.Errorf("marshaling incident update: %w", err)
	}

	if s.online(id) {
		inc, err := s.api.Update(ctx, id, body)
		if err != nil {
			return nil, err
		}
		if inc.ID == 0 {
			if inc, err = s.api.Get(ctx, id); err != nil {
				return nil, err
			}
		}

		cached := NewSynced(*inc, s.now())
		if err := s.cache.Upsert(ctx, cached); err != nil {
			return nil, fmt.Errorf("caching updated incident: %w", err)
		}
		return cached, nil
	}

	local, err := s.cache.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := *local

	upd.ApplyTo(&local.Incident)
	local.SyncStatus = SyncStatusPending
	if local.PendingAction == PendingNone {
		local.PendingAction = PendingUpdate
	}

	if err := s.cache.Upsert(ctx, local); err != nil {
		return nil, fmt.Errorf("caching incident update: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, queue.OperationUpdate, endpoint(id), body); err != nil {
		s.restore(ctx, &previous)
		return nil, fmt.Errorf("queueing incident update: %w", err)
	}

	s.logger.Info("Queued incident update", "incident_id", id)
	return local, nil
}

// Delete removes the incident on the server when online. Offline the cached
// incident stays in place, pending deletion, and the delete is queued.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if s.online(id) {
		if err := s.api.Delete(ctx, id); err != nil {
			return err
		}
		if err := s.cache.DeleteByID(ctx, id); err != nil {
			return fmt.Errorf("removing deleted incident from cache: %w", err)
		}
		return nil
	}

	local, err := s.cache.GetByID(ctx, id)
	if err != nil {
		return err
	}

	previous := *local

	local.SyncStatus = SyncStatusPending
	local.PendingAction = PendingDelete
	if err := s.cache.Upsert(ctx, local); err != nil {
		return fmt.Errorf("caching incident deletion: %w", err)
	}

	body, err := json.Marshal(struct {
		ID int64 `json:"id"`
	}{ID: id})
	if err != nil {
		return fmt.Errorf("marshaling incident deletion: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, queue.OperationDelete, endpoint(id), body); err != nil {
		s.restore(ctx, &previous)
		return fmt.Errorf("queueing incident deletion: %w", err)
	}

	s.logger.Info("Queued incident deletion", "incident_id", id)
	return nil
}

// Handler returns the replay handler the sync engine uses for this resource
func (s *Service) Handler() *ReplayHandler {
	return NewReplayHandler(s.api, s.cache, s.logger)
}

// restore puts back the cached row a failed enqueue was meant to cover
func (s *Service) restore(ctx context.Context, previous *CachedIncident) {
	if err := s.cache.Upsert(ctx, previous); err != nil {
		s.logger.Error("Failed to restore cached incident", "incident_id", previous.ID, "error", err)
	}
}

// online reports whether a call about id can go to the server. Incidents with
// a temporary id exist only locally until their queued create replays, so they
// always take the queue path to keep replay order.
func (s *Service) online(id int64) bool {
	return s.observer.IsOnline() && !IsTemporaryID(id)
}

func (s *Service) provisional(payload IncidentCreate) *CachedIncident {
	prioridad := payload.Prioridad
	if prioridad == "" {
		prioridad = defaultPrioridad
	}

	return &CachedIncident{
		Incident: Incident{
			ID:          s.tempIDs.next(),
			Titulo:      payload.Titulo,
			Descripcion: payload.Descripcion,
			Prioridad:   prioridad,
			Estado:      defaultEstado,
			InmuebleID:  payload.InmuebleID,
			ProveedorID: payload.ProveedorID,
			FechaAlta:   Timestamp{s.now().UTC()},
			Inmueble:    &PropertyRef{ID: payload.InmuebleID},
		},
		SyncStatus:    SyncStatusPending,
		PendingAction: PendingCreate,
	}
}

func endpoint(id int64) string {
	return Resource + "/" + strconv.FormatInt(id, 10)
}

// IsNotFound reports whether err means the incident is not cached
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
