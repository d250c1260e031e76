package incident

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/remote"
)

// ReplayHandler sends queued incident mutations to the API on behalf of the
// sync engine. It does not write results into the cache; the refresh that
// follows every drain brings replayed incidents back as synced.
type ReplayHandler struct {
	api    API
	cache  Repository
	logger *loggy.Logger
}

// NewReplayHandler creates a replay handler
func NewReplayHandler(api API, cache Repository, logger *loggy.Logger) *ReplayHandler {
	return &ReplayHandler{api: api, cache: cache, logger: logger}
}

// Create posts a queued creation and returns the id the server assigned
func (h *ReplayHandler) Create(ctx context.Context, payload json.RawMessage) (int64, error) {
	inc, err := h.api.Create(ctx, payload)
	if err != nil {
		return 0, err
	}
	if inc.ID <= 0 {
		return 0, fmt.Errorf("server returned invalid incident id %d", inc.ID)
	}
	return inc.ID, nil
}

// Update puts a queued partial update
func (h *ReplayHandler) Update(ctx context.Context, id int64, payload json.RawMessage) error {
	_, err := h.api.Update(ctx, id, payload)
	return err
}

// Delete replays a queued deletion. An incident that is already gone counts as
// deleted, so replaying after a crash is harmless.
func (h *ReplayHandler) Delete(ctx context.Context, id int64) error {
	err := h.api.Delete(ctx, id)
	if remote.IsNotFound(err) {
		h.logger.Debug("Incident already deleted on server", "incident_id", id)
		return nil
	}
	return err
}

// MarkFailed flags the cached incident whose operation was given up on
func (h *ReplayHandler) MarkFailed(ctx context.Context, id int64) error {
	err := h.cache.UpdateSyncStatus(ctx, id, SyncStatusError)
	if IsNotFound(err) {
		return nil
	}
	return err
}
