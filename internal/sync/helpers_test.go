package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/config"
	"github.com/dexpositosanchez/fyntra/internal/database"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/queue"
	"github.com/stretchr/testify/require"
)

// setupStore opens a migrated in-memory database holding the queue and sync logs
func setupStore(t *testing.T) (*sql.DB, *queue.SQLRepository) {
	t.Helper()

	cfg := config.New()
	cfg.Database = config.DatabaseConfig{Path: ":memory:", BusyTimeout: 5000, ConnMaxLife: time.Hour}

	require.NoError(t, database.InitDB(cfg))
	t.Cleanup(func() { _ = database.CloseDB() })
	require.NoError(t, database.RunMigrations())

	conn, err := database.DB()
	require.NoError(t, err)

	return conn, queue.NewSQLRepository(conn, loggy.NewNoopLogger())
}

type call struct {
	method  string
	id      int64
	payload string
}

func (c call) String() string {
	return fmt.Sprintf("%s %d", c.method, c.id)
}

// fakeHandler records replayed operations. fail decides per call whether it errors.
type fakeHandler struct {
	mu     gosync.Mutex
	calls  []call
	nextID int64
	fail   func(c call) error
	failed []int64
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{nextID: 100}
}

func (h *fakeHandler) record(c call) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, c)
	if h.fail != nil {
		return h.fail(c)
	}
	return nil
}

func (h *fakeHandler) Create(_ context.Context, payload json.RawMessage) (int64, error) {
	if err := h.record(call{method: "POST", payload: string(payload)}); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	return id, nil
}

func (h *fakeHandler) Update(_ context.Context, id int64, payload json.RawMessage) error {
	return h.record(call{method: "PUT", id: id, payload: string(payload)})
}

func (h *fakeHandler) Delete(_ context.Context, id int64) error {
	return h.record(call{method: "DELETE", id: id})
}

func (h *fakeHandler) MarkFailed(_ context.Context, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, id)
	return nil
}

func (h *fakeHandler) summary() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	for i, c := range h.calls {
		out[i] = c.String()
	}
	return out
}
