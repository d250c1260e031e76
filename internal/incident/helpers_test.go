package incident

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/dexpositosanchez/fyntra/internal/queue"
	"github.com/stretchr/testify/mock"
)

// MockAPI is a mock implementation of the API interface
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) List(ctx context.Context) ([]Incident, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Incident), args.Error(1)
}

func (m *MockAPI) Get(ctx context.Context, id int64) (*Incident, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Incident), args.Error(1)
}

func (m *MockAPI) Create(ctx context.Context, payload json.RawMessage) (*Incident, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Incident), args.Error(1)
}

func (m *MockAPI) Update(ctx context.Context, id int64, payload json.RawMessage) (*Incident, error) {
	args := m.Called(ctx, id, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Incident), args.Error(1)
}

func (m *MockAPI) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// memoryRepository is an in-memory Repository
type memoryRepository struct {
	mu   sync.Mutex
	rows map[int64]CachedIncident
}

func newMemoryRepository(incs ...*CachedIncident) *memoryRepository {
	r := &memoryRepository{rows: make(map[int64]CachedIncident)}
	for _, inc := range incs {
		r.rows[inc.ID] = *inc
	}
	return r
}

func (r *memoryRepository) sorted(keep func(CachedIncident) bool) []*CachedIncident {
	out := []*CachedIncident{}
	for _, row := range r.rows {
		if keep(row) {
			inc := row
			out = append(out, &inc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FechaAlta.Equal(out[j].FechaAlta.Time) {
			return out[i].FechaAlta.After(out[j].FechaAlta.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memoryRepository) GetAll(context.Context) ([]*CachedIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(CachedIncident) bool { return true }), nil
}

func (r *memoryRepository) GetByID(_ context.Context, id int64) (*CachedIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (r *memoryRepository) GetByStatus(_ context.Context, status SyncStatus) ([]*CachedIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(c CachedIncident) bool { return c.SyncStatus == status }), nil
}

func (r *memoryRepository) Upsert(_ context.Context, inc *CachedIncident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[inc.ID] = *inc
	return nil
}

func (r *memoryRepository) UpsertMany(ctx context.Context, incs []*CachedIncident) error {
	for _, inc := range incs {
		_ = r.Upsert(ctx, inc)
	}
	return nil
}

func (r *memoryRepository) UpdateSyncStatus(_ context.Context, id int64, status SyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.SyncStatus = status
	r.rows[id] = row
	return nil
}

func (r *memoryRepository) DeleteByID(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memoryRepository) DeleteAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make(map[int64]CachedIncident)
	return nil
}

func (r *memoryRepository) ReplaceAll(ctx context.Context, incs []*CachedIncident) error {
	_ = r.DeleteAll(ctx)
	return r.UpsertMany(ctx, incs)
}

// memoryQueue records enqueued operations
type memoryQueue struct {
	mu  sync.Mutex
	ops []*queue.PendingOperation
	err error
}

func (q *memoryQueue) Enqueue(_ context.Context, opType queue.OperationType, endpoint string, payload json.RawMessage) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	op := &queue.PendingOperation{
		ID:            int64(len(q.ops) + 1),
		OperationType: opType,
		Endpoint:      endpoint,
		Data:          payload,
		Status:        queue.StatusPending,
	}
	q.ops = append(q.ops, op)
	return op.ID, nil
}

func (q *memoryQueue) Get(_ context.Context, id int64) (*queue.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		if op.ID == id {
			return op, nil
		}
	}
	return nil, queue.ErrOperationNotFound
}

func (q *memoryQueue) ListPending(context.Context, int) ([]*queue.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.PendingOperation(nil), q.ops...), nil
}

func (q *memoryQueue) List(ctx context.Context, _ int) ([]*queue.PendingOperation, error) {
	return q.ListPending(ctx, 0)
}

func (q *memoryQueue) MarkStatus(context.Context, int64, queue.Status, string) error { return nil }

func (q *memoryQueue) RecordFailure(context.Context, int64, string, int) (bool, error) {
	return false, nil
}

func (q *memoryQueue) SweepSynced(context.Context) (int64, error)      { return 0, nil }
func (q *memoryQueue) ResetInterrupted(context.Context) (int64, error) { return 0, nil }

func (q *memoryQueue) RewriteEndpoint(context.Context, string, string) (int64, error) {
	return 0, nil
}

func (q *memoryQueue) CompleteCreate(context.Context, int64, string, string) (int64, error) {
	return 0, nil
}

func (q *memoryQueue) CountByStatus(context.Context) (map[queue.Status]int, error) {
	return map[queue.Status]int{queue.StatusPending: len(q.ops)}, nil
}
