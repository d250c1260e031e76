package incident

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReplayHandlerCreateReturnsServerID(t *testing.T) {
	api := new(MockAPI)
	h := NewReplayHandler(api, newMemoryRepository(), loggy.NewNoopLogger())

	payload := json.RawMessage(`{"titulo":"Fuga","inmueble_id":7}`)
	api.On("Create", mock.Anything, payload).Return(&Incident{ID: 88}, nil).Once()
	api.On("Create", mock.Anything, payload).Return(&Incident{}, nil).Once()

	id, err := h.Create(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, int64(88), id)

	_, err = h.Create(context.Background(), payload)
	assert.Error(t, err, "a create without a server id cannot be remapped")
	api.AssertExpectations(t)
}

func TestReplayHandlerDeleteTreatsNotFoundAsDone(t *testing.T) {
	api := new(MockAPI)
	h := NewReplayHandler(api, newMemoryRepository(), loggy.NewNoopLogger())

	api.On("Delete", mock.Anything, int64(9)).Return(&remote.APIError{StatusCode: 404, Message: "Incidencia no encontrada"})
	api.On("Delete", mock.Anything, int64(10)).Return(&remote.APIError{StatusCode: 500, Message: "boom"})

	assert.NoError(t, h.Delete(context.Background(), 9))
	assert.Error(t, h.Delete(context.Background(), 10))
}

func TestReplayHandlerMarkFailed(t *testing.T) {
	repo := newMemoryRepository(syncedIncident(9, "Puerta rota", fixedNow))
	h := NewReplayHandler(new(MockAPI), repo, loggy.NewNoopLogger())

	require.NoError(t, h.MarkFailed(context.Background(), 9))
	got, err := repo.GetByID(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, SyncStatusError, got.SyncStatus)

	assert.NoError(t, h.MarkFailed(context.Background(), 404), "an incident that is no longer cached is ignored")
}

type recordingDoer struct {
	method string
	path   string
	body   any
	reply  string
	err    error
}

func (d *recordingDoer) Do(_ context.Context, method, path string, body, out any) error {
	d.method, d.path, d.body = method, path, body
	if d.err != nil {
		return d.err
	}
	if out != nil && d.reply != "" {
		return json.Unmarshal([]byte(d.reply), out)
	}
	return nil
}

func TestRemoteAPIRoutes(t *testing.T) {
	ctx := context.Background()
	doer := &recordingDoer{reply: `{"id":5,"titulo":"Fuga","fecha_alta":"2026-03-14T09:30:00Z"}`}
	api := NewRemoteAPI(doer)

	inc, err := api.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "GET", doer.method)
	assert.Equal(t, "incidencias/5", doer.path)
	assert.Equal(t, "Fuga", inc.Titulo)

	_, err = api.Update(ctx, 5, json.RawMessage(`{"estado":"cerrada"}`))
	require.NoError(t, err)
	assert.Equal(t, "PUT", doer.method)
	assert.Equal(t, "incidencias/5", doer.path)

	_, err = api.Create(ctx, json.RawMessage(`{"titulo":"Fuga"}`))
	require.NoError(t, err)
	assert.Equal(t, "POST", doer.method)
	assert.Equal(t, "incidencias", doer.path)

	doer.reply = `[{"id":1},{"id":2}]`
	incs, err := api.List(ctx)
	require.NoError(t, err)
	assert.Len(t, incs, 2)

	doer.err = &remote.APIError{StatusCode: 404}
	err = api.Delete(ctx, 5)
	assert.Equal(t, "DELETE", doer.method)
	assert.True(t, remote.IsNotFound(err), "wrapped API errors stay inspectable")
}
