package sync

import (
	"encoding/json"
	"testing"

	"github.com/dexpositosanchez/fyntra/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		family   string
		id       int64
		hasID    bool
		wantErr  bool
	}{
		{endpoint: "incidencias", family: "incidencias"},
		{endpoint: "incidencias/42", family: "incidencias", id: 42, hasID: true},
		{endpoint: "/incidencias/42/", family: "incidencias", id: 42, hasID: true},
		{endpoint: "incidencias/-1700000000000", family: "incidencias", id: -1700000000000, hasID: true},
		{endpoint: "incidencias/abc", wantErr: true},
		{endpoint: "incidencias/0", wantErr: true},
		{endpoint: "incidencias/4/comentarios", wantErr: true},
		{endpoint: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			family, id, hasID, err := parseEndpoint(tt.endpoint)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownOperation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.family, family)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.hasID, hasID)
		})
	}
}

func TestDecodeOperation(t *testing.T) {
	op := func(opType queue.OperationType, data string) *queue.PendingOperation {
		return &queue.PendingOperation{OperationType: opType, Data: json.RawMessage(data)}
	}

	decoded, err := decodeOperation(op(queue.OperationCreate, `{"titulo":"Fuga"}`), "incidencias/-5")
	require.NoError(t, err)
	assert.Equal(t, createOp{resource: "incidencias", localID: -5, payload: json.RawMessage(`{"titulo":"Fuga"}`)}, decoded)

	decoded, err = decodeOperation(op(queue.OperationUpdate, `{"estado":"resuelta"}`), "incidencias/123")
	require.NoError(t, err)
	assert.Equal(t, "incidencias", decoded.family())
	assert.Equal(t, int64(123), decoded.(updateOp).id)

	decoded, err = decodeOperation(op(queue.OperationDelete, ""), "incidencias/9")
	require.NoError(t, err)
	assert.Equal(t, deleteOp{resource: "incidencias", id: 9}, decoded)

	invalid := []struct {
		name     string
		op       *queue.PendingOperation
		endpoint string
	}{
		{"create without body", op(queue.OperationCreate, ""), "incidencias"},
		{"create with broken json", op(queue.OperationCreate, `{"titulo":`), "incidencias"},
		{"update without id", op(queue.OperationUpdate, `{}`), "incidencias"},
		{"update without body", op(queue.OperationUpdate, ""), "incidencias/3"},
		{"delete without id", op(queue.OperationDelete, ""), "incidencias"},
		{"unknown type", op(queue.OperationType("PATCH"), `{}`), "incidencias/3"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeOperation(tt.op, tt.endpoint)
			assert.True(t, IsUnknownOperation(err))
		})
	}
}
