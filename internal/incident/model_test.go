package incident

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampAcceptsAPILayouts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339 with zone", `"2026-03-14T09:30:00+01:00"`, time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)},
		{"fractional utc", `"2026-03-14T09:30:00.123456Z"`, time.Date(2026, 3, 14, 9, 30, 0, 123456000, time.UTC)},
		{"zone-less", `"2026-03-14T09:30:00.5"`, time.Date(2026, 3, 14, 9, 30, 0, 500000000, time.UTC)},
		{"space separated", `"2026-03-14 09:30:00"`, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)},
		{"date only", `"2026-03-14"`, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"ayer"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`12`), &ts))

	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
}

func TestIncidentDecodesServerPayload(t *testing.T) {
	body := `{
		"id": 123,
		"titulo": "Portal sin luz",
		"descripcion": "Fundido el fluorescente",
		"prioridad": "alta",
		"estado": "abierta",
		"inmueble_id": 7,
		"proveedor_id": null,
		"version": 3,
		"fecha_alta": "2026-03-14T09:30:00",
		"fecha_cierre": null,
		"inmueble": {"id": 7, "nombre": "Residencial Olivos", "direccion": "C/ Mayor 3"}
	}`

	var inc Incident
	require.NoError(t, json.Unmarshal([]byte(body), &inc))
	assert.Equal(t, int64(123), inc.ID)
	assert.Nil(t, inc.ProveedorID)
	assert.Nil(t, inc.FechaCierre)
	assert.Equal(t, 3, inc.Version)
	require.NotNil(t, inc.Inmueble)
	assert.Equal(t, "C/ Mayor 3", inc.Inmueble.Direccion)
}

func TestIncidentUpdate(t *testing.T) {
	assert.True(t, IncidentUpdate{}.IsEmpty())

	proveedor := int64(4)
	upd := IncidentUpdate{Estado: strPtr("resuelta"), ProveedorID: &proveedor}
	assert.False(t, upd.IsEmpty())

	body, err := json.Marshal(upd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"estado":"resuelta","proveedor_id":4}`, string(body))

	inc := Incident{Titulo: "Portal sin luz", Estado: "abierta"}
	upd.ApplyTo(&inc)
	assert.Equal(t, "Portal sin luz", inc.Titulo)
	assert.Equal(t, "resuelta", inc.Estado)
	require.NotNil(t, inc.ProveedorID)
	assert.Equal(t, int64(4), *inc.ProveedorID)

	proveedor = 5
	assert.Equal(t, int64(4), *inc.ProveedorID, "applied values are copied")
}

func TestIncidentCreateValidate(t *testing.T) {
	assert.NoError(t, IncidentCreate{Titulo: "Fuga", InmuebleID: 1}.Validate())
	assert.ErrorIs(t, IncidentCreate{Titulo: "   ", InmuebleID: 1}.Validate(), ErrInvalidPayload)
	assert.ErrorIs(t, IncidentCreate{Titulo: "Fuga", InmuebleID: 0}.Validate(), ErrInvalidPayload)
}

func TestTempIDsAreNegativeAndUnique(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	src := &tempIDSource{now: func() time.Time { return now }}

	seen := make(map[int64]bool)
	prev := int64(0)
	for i := 0; i < 50; i++ {
		id := src.next()
		assert.True(t, IsTemporaryID(id))
		assert.False(t, seen[id], "duplicate id %d", id)
		if prev != 0 {
			assert.Less(t, id, prev)
		}
		seen[id] = true
		prev = id
	}

	assert.Equal(t, int64(-1700000000000), -now.UnixMilli())
	assert.False(t, IsTemporaryID(1))
	assert.False(t, IsTemporaryID(0))
}
