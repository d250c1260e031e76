// Package incident implements the offline-first repository for property incidents
// ("incidencias"): a local cache that is always readable, direct API calls while
// online, and queued mutations while offline.
package incident

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Resource is the API collection and queue endpoint family for incidents
const Resource = "incidencias"

// Errors returned by the incident service
var (
	ErrNotFound       = errors.New("incident not found")
	ErrInvalidPayload = errors.New("invalid incident payload")
)

// SyncStatus tells whether a cached incident reflects confirmed server state
type SyncStatus string

// Sync statuses
const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

// PendingAction is the local mutation a pending incident is waiting on
type PendingAction string

// Pending actions
const (
	PendingNone   PendingAction = ""
	PendingCreate PendingAction = "create"
	PendingUpdate PendingAction = "update"
	PendingDelete PendingAction = "delete"
)

// Timestamp is a time that also accepts the zone-less layouts the API emits
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// PropertyRef is the denormalized property ("inmueble") an incident belongs to
type PropertyRef struct {
	ID        int64  `json:"id"`
	Nombre    string `json:"nombre"`
	Direccion string `json:"direccion"`
}

// Incident is the remote representation of an incident
type Incident struct {
	ID          int64        `json:"id"`
	Titulo      string       `json:"titulo"`
	Descripcion string       `json:"descripcion"`
	Prioridad   string       `json:"prioridad"`
	Estado      string       `json:"estado"`
	InmuebleID  int64        `json:"inmueble_id"`
	ProveedorID *int64       `json:"proveedor_id"`
	Version     int          `json:"version"`
	FechaAlta   Timestamp    `json:"fecha_alta"`
	FechaCierre *Timestamp   `json:"fecha_cierre"`
	Inmueble    *PropertyRef `json:"inmueble,omitempty"`
}

// CachedIncident is an Incident plus local synchronization metadata
type CachedIncident struct {
	Incident
	SyncStatus    SyncStatus    `json:"sync_status"`
	PendingAction PendingAction `json:"pending_action,omitempty"`
	LastSyncAt    *time.Time    `json:"last_sync_at,omitempty"`
}

// IsTemporary reports whether the incident only exists locally
func (c *CachedIncident) IsTemporary() bool {
	return IsTemporaryID(c.ID)
}

// NewSynced wraps a server-confirmed incident
func NewSynced(inc Incident, at time.Time) *CachedIncident {
	syncedAt := at.UTC()
	return &CachedIncident{
		Incident:   inc,
		SyncStatus: SyncStatusSynced,
		LastSyncAt: &syncedAt,
	}
}

// IncidentCreate is the body of a create request
type IncidentCreate struct {
	Titulo      string `json:"titulo"`
	Descripcion string `json:"descripcion"`
	Prioridad   string `json:"prioridad,omitempty"`
	InmuebleID  int64  `json:"inmueble_id"`
	ProveedorID *int64 `json:"proveedor_id,omitempty"`
}

// Validate checks the fields the API requires
func (c IncidentCreate) Validate() error {
	if strings.TrimSpace(c.Titulo) == "" {
		return fmt.Errorf("%w: titulo is required", ErrInvalidPayload)
	}
	if c.InmuebleID <= 0 {
		return fmt.Errorf("%w: inmueble_id must be positive", ErrInvalidPayload)
	}
	return nil
}

// IncidentUpdate is a partial update; nil fields are left unchanged
type IncidentUpdate struct {
	Titulo      *string `json:"titulo,omitempty"`
	Descripcion *string `json:"descripcion,omitempty"`
	Prioridad   *string `json:"prioridad,omitempty"`
	Estado      *string `json:"estado,omitempty"`
	ProveedorID *int64  `json:"proveedor_id,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u IncidentUpdate) IsEmpty() bool {
	return u.Titulo == nil && u.Descripcion == nil && u.Prioridad == nil && u.Estado == nil && u.ProveedorID == nil
}

// ApplyTo merges the set fields into inc
func (u IncidentUpdate) ApplyTo(inc *Incident) {
	if u.Titulo != nil {
		inc.Titulo = *u.Titulo
	}
	if u.Descripcion != nil {
		inc.Descripcion = *u.Descripcion
	}
	if u.Prioridad != nil {
		inc.Prioridad = *u.Prioridad
	}
	if u.Estado != nil {
		inc.Estado = *u.Estado
	}
	if u.ProveedorID != nil {
		id := *u.ProveedorID
		inc.ProveedorID = &id
	}
}

// Default values for incidents created offline until the server answers
const (
	defaultEstado    = "abierta"
	defaultPrioridad = "media"
)

// IsTemporaryID reports whether id was assigned locally. Local ids are
// negative so they never collide with server ids.
func IsTemporaryID(id int64) bool {
	return id < 0
}

// tempIDSource hands out negative ids derived from the Unix millisecond clock,
// strictly decreasing within the process.
type tempIDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (s *tempIDSource) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := -s.now().UnixMilli()
	if s.last != 0 && id >= s.last {
		id = s.last - 1
	}
	s.last = id
	return id
}

func newTempIDSource() *tempIDSource {
	return &tempIDSource{now: time.Now}
}
