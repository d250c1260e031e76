package incident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/dexpositosanchez/fyntra/internal/database"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
)

// Repository defines the local cache of incidents
type Repository interface {
	// GetAll returns every cached incident, newest fecha_alta first
	GetAll(ctx context.Context) ([]*CachedIncident, error)

	// GetByID returns ErrNotFound when the incident is not cached
	GetByID(ctx context.Context, id int64) (*CachedIncident, error)

	// GetByStatus returns the incidents with the given sync status
	GetByStatus(ctx context.Context, status SyncStatus) ([]*CachedIncident, error)

	// Upsert inserts or replaces an incident by id
	Upsert(ctx context.Context, inc *CachedIncident) error

	// UpsertMany inserts or replaces incidents by id in one transaction
	UpsertMany(ctx context.Context, incs []*CachedIncident) error

	// UpdateSyncStatus changes only the sync status of a cached incident
	UpdateSyncStatus(ctx context.Context, id int64, status SyncStatus) error

	// DeleteByID removes one incident
	DeleteByID(ctx context.Context, id int64) error

	// DeleteAll removes every incident
	DeleteAll(ctx context.Context) error

	// ReplaceAll swaps the whole cache for incs in one transaction
	ReplaceAll(ctx context.Context, incs []*CachedIncident) error
}

var incidentColumns = []string{
	"id", "titulo", "descripcion", "prioridad", "estado", "inmueble_id", "proveedor_id",
	"version", "fecha_alta", "fecha_cierre", "inmueble_nombre", "inmueble_direccion",
	"sync_status", "pending_action", "last_sync_at",
}

// upsertBatchSize keeps multi-row inserts under SQLite's bound parameter limit
const upsertBatchSize = 200

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLRepository implements Repository on the cached_incidents table
type SQLRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLRepository creates a new SQL incident repository
func NewSQLRepository(db *sql.DB, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: logger,
	}
}

// GetAll returns every cached incident
func (r *SQLRepository) GetAll(ctx context.Context) ([]*CachedIncident, error) {
	q := squirrel.Select(incidentColumns...).
		From("cached_incidents").
		OrderBy("fecha_alta DESC", "id DESC")

	return r.query(ctx, q, "get all incidents")
}

// GetByID returns one cached incident
func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*CachedIncident, error) {
	query, args, err := squirrel.Select(incidentColumns...).
		From("cached_incidents").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get incident query: %w", err)
	}

	inc, err := scanIncident(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("executing get incident query: %w", err)
	}

	return inc, nil
}

// GetByStatus returns the incidents with the given sync status
func (r *SQLRepository) GetByStatus(ctx context.Context, status SyncStatus) ([]*CachedIncident, error) {
	q := squirrel.Select(incidentColumns...).
		From("cached_incidents").
		Where(squirrel.Eq{"sync_status": status}).
		OrderBy("fecha_alta DESC", "id DESC")

	return r.query(ctx, q, "get incidents by status")
}

// Upsert inserts or replaces an incident
func (r *SQLRepository) Upsert(ctx context.Context, inc *CachedIncident) error {
	return upsert(ctx, r.db, []*CachedIncident{inc})
}

// UpsertMany inserts or replaces incidents in one transaction
func (r *SQLRepository) UpsertMany(ctx context.Context, incs []*CachedIncident) error {
	if len(incs) == 0 {
		return nil
	}

	return database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		return upsert(ctx, tx, incs)
	})
}

// UpdateSyncStatus changes only the sync status of a cached incident
func (r *SQLRepository) UpdateSyncStatus(ctx context.Context, id int64, status SyncStatus) error {
	query, args, err := squirrel.Update("cached_incidents").
		Set("sync_status", status).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update sync status query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("executing update sync status query: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID removes one incident
func (r *SQLRepository) DeleteByID(ctx context.Context, id int64) error {
	query, args, err := squirrel.Delete("cached_incidents").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete incident query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete incident query: %w", err)
	}
	return nil
}

// DeleteAll removes every incident
func (r *SQLRepository) DeleteAll(ctx context.Context) error {
	return deleteAll(ctx, r.db)
}

// ReplaceAll deletes every incident and inserts incs, atomically
func (r *SQLRepository) ReplaceAll(ctx context.Context, incs []*CachedIncident) error {
	return database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		if err := deleteAll(ctx, tx); err != nil {
			return err
		}
		return upsert(ctx, tx, incs)
	})
}

func deleteAll(ctx context.Context, db execer) error {
	query, args, err := squirrel.Delete("cached_incidents").ToSql()
	if err != nil {
		return fmt.Errorf("building delete all incidents query: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete all incidents query: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, db execer, incs []*CachedIncident) error {
	for start := 0; start < len(incs); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(incs))

		q := squirrel.Insert("cached_incidents").
			Options("OR REPLACE").
			Columns(incidentColumns...)
		for _, inc := range incs[start:end] {
			q = q.Values(incidentValues(inc)...)
		}

		query, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("building upsert incidents query: %w", err)
		}

		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("executing upsert incidents query: %w", err)
		}
	}
	return nil
}

func incidentValues(inc *CachedIncident) []any {
	var (
		proveedor sql.NullInt64
		cierre    sql.NullTime
		lastSync  sql.NullTime
		nombre    string
		direccion string
	)

	if inc.ProveedorID != nil {
		proveedor = sql.NullInt64{Int64: *inc.ProveedorID, Valid: true}
	}
	if inc.FechaCierre != nil && !inc.FechaCierre.IsZero() {
		cierre = sql.NullTime{Time: inc.FechaCierre.UTC(), Valid: true}
	}
	if inc.LastSyncAt != nil {
		lastSync = sql.NullTime{Time: inc.LastSyncAt.UTC(), Valid: true}
	}
	if inc.Inmueble != nil {
		nombre = inc.Inmueble.Nombre
		direccion = inc.Inmueble.Direccion
	}

	status := inc.SyncStatus
	if status == "" {
		status = SyncStatusSynced
	}

	return []any{
		inc.ID, inc.Titulo, inc.Descripcion, inc.Prioridad, inc.Estado, inc.InmuebleID, proveedor,
		inc.Version, inc.FechaAlta.UTC(), cierre, nombre, direccion,
		status, inc.PendingAction, lastSync,
	}
}

func (r *SQLRepository) query(ctx context.Context, q squirrel.SelectBuilder, what string) ([]*CachedIncident, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building %s query: %w", what, err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing %s query: %w", what, err)
	}
	defer rows.Close()

	incs := []*CachedIncident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning incident row: %w", err)
		}
		incs = append(incs, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incident rows: %w", err)
	}

	return incs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*CachedIncident, error) {
	var (
		inc       CachedIncident
		proveedor sql.NullInt64
		alta      sql.NullTime
		cierre    sql.NullTime
		lastSync  sql.NullTime
		nombre    string
		direccion string
	)

	if err := row.Scan(
		&inc.ID,
		&inc.Titulo,
		&inc.Descripcion,
		&inc.Prioridad,
		&inc.Estado,
		&inc.InmuebleID,
		&proveedor,
		&inc.Version,
		&alta,
		&cierre,
		&nombre,
		&direccion,
		&inc.SyncStatus,
		&inc.PendingAction,
		&lastSync,
	); err != nil {
		return nil, err
	}

	if proveedor.Valid {
		id := proveedor.Int64
		inc.ProveedorID = &id
	}
	if alta.Valid {
		inc.FechaAlta = Timestamp{alta.Time.UTC()}
	}
	if cierre.Valid {
		inc.FechaCierre = &Timestamp{cierre.Time.UTC()}
	}
	if lastSync.Valid {
		t := lastSync.Time.UTC()
		inc.LastSyncAt = &t
	}
	if inc.InmuebleID != 0 || nombre != "" || direccion != "" {
		inc.Inmueble = &PropertyRef{ID: inc.InmuebleID, Nombre: nombre, Direccion: direccion}
	}

	return &inc, nil
}
