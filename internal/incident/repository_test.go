package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSQLRepository(db, loggy.NewNoopLogger()), mock
}

func incidentRows() *sqlmock.Rows {
	return sqlmock.NewRows(incidentColumns)
}

func TestGetAll(t *testing.T) {
	repo, mock := setupMock(t)

	alta := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	synced := alta.Add(time.Hour)

	mock.ExpectQuery(`SELECT (.+) FROM cached_incidents ORDER BY fecha_alta DESC, id DESC`).
		WillReturnRows(incidentRows().
			AddRow(12, "Ascensor parado", "Planta 3", "alta", "en_curso", 7, 4, 2, alta, nil, "Residencial Olivos", "C/ Mayor 3", "synced", "", synced).
			AddRow(-1700000000000, "Fuga", "", "media", "abierta", 7, nil, 0, alta.Add(-time.Hour), nil, "", "", "pending", "create", nil))

	incs, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, incs, 2)

	first := incs[0]
	assert.Equal(t, int64(12), first.ID)
	require.NotNil(t, first.ProveedorID)
	assert.Equal(t, int64(4), *first.ProveedorID)
	assert.Equal(t, 2, first.Version)
	assert.True(t, alta.Equal(first.FechaAlta.Time))
	assert.Nil(t, first.FechaCierre)
	require.NotNil(t, first.Inmueble)
	assert.Equal(t, "Residencial Olivos", first.Inmueble.Nombre)
	assert.Equal(t, SyncStatusSynced, first.SyncStatus)
	require.NotNil(t, first.LastSyncAt)
	assert.True(t, synced.Equal(*first.LastSyncAt))

	second := incs[1]
	assert.True(t, second.IsTemporary())
	assert.Nil(t, second.ProveedorID)
	assert.Equal(t, SyncStatusPending, second.SyncStatus)
	assert.Equal(t, PendingCreate, second.PendingAction)
	assert.Nil(t, second.LastSyncAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllEmptyIsNotNil(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM cached_incidents`).WillReturnRows(incidentRows())

	incs, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, incs)
	assert.Empty(t, incs)
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM cached_incidents WHERE id = \?`).
		WithArgs(int64(77)).
		WillReturnRows(incidentRows())

	_, err := repo.GetByID(context.Background(), 77)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByStatus(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM cached_incidents WHERE sync_status = \? ORDER BY fecha_alta DESC, id DESC`).
		WithArgs(SyncStatusError).
		WillReturnRows(incidentRows())

	_, err := repo.GetByStatus(context.Background(), SyncStatusError)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert(t *testing.T) {
	repo, mock := setupMock(t)

	inc := syncedIncident(12, "Ascensor parado", time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))

	mock.ExpectExec(`INSERT OR REPLACE INTO cached_incidents \(id,titulo,descripcion,prioridad,estado,inmueble_id,proveedor_id,version,fecha_alta,fecha_cierre,inmueble_nombre,inmueble_direccion,sync_status,pending_action,last_sync_at\) VALUES`).
		WithArgs(int64(12), "Ascensor parado", "", "alta", "abierta", int64(7), nil,
			1, sqlmock.AnyArg(), nil, "Residencial Olivos", "C/ Mayor 3",
			"synced", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(12, 1))

	require.NoError(t, repo.Upsert(context.Background(), inc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertManyBatches(t *testing.T) {
	repo, mock := setupMock(t)

	incs := make([]*CachedIncident, upsertBatchSize+1)
	for i := range incs {
		incs[i] = syncedIncident(int64(i+1), "Incidencia", time.Now())
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT OR REPLACE INTO cached_incidents`).WillReturnResult(sqlmock.NewResult(0, upsertBatchSize))
	mock.ExpectExec(`INSERT OR REPLACE INTO cached_incidents`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpsertMany(context.Background(), incs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll(t *testing.T) {
	repo, mock := setupMock(t)

	incs := []*CachedIncident{
		syncedIncident(1, "Goteras", time.Now()),
		syncedIncident(2, "Ascensor", time.Now()),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM cached_incidents`).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`INSERT OR REPLACE INTO cached_incidents`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceAll(context.Background(), incs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAllRollsBackOnInsertFailure(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM cached_incidents`).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`INSERT OR REPLACE INTO cached_incidents`).WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err := repo.ReplaceAll(context.Background(), []*CachedIncident{syncedIncident(1, "Goteras", time.Now())})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSyncStatus(t *testing.T) {
	repo, mock := setupMock(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE cached_incidents SET sync_status = \? WHERE id = \?`).
		WithArgs(SyncStatusError, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateSyncStatus(ctx, 9, SyncStatusError))

	mock.ExpectExec(`UPDATE cached_incidents SET sync_status = \? WHERE id = \?`).
		WithArgs(SyncStatusError, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateSyncStatus(ctx, 10, SyncStatusError), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByID(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(`DELETE FROM cached_incidents WHERE id = \?`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteByID(context.Background(), 9))
	assert.NoError(t, mock.ExpectationsWereMet())
}
