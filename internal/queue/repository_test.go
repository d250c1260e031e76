package queue

import (
	"context"
	"encoding/json"
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

	repo := NewSQLRepository(db, loggy.NewNoopLogger())
	repo.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return repo, mock
}

func operationRows() *sqlmock.Rows {
	return sqlmock.NewRows(operationColumns)
}

func TestEnqueue(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(`INSERT INTO pending_operations \(operation_type,endpoint,data,timestamp,status,retry_count\) VALUES \(\?,\?,\?,\?,\?,\?\)`).
		WithArgs(OperationUpdate, "incidencias/123", `{"estado":"resuelta"}`, int64(1700000000000), StatusPending, 0).
		WillReturnResult(sqlmock.NewResult(5, 1))

	id, err := repo.Enqueue(context.Background(), OperationUpdate, "incidencias/123", json.RawMessage(`{"estado":"resuelta"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	repo, mock := setupMock(t)

	_, err := repo.Enqueue(context.Background(), OperationType("PATCH"), "incidencias/1", nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPending(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(`SELECT id, operation_type, endpoint, data, timestamp, status, error_message, retry_count FROM pending_operations WHERE \(status = \? OR \(status = \? AND retry_count < \?\)\) ORDER BY timestamp ASC, id ASC`).
		WithArgs(StatusPending, StatusError, 3).
		WillReturnRows(operationRows().
			AddRow(1, "CREATE", "incidencias/-1700000000000", `{"titulo":"Fuga"}`, int64(1700000000000), "pending", nil, 0).
			AddRow(2, "DELETE", "incidencias/9", "", int64(1700000000001), "error", "API error 500: boom", 2))

	ops, err := repo.ListPending(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	assert.Equal(t, OperationCreate, ops[0].OperationType)
	assert.JSONEq(t, `{"titulo":"Fuga"}`, string(ops[0].Data))
	assert.Empty(t, ops[0].ErrorMessage)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ops[0].Timestamp)

	assert.Equal(t, StatusError, ops[1].Status)
	assert.Nil(t, ops[1].Data)
	assert.Equal(t, "API error 500: boom", ops[1].ErrorMessage)
	assert.Equal(t, 2, ops[1].RetryCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStatus(t *testing.T) {
	repo, mock := setupMock(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE pending_operations SET status = \?, error_message = \? WHERE id = \?`).
		WithArgs(StatusSynced, nil, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkStatus(ctx, 4, StatusSynced, "ignored unless error"))

	mock.ExpectExec(`UPDATE pending_operations SET status = \?, error_message = \? WHERE id = \?`).
		WithArgs(StatusSyncing, nil, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkStatus(ctx, 99, StatusSyncing, ""), ErrOperationNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailure(t *testing.T) {
	const failureQuery = `UPDATE pending_operations SET retry_count = retry_count \+ 1, status = CASE WHEN retry_count \+ 1 >= \? THEN \? ELSE \? END, error_message = CASE WHEN retry_count \+ 1 >= \? THEN \? ELSE NULL END WHERE id = \? RETURNING status, retry_count`

	tests := []struct {
		name       string
		status     Status
		retryCount int
		parked     bool
	}{
		{"first failure stays pending", StatusPending, 1, false},
		{"cap reached parks as error", StatusError, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupMock(t)

			mock.ExpectQuery(failureQuery).
				WithArgs(3, StatusError, StatusPending, 3, "API error 500: boom", int64(7)).
				WillReturnRows(sqlmock.NewRows([]string{"status", "retry_count"}).AddRow(string(tt.status), tt.retryCount))

			parked, err := repo.RecordFailure(context.Background(), 7, "API error 500: boom", 3)
			require.NoError(t, err)
			assert.Equal(t, tt.parked, parked)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSweepSynced(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(`DELETE FROM pending_operations WHERE status = \?`).
		WithArgs(StatusSynced).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.SweepSynced(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetInterrupted(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(`UPDATE pending_operations SET status = \? WHERE status = \?`).
		WithArgs(StatusPending, StatusSyncing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.ResetInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRewriteEndpoint(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(`UPDATE pending_operations SET endpoint = \? WHERE endpoint = \? AND status IN \(\?,\?\)`).
		WithArgs("incidencias/88", "incidencias/-1700000000000", StatusPending, StatusError).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.RewriteEndpoint(context.Background(), "incidencias/-1700000000000", "incidencias/88")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCreate(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pending_operations SET status = \?, error_message = \? WHERE id = \?`).
		WithArgs(StatusSynced, nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE pending_operations SET endpoint = \? WHERE endpoint = \? AND status IN \(\?,\?\)`).
		WithArgs("incidencias/88", "incidencias/-1700000000000", StatusPending, StatusError).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.CompleteCreate(context.Background(), 1, "incidencias/-1700000000000", "incidencias/88")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCreateRollsBackWhenRewriteFails(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pending_operations SET status = \?, error_message = \? WHERE id = \?`).
		WithArgs(StatusSynced, nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE pending_operations SET endpoint = \?`).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err := repo.CompleteCreate(context.Background(), 1, "incidencias/-1700000000000", "incidencias/88")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing rewrite endpoint query")
	assert.NoError(t, mock.ExpectationsWereMet(), "the create must not be committed as synced without its remap")
}

func TestCompleteCreateUnknownOperation(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE pending_operations SET status = \?, error_message = \? WHERE id = \?`).
		WithArgs(StatusSynced, nil, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.CompleteCreate(context.Background(), 42, "incidencias/-1", "incidencias/2")
	assert.ErrorIs(t, err, ErrOperationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReturnsNewestOldestFirst(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(`SELECT id, operation_type, endpoint, data, timestamp, status, error_message, retry_count FROM pending_operations ORDER BY timestamp DESC, id DESC LIMIT 2`).
		WillReturnRows(operationRows().
			AddRow(9, "DELETE", "incidencias/4", "", int64(1700000000009), "pending", nil, 0).
			AddRow(8, "UPDATE", "incidencias/4", `{"estado":"cerrada"}`, int64(1700000000008), "synced", nil, 0))

	ops, err := repo.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, int64(8), ops[0].ID)
	assert.Equal(t, int64(9), ops[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM pending_operations GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 2).
			AddRow("error", 1))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Status]int{StatusPending: 2, StatusError: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(`FROM pending_operations WHERE id = \?`).
		WithArgs(int64(3)).
		WillReturnRows(operationRows())

	_, err := repo.Get(context.Background(), 3)
	assert.ErrorIs(t, err, ErrOperationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
