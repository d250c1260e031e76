package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/dexpositosanchez/fyntra/internal/database"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
)

// Repository defines the operations of the outbound queue
type Repository interface {
	// Enqueue appends an operation with status pending and timestamp now
	Enqueue(ctx context.Context, opType OperationType, endpoint string, payload json.RawMessage) (int64, error)

	// Get retrieves an operation by id
	Get(ctx context.Context, id int64) (*PendingOperation, error)

	// ListPending returns operations eligible for replay in replay order: every
	// pending one, and error ones that have failed fewer than maxRetries times
	ListPending(ctx context.Context, maxRetries int) ([]*PendingOperation, error)

	// List returns the limit most recent operations regardless of status, oldest first
	List(ctx context.Context, limit int) ([]*PendingOperation, error)

	// MarkStatus sets the status of an operation. errorMessage is kept only for StatusError.
	MarkStatus(ctx context.Context, id int64, status Status, errorMessage string) error

	// RecordFailure counts a failed replay. The operation goes back to pending,
	// or is parked as error with message once maxRetries failures are reached.
	RecordFailure(ctx context.Context, id int64, message string, maxRetries int) (parked bool, err error)

	// SweepSynced deletes every synced operation
	SweepSynced(ctx context.Context) (int64, error)

	// ResetInterrupted returns operations left in syncing by a dead process to pending
	ResetInterrupted(ctx context.Context) (int64, error)

	// RewriteEndpoint points unsynced operations at oldEndpoint to newEndpoint
	RewriteEndpoint(ctx context.Context, oldEndpoint, newEndpoint string) (int64, error)

	// CompleteCreate marks a replayed create as synced and rewrites the operations
	// queued behind it from oldEndpoint to newEndpoint. Both happen or neither does.
	CompleteCreate(ctx context.Context, id int64, oldEndpoint, newEndpoint string) (int64, error)

	// CountByStatus returns the number of operations per status
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

var operationColumns = []string{
	"id", "operation_type", "endpoint", "data", "timestamp", "status", "error_message", "retry_count",
}

// SQLRepository implements Repository on the pending_operations table
type SQLRepository struct {
	db     *sql.DB
	logger *loggy.Logger
	now    func() time.Time
}

// NewSQLRepository creates a new SQL queue repository
func NewSQLRepository(db *sql.DB, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue appends an operation to the queue
func (r *SQLRepository) Enqueue(ctx context.Context, opType OperationType, endpoint string, payload json.RawMessage) (int64, error) {
	if !opType.Valid() {
		return 0, fmt.Errorf("invalid operation type %q", opType)
	}

	query, args, err := squirrel.Insert("pending_operations").
		Columns("operation_type", "endpoint", "data", "timestamp", "status", "retry_count").
		Values(opType, endpoint, string(payload), r.now().UTC().UnixMilli(), StatusPending, 0).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building enqueue query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("executing enqueue query: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading enqueued operation id: %w", err)
	}

	r.logger.Debug("Enqueued operation", "operation_id", id, "type", opType, "endpoint", endpoint)
	return id, nil
}

// Get retrieves an operation by id
func (r *SQLRepository) Get(ctx context.Context, id int64) (*PendingOperation, error) {
	query, args, err := squirrel.Select(operationColumns...).
		From("pending_operations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get operation query: %w", err)
	}

	op, err := scanOperation(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperationNotFound
		}
		return nil, fmt.Errorf("executing get operation query: %w", err)
	}

	return op, nil
}

// ListPending returns the operations eligible for replay
func (r *SQLRepository) ListPending(ctx context.Context, maxRetries int) ([]*PendingOperation, error) {
	q := squirrel.Select(operationColumns...).
		From("pending_operations").
		Where(squirrel.Or{
			squirrel.Eq{"status": StatusPending},
			squirrel.And{
				squirrel.Eq{"status": StatusError},
				squirrel.Lt{"retry_count": maxRetries},
			},
		}).
		OrderBy("timestamp ASC", "id ASC")

	return r.query(ctx, q, "list pending operations")
}

// List returns the most recent operations, oldest first
func (r *SQLRepository) List(ctx context.Context, limit int) ([]*PendingOperation, error) {
	q := squirrel.Select(operationColumns...).
		From("pending_operations").
		OrderBy("timestamp DESC", "id DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	ops, err := r.query(ctx, q, "list operations")
	if err != nil {
		return nil, err
	}

	slices.Reverse(ops)
	return ops, nil
}

// MarkStatus sets the status of an operation
func (r *SQLRepository) MarkStatus(ctx context.Context, id int64, status Status, errorMessage string) error {
	var message sql.NullString
	if status == StatusError && errorMessage != "" {
		message = sql.NullString{String: errorMessage, Valid: true}
	}

	query, args, err := squirrel.Update("pending_operations").
		Set("status", status).
		Set("error_message", message).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building mark status query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("executing mark status query: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrOperationNotFound
	}

	return nil
}

// RecordFailure increments the retry count and decides, in the same statement,
// whether the operation is retried or parked
func (r *SQLRepository) RecordFailure(ctx context.Context, id int64, message string, maxRetries int) (bool, error) {
	query, args, err := squirrel.Update("pending_operations").
		Set("retry_count", squirrel.Expr("retry_count + 1")).
		Set("status", squirrel.Expr("CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END", maxRetries, StatusError, StatusPending)).
		Set("error_message", squirrel.Expr("CASE WHEN retry_count + 1 >= ? THEN ? ELSE NULL END", maxRetries, message)).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING status, retry_count").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building record failure query: %w", err)
	}

	var (
		status     Status
		retryCount int
	)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&status, &retryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrOperationNotFound
		}
		return false, fmt.Errorf("executing record failure query: %w", err)
	}

	r.logger.Debug("Recorded replay failure", "operation_id", id, "retry_count", retryCount, "status", status)
	return status == StatusError, nil
}

// SweepSynced deletes every synced operation
func (r *SQLRepository) SweepSynced(ctx context.Context) (int64, error) {
	query, args, err := squirrel.Delete("pending_operations").
		Where(squirrel.Eq{"status": StatusSynced}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building sweep query: %w", err)
	}

	return r.exec(ctx, query, args, "sweep")
}

// ResetInterrupted returns syncing operations to pending
func (r *SQLRepository) ResetInterrupted(ctx context.Context) (int64, error) {
	query, args, err := squirrel.Update("pending_operations").
		Set("status", StatusPending).
		Where(squirrel.Eq{"status": StatusSyncing}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building reset interrupted query: %w", err)
	}

	return r.exec(ctx, query, args, "reset interrupted")
}

// RewriteEndpoint points unsynced operations at oldEndpoint to newEndpoint
func (r *SQLRepository) RewriteEndpoint(ctx context.Context, oldEndpoint, newEndpoint string) (int64, error) {
	query, args, err := rewriteEndpointQuery(oldEndpoint, newEndpoint)
	if err != nil {
		return 0, err
	}

	return r.exec(ctx, query, args, "rewrite endpoint")
}

// CompleteCreate marks a create synced and remaps its followers in one transaction
func (r *SQLRepository) CompleteCreate(ctx context.Context, id int64, oldEndpoint, newEndpoint string) (int64, error) {
	markQuery, markArgs, err := squirrel.Update("pending_operations").
		Set("status", StatusSynced).
		Set("error_message", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building complete create query: %w", err)
	}

	rewriteQuery, rewriteArgs, err := rewriteEndpointQuery(oldEndpoint, newEndpoint)
	if err != nil {
		return 0, err
	}

	var rewritten int64
	err = database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, markQuery, markArgs...)
		if err != nil {
			return fmt.Errorf("executing complete create query: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrOperationNotFound
		}

		res, err = tx.ExecContext(ctx, rewriteQuery, rewriteArgs...)
		if err != nil {
			return fmt.Errorf("executing rewrite endpoint query: %w", err)
		}
		rewritten, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rewrite endpoint result: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Debug("Completed queued create", "operation_id", id, "from", oldEndpoint, "to", newEndpoint, "rewritten", rewritten)
	return rewritten, nil
}

func rewriteEndpointQuery(oldEndpoint, newEndpoint string) (string, []interface{}, error) {
	query, args, err := squirrel.Update("pending_operations").
		Set("endpoint", newEndpoint).
		Where(squirrel.Eq{
			"endpoint": oldEndpoint,
			"status":   []Status{StatusPending, StatusError},
		}).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("building rewrite endpoint query: %w", err)
	}
	return query, args, nil
}

// CountByStatus returns the number of operations per status
func (r *SQLRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	query, args, err := squirrel.Select("status", "COUNT(*)").
		From("pending_operations").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building count by status query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing count by status query: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status count rows: %w", err)
	}

	return counts, nil
}

func (r *SQLRepository) exec(ctx context.Context, query string, args []interface{}, what string) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("executing %s query: %w", what, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading %s result: %w", what, err)
	}
	return n, nil
}

func (r *SQLRepository) query(ctx context.Context, q squirrel.SelectBuilder, what string) ([]*PendingOperation, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building %s query: %w", what, err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing %s query: %w", what, err)
	}
	defer rows.Close()

	var ops []*PendingOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operation rows: %w", err)
	}

	return ops, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*PendingOperation, error) {
	var (
		op        PendingOperation
		data      string
		timestamp int64
		message   sql.NullString
	)

	if err := row.Scan(
		&op.ID,
		&op.OperationType,
		&op.Endpoint,
		&data,
		&timestamp,
		&op.Status,
		&message,
		&op.RetryCount,
	); err != nil {
		return nil, err
	}

	if data != "" {
		op.Data = json.RawMessage(data)
	}
	op.Timestamp = time.UnixMilli(timestamp).UTC()
	op.ErrorMessage = message.String

	return &op, nil
}
