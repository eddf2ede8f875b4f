package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/medistock/device/internal/models"
)

const syncQueueColumns = `id, entity_type, entity_id, operation, payload, local_version,
	remote_version, last_known_remote_updated_at, status, retry_count,
	last_error, last_attempt_at, created_at, user_id, site_id`

// SyncQueueRepository handles the durable outbox queue. All status mutation
// goes through the queue processor, which serializes access; no additional
// locking is required here.
type SyncQueueRepository struct {
	db DBTX
}

// NewSyncQueueRepository creates a new SyncQueueRepository
func NewSyncQueueRepository(db DBTX) *SyncQueueRepository {
	return &SyncQueueRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *SyncQueueRepository) WithTx(tx *sql.Tx) *SyncQueueRepository {
	return &SyncQueueRepository{db: tx}
}

// Insert adds a queue item
func (r *SyncQueueRepository) Insert(ctx context.Context, item *models.SyncQueueItem) error {
	query := `
		INSERT INTO sync_queue (` + syncQueueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID,
		string(item.EntityType),
		item.EntityID,
		string(item.Operation),
		string(item.Payload),
		item.LocalVersion,
		item.RemoteVersion,
		item.LastKnownRemoteUpdatedAt,
		string(item.Status),
		item.RetryCount,
		nullString(item.LastError),
		item.LastAttemptAt,
		item.CreatedAt,
		nullString(item.UserID),
		nullString(item.SiteID),
	)
	return err
}

// Update replaces the mutable fields of a queue item
func (r *SyncQueueRepository) Update(ctx context.Context, item *models.SyncQueueItem) error {
	query := `
		UPDATE sync_queue SET
			payload = ?,
			local_version = ?,
			remote_version = ?,
			last_known_remote_updated_at = ?,
			status = ?,
			retry_count = ?,
			last_error = ?,
			last_attempt_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		string(item.Payload),
		item.LocalVersion,
		item.RemoteVersion,
		item.LastKnownRemoteUpdatedAt,
		string(item.Status),
		item.RetryCount,
		nullString(item.LastError),
		item.LastAttemptAt,
		item.ID,
	)
	return err
}

// UpdateStatus transitions a queue item to a new status
func (r *SyncQueueRepository) UpdateStatus(ctx context.Context, id string, status models.SyncStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ? WHERE id = ?`,
		string(status), id,
	)
	return err
}

// UpdateStatusWithRetry transitions a queue item, records the error and the
// attempt timestamp, and increments the retry counter
func (r *SyncQueueRepository) UpdateStatusWithRetry(ctx context.Context, id string, status models.SyncStatus, attemptAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, retry_count = retry_count + 1, last_error = ?, last_attempt_at = ? WHERE id = ?`,
		string(status), lastError, attemptAt, id,
	)
	return err
}

// ResetStatus flips every item in one status to another (e.g. FAILED back to
// PENDING for a manual retry)
func (r *SyncQueueRepository) ResetStatus(ctx context.Context, from, to models.SyncStatus) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, retry_count = 0, last_error = NULL WHERE status = ?`,
		string(to), string(from),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByID removes a queue item
func (r *SyncQueueRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	return err
}

// DeleteByStatus removes every queue item in the given status
func (r *SyncQueueRepository) DeleteByStatus(ctx context.Context, status models.SyncStatus) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE status = ?`, string(status))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteSynced removes successfully synced items (periodic cleanup)
func (r *SyncQueueRepository) DeleteSynced(ctx context.Context) (int64, error) {
	return r.DeleteByStatus(ctx, models.StatusSynced)
}

// DeletePendingForEntity removes pending items for an entity. Used by the
// enqueue consolidation when a later DELETE obsoletes earlier mutations.
func (r *SyncQueueRepository) DeletePendingForEntity(ctx context.Context, entityType models.EntityType, entityID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ? AND status = ?`,
		string(entityType), entityID, string(models.StatusPending),
	)
	return err
}

// GetByID retrieves a queue item by id
func (r *SyncQueueRepository) GetByID(ctx context.Context, id string) (*models.SyncQueueItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+syncQueueColumns+` FROM sync_queue WHERE id = ?`, id)
	return scanSyncQueueItem(row)
}

// GetPendingBatch returns up to limit pending items in FIFO order
func (r *SyncQueueRepository) GetPendingBatch(ctx context.Context, limit int) ([]*models.SyncQueueItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+syncQueueColumns+` FROM sync_queue WHERE status = ? ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		string(models.StatusPending), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSyncQueueItems(rows)
}

// GetByStatus returns every queue item in the given status, oldest first
func (r *SyncQueueRepository) GetByStatus(ctx context.Context, status models.SyncStatus) ([]*models.SyncQueueItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+syncQueueColumns+` FROM sync_queue WHERE status = ? ORDER BY created_at ASC, rowid ASC`,
		string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSyncQueueItems(rows)
}

// GetByEntity returns every queue item for an entity, oldest first
func (r *SyncQueueRepository) GetByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.SyncQueueItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+syncQueueColumns+` FROM sync_queue WHERE entity_type = ? AND entity_id = ? ORDER BY created_at ASC, rowid ASC`,
		string(entityType), entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSyncQueueItems(rows)
}

// GetLatestPendingForEntity returns the most recent pending item for an
// entity, or nil when none exists. Used for duplicate suppression.
func (r *SyncQueueRepository) GetLatestPendingForEntity(ctx context.Context, entityType models.EntityType, entityID string) (*models.SyncQueueItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+syncQueueColumns+` FROM sync_queue
		WHERE entity_type = ? AND entity_id = ? AND status = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		string(entityType), entityID, string(models.StatusPending),
	)
	return scanSyncQueueItem(row)
}

// CountByStatus returns how many queue items are in the given status
func (r *SyncQueueRepository) CountByStatus(ctx context.Context, status models.SyncStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE status = ?`, string(status),
	).Scan(&count)
	return count, err
}

// PendingCount returns the number of pending items
func (r *SyncQueueRepository) PendingCount(ctx context.Context) (int, error) {
	return r.CountByStatus(ctx, models.StatusPending)
}

// ConflictCount returns the number of items awaiting conflict resolution
func (r *SyncQueueRepository) ConflictCount(ctx context.Context) (int, error) {
	return r.CountByStatus(ctx, models.StatusConflict)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncQueueItem(row rowScanner) (*models.SyncQueueItem, error) {
	var (
		item          models.SyncQueueItem
		entityType    string
		operation     string
		payload       string
		status        string
		lastError     sql.NullString
		lastAttemptAt sql.NullTime
		userID        sql.NullString
		siteID        sql.NullString
	)

	err := row.Scan(
		&item.ID,
		&entityType,
		&item.EntityID,
		&operation,
		&payload,
		&item.LocalVersion,
		&item.RemoteVersion,
		&item.LastKnownRemoteUpdatedAt,
		&status,
		&item.RetryCount,
		&lastError,
		&lastAttemptAt,
		&item.CreatedAt,
		&userID,
		&siteID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	item.EntityType = models.EntityType(entityType)
	item.Operation = models.SyncOperation(operation)
	item.Payload = json.RawMessage(payload)
	item.Status = models.SyncStatus(status)
	item.LastError = lastError.String
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		item.LastAttemptAt = &t
	}
	item.UserID = userID.String
	item.SiteID = siteID.String
	return &item, nil
}

func scanSyncQueueItems(rows *sql.Rows) ([]*models.SyncQueueItem, error) {
	var items []*models.SyncQueueItem
	for rows.Next() {
		item, err := scanSyncQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
