package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
)

// CleanupRepository manages document_cleanup_queue, the list of storage
// objects left behind by partially failed document uploads and deletes.
type CleanupRepository struct {
	db *sql.DB
}

// NewCleanupRepository creates a new cleanup queue repository
func NewCleanupRepository(db *sql.DB) *CleanupRepository {
	return &CleanupRepository{db: db}
}

// Enqueue records a storage path for reconciliation. Re-enqueuing an existing
// path updates its reason and last error.
func (r *CleanupRepository) Enqueue(ctx context.Context, storagePath, reason, lastError string) error {
	now := time.Now()
	query := `
		INSERT INTO document_cleanup_queue (storage_path, reason, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $4)
		ON CONFLICT (storage_path) DO UPDATE
		SET reason = EXCLUDED.reason, last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, storagePath, reason, nullIfEmpty(lastError), now)
	return err
}

// ListPending returns up to limit entries with fewer than maxAttempts tries,
// oldest first.
func (r *CleanupRepository) ListPending(ctx context.Context, limit, maxAttempts int) ([]*models.CleanupEntry, error) {
	query := `
		SELECT storage_path, reason, attempts, last_error, created_at, updated_at
		FROM document_cleanup_queue
		WHERE attempts < $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.CleanupEntry, 0)
	for rows.Next() {
		e := &models.CleanupEntry{}
		if err := rows.Scan(&e.StoragePath, &e.Reason, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordFailure increments the attempt counter of an entry.
func (r *CleanupRepository) RecordFailure(ctx context.Context, storagePath, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE document_cleanup_queue SET attempts = attempts + 1, last_error = $2, updated_at = $3 WHERE storage_path = $1`,
		storagePath, lastError, time.Now(),
	)
	return err
}

// Dequeue removes a reconciled entry.
func (r *CleanupRepository) Dequeue(ctx context.Context, storagePath string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM document_cleanup_queue WHERE storage_path = $1`, storagePath)
	return err
}

// Count returns the number of queued entries.
func (r *CleanupRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_cleanup_queue`).Scan(&n)
	return n, err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
