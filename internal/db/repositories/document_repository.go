package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/google/uuid"
)

const documentColumns = `id, request_id, filename, storage_path, file_type, file_size, checksum,
	is_sample, uploaded_by, uploaded_at`

// DocumentRepository handles database operations for request documents
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func scanDocument(s rowScanner) (*models.RequestDocument, error) {
	d := &models.RequestDocument{}
	err := s.Scan(
		&d.ID,
		&d.RequestID,
		&d.Filename,
		&d.StoragePath,
		&d.FileType,
		&d.FileSize,
		&d.Checksum,
		&d.IsSample,
		&d.UploadedBy,
		&d.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Create inserts a document row
func (r *DocumentRepository) Create(ctx context.Context, d *models.RequestDocument) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.UploadedAt = time.Now()

	query := `
		INSERT INTO request_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.RequestID, d.Filename, d.StoragePath, d.FileType, d.FileSize, d.Checksum,
		d.IsSample, d.UploadedBy, d.UploadedAt,
	)
	return err
}

// GetByID retrieves a document. Returns nil, nil when it does not exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.RequestDocument, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM request_documents WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListByRequest returns a request's documents, newest first.
func (r *DocumentRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.RequestDocument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM request_documents WHERE request_id = $1 ORDER BY uploaded_at DESC`,
		requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*models.RequestDocument, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Delete removes a document row. Returns false when it was already gone.
func (r *DocumentRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM request_documents WHERE id = $1`, id)
	return affected(res, err)
}

// ReferencesPath reports whether any document row points at storagePath.
func (r *DocumentRepository) ReferencesPath(ctx context.Context, storagePath string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM request_documents WHERE storage_path = $1)`, storagePath,
	).Scan(&exists)
	return exists, err
}

// DeleteByPath removes the row that points at storagePath, if any.
func (r *DocumentRepository) DeleteByPath(ctx context.Context, storagePath string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM request_documents WHERE storage_path = $1`, storagePath)
	return err
}
