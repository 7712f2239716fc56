package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/google/uuid"
)

// ResponseRepository handles the zero-or-one text response per request
type ResponseRepository struct {
	db *sql.DB
}

// NewResponseRepository creates a new response repository
func NewResponseRepository(db *sql.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Upsert creates the response for a request or replaces its text. The stored
// row (with its original ID and created_at) is written back into resp.
func (r *ResponseRepository) Upsert(ctx context.Context, resp *models.RequestResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	now := time.Now()
	query := `
		INSERT INTO request_responses (id, request_id, response_text, submitted_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (request_id) DO UPDATE
		SET response_text = EXCLUDED.response_text,
			submitted_by = EXCLUDED.submitted_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, resp.ID, resp.RequestID, resp.ResponseText, resp.SubmittedBy, now).
		Scan(&resp.ID, &resp.CreatedAt, &resp.UpdatedAt)
}

// GetByRequest returns the response for a request, or nil, nil when none.
func (r *ResponseRepository) GetByRequest(ctx context.Context, requestID string) (*models.RequestResponse, error) {
	query := `
		SELECT id, request_id, response_text, submitted_by, created_at, updated_at
		FROM request_responses
		WHERE request_id = $1
	`
	resp := &models.RequestResponse{}
	err := r.db.QueryRowContext(ctx, query, requestID).Scan(
		&resp.ID, &resp.RequestID, &resp.ResponseText, &resp.SubmittedBy, &resp.CreatedAt, &resp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
