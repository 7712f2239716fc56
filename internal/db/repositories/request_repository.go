package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/google/uuid"
)

const requestColumns = `id, deal_id, title, description, category, priority, status, assigned_to,
	period_text, allow_file_upload, allow_text_response, created_at, updated_at`

// RequestRepository handles database operations for diligence requests
type RequestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// RequestFilters narrows List results. Empty fields are ignored.
type RequestFilters struct {
	DealID     string
	Category   string
	Status     string
	Priority   string
	AssignedTo string
	Search     string
}

func scanRequest(s rowScanner) (*models.DiligenceRequest, error) {
	req := &models.DiligenceRequest{}
	err := s.Scan(
		&req.ID,
		&req.DealID,
		&req.Title,
		&req.Description,
		&req.Category,
		&req.Priority,
		&req.Status,
		&req.AssignedTo,
		&req.PeriodText,
		&req.AllowFileUpload,
		&req.AllowTextResponse,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetByID retrieves a request. Returns nil, nil when it does not exist.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.DiligenceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM diligence_requests WHERE id = $1`
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetWithAssignee loads a request together with its assignee profile in one
// round trip.
func (r *RequestRepository) GetWithAssignee(ctx context.Context, id string) (*models.RequestWithAssignee, error) {
	query := `
		SELECT r.id, r.deal_id, r.title, r.description, r.category, r.priority, r.status, r.assigned_to,
			r.period_text, r.allow_file_upload, r.allow_text_response, r.created_at, r.updated_at,
			p.id, p.email, p.full_name, p.role, p.organization, p.deal_id
		FROM diligence_requests r
		LEFT JOIN profiles p ON p.id = r.assigned_to
		WHERE r.id = $1
	`
	out := &models.RequestWithAssignee{}
	req := &out.DiligenceRequest
	var (
		pID, pEmail, pName, pRole sql.NullString
		pOrg, pDeal               *string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &req.DealID, &req.Title, &req.Description, &req.Category, &req.Priority, &req.Status,
		&req.AssignedTo, &req.PeriodText, &req.AllowFileUpload, &req.AllowTextResponse,
		&req.CreatedAt, &req.UpdatedAt,
		&pID, &pEmail, &pName, &pRole, &pOrg, &pDeal,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if pID.Valid {
		out.Assignee = &models.Profile{
			ID:           pID.String,
			Email:        pEmail.String,
			FullName:     pName.String,
			Role:         pRole.String,
			Organization: pOrg,
			DealID:       pDeal,
		}
	}
	return out, nil
}

// List returns a page of requests matching filters plus the total match count.
func (r *RequestRepository) List(ctx context.Context, filters RequestFilters, limit, offset int) ([]*models.DiligenceRequest, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	paramIndex := 1

	add := func(clause string, value any) {
		where += fmt.Sprintf(clause, paramIndex)
		args = append(args, value)
		paramIndex++
	}
	if filters.DealID != "" {
		add(` AND deal_id = $%d`, filters.DealID)
	}
	if filters.Category != "" {
		add(` AND category = $%d`, filters.Category)
	}
	if filters.Status != "" {
		add(` AND status = $%d`, filters.Status)
	}
	if filters.Priority != "" {
		add(` AND priority = $%d`, filters.Priority)
	}
	if filters.AssignedTo != "" {
		add(` AND assigned_to = $%d`, filters.AssignedTo)
	}
	if filters.Search != "" {
		where += fmt.Sprintf(` AND (title ILIKE $%d OR description ILIKE $%d)`, paramIndex, paramIndex)
		args = append(args, "%"+filters.Search+"%")
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diligence_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + ` FROM diligence_requests` + where +
		fmt.Sprintf(` ORDER BY category, created_at LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	requests := make([]*models.DiligenceRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

// ListTitlesByDeal returns every request title in a deal, duplicates included.
func (r *RequestRepository) ListTitlesByDeal(ctx context.Context, dealID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT title FROM diligence_requests WHERE deal_id = $1`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	titles := make([]string, 0)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// Create inserts a single request
func (r *RequestRepository) Create(ctx context.Context, req *models.DiligenceRequest) error {
	return r.BulkCreate(ctx, []*models.DiligenceRequest{req})
}

// BulkCreate inserts all requests in a single multi-row statement, so either
// every row lands or none does.
func (r *RequestRepository) BulkCreate(ctx context.Context, reqs []*models.DiligenceRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	const perRow = 13
	now := time.Now()
	placeholders := make([]string, 0, len(reqs))
	args := make([]any, 0, len(reqs)*perRow)
	for i, req := range reqs {
		if req.ID == "" {
			req.ID = uuid.New().String()
		}
		req.CreatedAt = now
		req.UpdatedAt = now

		base := i * perRow
		ph := make([]string, perRow)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			req.ID, req.DealID, req.Title, req.Description, req.Category, req.Priority, req.Status,
			req.AssignedTo, req.PeriodText, req.AllowFileUpload, req.AllowTextResponse,
			req.CreatedAt, req.UpdatedAt,
		)
	}

	query := `INSERT INTO diligence_requests (` + requestColumns + `) VALUES ` + strings.Join(placeholders, ", ")
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// Update saves the editable fields of a request. Status and assignee have
// their own setters. Returns false when the row is gone.
func (r *RequestRepository) Update(ctx context.Context, req *models.DiligenceRequest) (bool, error) {
	req.UpdatedAt = time.Now()
	query := `
		UPDATE diligence_requests
		SET title = $2, description = $3, category = $4, priority = $5, period_text = $6,
			allow_file_upload = $7, allow_text_response = $8, updated_at = $9
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		req.ID, req.Title, req.Description, req.Category, req.Priority, req.PeriodText,
		req.AllowFileUpload, req.AllowTextResponse, req.UpdatedAt,
	)
	return affected(res, err)
}

// SetAssignee sets or clears (nil) the assignee of one request.
func (r *RequestRepository) SetAssignee(ctx context.Context, id string, assignee *string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE diligence_requests SET assigned_to = $2, updated_at = $3 WHERE id = $1`,
		id, assignee, time.Now(),
	)
	return affected(res, err)
}

// SetStatus sets the status of one request.
func (r *RequestRepository) SetStatus(ctx context.Context, id string, status models.RequestStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE diligence_requests SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now(),
	)
	return affected(res, err)
}

// MarkSubmittedIfPending moves a pending request to submitted. Requests in
// any other status are left alone and false is returned.
func (r *RequestRepository) MarkSubmittedIfPending(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE diligence_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, models.StatusSubmitted, time.Now(), models.StatusPending,
	)
	return affected(res, err)
}

// Delete removes a request; documents and responses cascade.
func (r *RequestRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM diligence_requests WHERE id = $1`, id)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
