package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/google/uuid"
)

// DealRepository handles database operations for deals
type DealRepository struct {
	db *sql.DB
}

// NewDealRepository creates a new deal repository
func NewDealRepository(db *sql.DB) *DealRepository {
	return &DealRepository{db: db}
}

// Create inserts a new deal
func (r *DealRepository) Create(ctx context.Context, d *models.Deal) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	query := `
		INSERT INTO deals (id, name, company_name, project_name, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.Name, d.CompanyName, d.ProjectName, d.CreatedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

// GetByID retrieves a deal. Returns nil, nil when it does not exist.
func (r *DealRepository) GetByID(ctx context.Context, id string) (*models.Deal, error) {
	query := `
		SELECT id, name, company_name, project_name, created_by, created_at, updated_at
		FROM deals
		WHERE id = $1
	`
	d := &models.Deal{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.CompanyName, &d.ProjectName, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Update saves name, company and project. Returns false when the deal is gone.
func (r *DealRepository) Update(ctx context.Context, d *models.Deal) (bool, error) {
	d.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE deals SET name = $2, company_name = $3, project_name = $4, updated_at = $5 WHERE id = $1`,
		d.ID, d.Name, d.CompanyName, d.ProjectName, d.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// List returns deals ordered newest first. A non-nil onlyID restricts the
// result to that single deal (deal-scoped users).
func (r *DealRepository) List(ctx context.Context, onlyID *string) ([]*models.Deal, error) {
	query := `
		SELECT id, name, company_name, project_name, created_by, created_at, updated_at
		FROM deals
	`
	args := []any{}
	if onlyID != nil {
		query += ` WHERE id = $1`
		args = append(args, *onlyID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deals := make([]*models.Deal, 0)
	for rows.Next() {
		d := &models.Deal{}
		if err := rows.Scan(
			&d.ID, &d.Name, &d.CompanyName, &d.ProjectName, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}
