package repositories

import (
	"context"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TemplateRepository reads the request template catalog and records
// template applications.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// ListItems returns the whole catalog in sort order.
func (r *TemplateRepository) ListItems(ctx context.Context) ([]*models.TemplateItem, error) {
	items := make([]*models.TemplateItem, 0)
	query := `
		SELECT id, title, description, category, priority, typical_period,
			allow_file_upload, allow_text_response, sort_order
		FROM request_templates
		ORDER BY sort_order, title`
	err := r.db.SelectContext(ctx, &items, query)
	return items, err
}

// RecordApplication inserts a template application marker
func (r *TemplateRepository) RecordApplication(ctx context.Context, app *models.TemplateApplication) error {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	app.AppliedAt = time.Now()
	query := `
		INSERT INTO deal_template_applications (id, deal_id, applied_by, applied_at, notes, created_count, skipped_count)
		VALUES (:id, :deal_id, :applied_by, :applied_at, :notes, :created_count, :skipped_count)`
	_, err := r.db.NamedExecContext(ctx, query, app)
	return err
}

// ListApplications returns a deal's template applications, newest first.
func (r *TemplateRepository) ListApplications(ctx context.Context, dealID string) ([]*models.TemplateApplication, error) {
	apps := make([]*models.TemplateApplication, 0)
	query := `
		SELECT id, deal_id, applied_by, applied_at, notes, created_count, skipped_count
		FROM deal_template_applications
		WHERE deal_id = $1
		ORDER BY applied_at DESC`
	err := r.db.SelectContext(ctx, &apps, query, dealID)
	return apps, err
}
