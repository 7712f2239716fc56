// audit_repository.go implements AuditRepository, the append-only store behind
// the audit logger. There is deliberately no update or delete.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
)

// AuditRepository handles audit event database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit events
type AuditFilters struct {
	UserID       *string
	EventType    *string
	ResourceType *string
	ResourceID   *string
	StartDate    *time.Time
	EndDate      *time.Time
}

// Record inserts an audit event. The caller assigns the ID.
func (r *AuditRepository) Record(ctx context.Context, ev *models.AuditEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	details := []byte("{}")
	if len(ev.Details) > 0 {
		var err error
		details, err = json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (id, event_type, user_id, resource_type, resource_id, details,
			user_agent, url, client_timestamp, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		ev.ID,
		ev.EventType,
		ev.UserID,
		ev.ResourceType,
		ev.ResourceID,
		details,
		ev.UserAgent,
		ev.URL,
		ev.ClientTimestamp,
		ev.RequestID,
		ev.CreatedAt,
	)
	return err
}

// List retrieves audit events with optional filters and pagination, newest
// first.
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditEvent, int, error) {
	where := ` WHERE 1=1`
	args := make([]any, 0)
	paramIndex := 1

	if filters.UserID != nil {
		where += fmt.Sprintf(` AND user_id = $%d`, paramIndex)
		args = append(args, *filters.UserID)
		paramIndex++
	}
	if filters.EventType != nil {
		where += fmt.Sprintf(` AND event_type = $%d`, paramIndex)
		args = append(args, *filters.EventType)
		paramIndex++
	}
	if filters.ResourceType != nil {
		where += fmt.Sprintf(` AND resource_type = $%d`, paramIndex)
		args = append(args, *filters.ResourceType)
		paramIndex++
	}
	if filters.ResourceID != nil {
		where += fmt.Sprintf(` AND resource_id = $%d`, paramIndex)
		args = append(args, *filters.ResourceID)
		paramIndex++
	}
	if filters.StartDate != nil {
		where += fmt.Sprintf(` AND created_at >= $%d`, paramIndex)
		args = append(args, *filters.StartDate)
		paramIndex++
	}
	if filters.EndDate != nil {
		where += fmt.Sprintf(` AND created_at <= $%d`, paramIndex)
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, event_type, user_id, resource_type, resource_id, details,
			user_agent, url, client_timestamp, request_id, created_at
		FROM audit_events` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		ev := &models.AuditEvent{}
		var details []byte
		err := rows.Scan(
			&ev.ID,
			&ev.EventType,
			&ev.UserID,
			&ev.ResourceType,
			&ev.ResourceID,
			&details,
			&ev.UserAgent,
			&ev.URL,
			&ev.ClientTimestamp,
			&ev.RequestID,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, 0, err
			}
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// Get retrieves a single audit event. Returns nil, nil when absent.
func (r *AuditRepository) Get(ctx context.Context, id string) (*models.AuditEvent, error) {
	query := `
		SELECT id, event_type, user_id, resource_type, resource_id, details,
			user_agent, url, client_timestamp, request_id, created_at
		FROM audit_events
		WHERE id = $1
	`
	ev := &models.AuditEvent{}
	var details []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &ev.EventType, &ev.UserID, &ev.ResourceType, &ev.ResourceID, &details,
		&ev.UserAgent, &ev.URL, &ev.ClientTimestamp, &ev.RequestID, &ev.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &ev.Details); err != nil {
			return nil, err
		}
	}
	return ev, nil
}
