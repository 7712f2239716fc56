package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RequestCountRow is one (deal, category, status) bucket of request counts.
type RequestCountRow struct {
	DealID        string `db:"deal_id"`
	Category      string `db:"category"`
	Status        string `db:"status"`
	Total         int    `db:"total"`
	WithDocuments int    `db:"with_documents"`
	WithResponse  int    `db:"with_response"`
	Answered      int    `db:"answered"`
}

// StatsRepository runs the aggregate queries behind completion statistics
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

const requestCountsQuery = `
	WITH flags AS (
		SELECT r.deal_id, r.category, r.status,
			EXISTS (SELECT 1 FROM request_documents d WHERE d.request_id = r.id) AS has_doc,
			EXISTS (SELECT 1 FROM request_responses s
				WHERE s.request_id = r.id AND length(trim(s.response_text)) > 0) AS has_resp
		FROM diligence_requests r
		%s
	)
	SELECT deal_id, category, status,
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE has_doc) AS with_documents,
		COUNT(*) FILTER (WHERE has_resp) AS with_response,
		COUNT(*) FILTER (WHERE has_doc OR has_resp) AS answered
	FROM flags
	GROUP BY deal_id, category, status
	ORDER BY deal_id, category, status`

// RequestCounts returns the buckets for one deal.
func (r *StatsRepository) RequestCounts(ctx context.Context, dealID string) ([]RequestCountRow, error) {
	rows := make([]RequestCountRow, 0)
	err := r.db.SelectContext(ctx, &rows, fmt.Sprintf(requestCountsQuery, "WHERE r.deal_id = $1"), dealID)
	return rows, err
}

// AllRequestCounts returns the buckets for every deal.
func (r *StatsRepository) AllRequestCounts(ctx context.Context) ([]RequestCountRow, error) {
	rows := make([]RequestCountRow, 0)
	err := r.db.SelectContext(ctx, &rows, fmt.Sprintf(requestCountsQuery, ""))
	return rows, err
}
