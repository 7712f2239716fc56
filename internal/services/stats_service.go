package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/db/repositories"
)

// CategoryStats are request counts for one category, or for a whole deal.
// A request is completed when approved and answered when it has a document
// or a non-empty response.
type CategoryStats struct {
	Category          string  `json:"category,omitempty"`
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	Submitted         int     `json:"submitted"`
	Approved          int     `json:"approved"`
	Rejected          int     `json:"rejected"`
	WithDocuments     int     `json:"with_documents"`
	WithResponse      int     `json:"with_response"`
	Answered          int     `json:"answered"`
	Completed         int     `json:"completed"`
	CompletionPercent float64 `json:"completion_percent"`
}

func (c *CategoryStats) add(row repositories.RequestCountRow) {
	c.Total += row.Total
	c.WithDocuments += row.WithDocuments
	c.WithResponse += row.WithResponse
	c.Answered += row.Answered
	switch models.RequestStatus(row.Status) {
	case models.StatusPending:
		c.Pending += row.Total
	case models.StatusSubmitted:
		c.Submitted += row.Total
	case models.StatusApproved:
		c.Approved += row.Total
		c.Completed += row.Total
	case models.StatusRejected:
		c.Rejected += row.Total
	}
}

func (c *CategoryStats) finish() {
	c.CompletionPercent = percent(c.Completed, c.Total)
}

// DealStats are the counts of one deal, per category and overall.
type DealStats struct {
	DealID     string          `json:"deal_id"`
	Categories []CategoryStats `json:"categories"`
	Totals     CategoryStats   `json:"totals"`
}

// StatsService computes completion statistics.
type StatsService struct {
	stats StatsStore
	deals DealStore
}

// NewStatsService creates a new stats service
func NewStatsService(stats StatsStore, deals DealStore) *StatsService {
	return &StatsService{stats: stats, deals: deals}
}

// DealStats returns the statistics of one deal. Every known category is
// listed, in catalog order, even when it has no requests. An unknown deal is
// ErrNotFound.
func (s *StatsService) DealStats(ctx context.Context, actor *auth.Session, dealID string) (*DealStats, error) {
	if err := requireDeal(actor, dealID); err != nil {
		return nil, err
	}
	if err := requireDealExists(ctx, s.deals, dealID); err != nil {
		return nil, err
	}
	rows, err := s.stats.RequestCounts(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	return aggregate(dealID, rows), nil
}

// PortfolioStats returns statistics for every deal that has requests,
// ordered by deal id.
func (s *StatsService) PortfolioStats(ctx context.Context, actor *auth.Session) ([]*DealStats, error) {
	if err := requireCap(actor, auth.CapViewAllDeals); err != nil {
		return nil, err
	}
	rows, err := s.stats.AllRequestCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	byDeal := make(map[string][]repositories.RequestCountRow)
	for _, r := range rows {
		byDeal[r.DealID] = append(byDeal[r.DealID], r)
	}
	ids := make([]string, 0, len(byDeal))
	for id := range byDeal {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*DealStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, aggregate(id, byDeal[id]))
	}
	return out, nil
}

func aggregate(dealID string, rows []repositories.RequestCountRow) *DealStats {
	byCategory := make(map[string]*CategoryStats)
	order := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		byCategory[string(c)] = &CategoryStats{Category: string(c)}
		order = append(order, string(c))
	}

	ds := &DealStats{DealID: dealID}
	for _, row := range rows {
		cs, ok := byCategory[row.Category]
		if !ok {
			cs = &CategoryStats{Category: row.Category}
			byCategory[row.Category] = cs
			order = append(order, row.Category)
		}
		cs.add(row)
		ds.Totals.add(row)
	}

	ds.Categories = make([]CategoryStats, 0, len(order))
	for _, name := range order {
		cs := byCategory[name]
		cs.finish()
		ds.Categories = append(ds.Categories, *cs)
	}
	ds.Totals.finish()
	return ds
}

// percent rounds to one decimal place; zero of zero is zero.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}
