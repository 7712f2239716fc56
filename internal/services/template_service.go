package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/telemetry"
)

// ApplyOptions tunes ApplyTemplateToDeal.
type ApplyOptions struct {
	// ForceRefresh inserts every template item even when a request with the
	// same title already exists on the deal.
	ForceRefresh bool
	Notes        string
}

// ApplyResult reports what a template application did. MarkerRecorded is
// false when the requests were inserted but the application marker could not
// be written; the insert is not rolled back in that case.
type ApplyResult struct {
	Created        int  `json:"created"`
	Skipped        int  `json:"skipped"`
	MarkerRecorded bool `json:"marker_recorded"`
}

// TemplateService seeds deals with the standard request catalog.
type TemplateService struct {
	templates TemplateStore
	requests  RequestStore
	deals     DealStore
	audit     *audit.Logger
}

// NewTemplateService creates a new template service
func NewTemplateService(templates TemplateStore, requests RequestStore, deals DealStore, auditLogger *audit.Logger) *TemplateService {
	return &TemplateService{
		templates: templates,
		requests:  requests,
		deals:     deals,
		audit:     auditLogger,
	}
}

// ListItems returns the catalog in sort order.
func (s *TemplateService) ListItems(ctx context.Context) ([]*models.TemplateItem, error) {
	return s.templates.ListItems(ctx)
}

// ListApplications returns the template applications recorded for a deal.
func (s *TemplateService) ListApplications(ctx context.Context, dealID string) ([]*models.TemplateApplication, error) {
	return s.templates.ListApplications(ctx, dealID)
}

// ApplyTemplateToDeal creates one pending request per template item whose
// title is not already used on the deal. Titles are compared exactly and
// across categories. All new requests are inserted in a single statement.
func (s *TemplateService) ApplyTemplateToDeal(ctx context.Context, dealID, appliedBy string, opts ApplyOptions) (ApplyResult, error) {
	var result ApplyResult

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return result, fmt.Errorf("failed to load deal: %w", err)
	}
	if deal == nil {
		return result, ErrNotFound
	}

	items, err := s.templates.ListItems(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load template items: %w", err)
	}
	if len(items) == 0 {
		telemetry.TemplateApplicationsTotal.WithLabelValues("noop").Inc()
		return result, nil
	}

	titles, err := s.requests.ListTitlesByDeal(ctx, dealID)
	if err != nil {
		return result, fmt.Errorf("failed to load existing requests: %w", err)
	}
	existing := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		existing[t] = struct{}{}
	}

	toCreate := make([]*models.DiligenceRequest, 0, len(items))
	for _, item := range items {
		if _, dup := existing[item.Title]; dup && !opts.ForceRefresh {
			result.Skipped++
			continue
		}
		toCreate = append(toCreate, requestFromTemplate(dealID, item))
		if !opts.ForceRefresh {
			existing[item.Title] = struct{}{}
		}
	}

	if len(toCreate) == 0 {
		telemetry.TemplateApplicationsTotal.WithLabelValues("noop").Inc()
		return result, nil
	}

	if err := s.requests.BulkCreate(ctx, toCreate); err != nil {
		return result, fmt.Errorf("failed to create template requests: %w", err)
	}
	result.Created = len(toCreate)
	telemetry.TemplateRequestsCreatedTotal.Add(float64(result.Created))

	app := &models.TemplateApplication{
		DealID:       dealID,
		Notes:        optional(opts.Notes),
		CreatedCount: result.Created,
		SkippedCount: result.Skipped,
	}
	if appliedBy != "" {
		app.AppliedBy = &appliedBy
	}
	if err := s.templates.RecordApplication(ctx, app); err != nil {
		slog.Error("failed to record template application",
			"deal_id", dealID, "created", result.Created, "error", err)
		telemetry.TemplateApplicationsTotal.WithLabelValues("marker_failed").Inc()
	} else {
		result.MarkerRecorded = true
		telemetry.TemplateApplicationsTotal.WithLabelValues("seeded").Inc()
	}

	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventTemplateApplied,
		UserID:       appliedBy,
		ResourceType: "deal",
		ResourceID:   dealID,
		Details: map[string]any{
			"created":         result.Created,
			"skipped":         result.Skipped,
			"force_refresh":   opts.ForceRefresh,
			"marker_recorded": result.MarkerRecorded,
		},
	})
	return result, nil
}

func requestFromTemplate(dealID string, item *models.TemplateItem) *models.DiligenceRequest {
	return &models.DiligenceRequest{
		DealID:            dealID,
		Title:             item.Title,
		Description:       item.Description,
		Category:          item.Category,
		Priority:          item.Priority,
		Status:            models.StatusPending,
		PeriodText:        item.TypicalPeriod,
		AllowFileUpload:   item.AllowFileUpload,
		AllowTextResponse: item.AllowTextResponse,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
