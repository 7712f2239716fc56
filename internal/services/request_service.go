package services

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/db/repositories"
	"github.com/diligence-portal/portal/internal/storage"
	"github.com/diligence-portal/portal/internal/telemetry"
	"github.com/diligence-portal/portal/internal/validation"
)

const (
	maxTitleLength       = 500
	maxDescriptionLength = 5000
	maxPeriodLength      = 200
)

// RequestInput is the editable content of a request.
type RequestInput struct {
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Category          models.Category `json:"category"`
	Priority          models.Priority `json:"priority"`
	PeriodText        string          `json:"period_text"`
	AllowFileUpload   bool            `json:"allow_file_upload"`
	AllowTextResponse bool            `json:"allow_text_response"`
}

// normalize sanitizes the free-text fields and checks the enums.
func (in *RequestInput) normalize() error {
	in.Title = validation.SanitizeText(in.Title)
	in.Description = validation.SanitizeText(in.Description)
	in.PeriodText = validation.SanitizeText(in.PeriodText)

	if in.Title == "" {
		return invalidf("title is required")
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLength {
		return invalidf("title must be %d characters or fewer", maxTitleLength)
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		return invalidf("description must be %d characters or fewer", maxDescriptionLength)
	}
	if utf8.RuneCountInString(in.PeriodText) > maxPeriodLength {
		return invalidf("period must be %d characters or fewer", maxPeriodLength)
	}
	if !in.Category.Valid() {
		return invalidf("unknown category %q", in.Category)
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return invalidf("unknown priority %q", in.Priority)
	}
	if !in.AllowFileUpload && !in.AllowTextResponse {
		return invalidf("a request must accept file uploads, text responses, or both")
	}
	return nil
}

// BatchFailure is one row a bulk mutation could not update.
type BatchFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult reports a bulk mutation row by row. Rows are independent: a
// failure on one does not undo the others.
type BatchResult struct {
	Attempted int            `json:"attempted"`
	Updated   []string       `json:"updated"`
	Failed    []BatchFailure `json:"failed"`
}

// Success reports whether every attempted row was updated.
func (r BatchResult) Success() bool {
	return r.Attempted > 0 && len(r.Failed) == 0
}

// RequestDetail is a request with everything attached to it.
type RequestDetail struct {
	*models.RequestWithAssignee
	Documents []*models.RequestDocument `json:"documents"`
	Response  *models.RequestResponse   `json:"response,omitempty"`
}

// RequestService manages diligence requests and their lifecycle.
type RequestService struct {
	requests  RequestStore
	deals     DealStore
	profiles  ProfileStore
	documents DocumentStore
	responses ResponseStore
	cleanup   CleanupQueue
	storage   storage.Storage
	audit     *audit.Logger
}

// NewRequestService creates a new request service
func NewRequestService(
	requests RequestStore,
	deals DealStore,
	profiles ProfileStore,
	documents DocumentStore,
	responses ResponseStore,
	cleanup CleanupQueue,
	storageBackend storage.Storage,
	auditLogger *audit.Logger,
) *RequestService {
	return &RequestService{
		requests:  requests,
		deals:     deals,
		profiles:  profiles,
		documents: documents,
		responses: responses,
		cleanup:   cleanup,
		storage:   storageBackend,
		audit:     auditLogger,
	}
}

// List returns requests matching filters with their assignees attached.
// Deal-scoped callers only ever see their own deal.
func (s *RequestService) List(ctx context.Context, actor *auth.Session, filters repositories.RequestFilters, limit, offset int) ([]*models.RequestWithAssignee, int, error) {
	if !actor.Can(auth.CapViewAllDeals) {
		scoped := actor.DealID()
		if scoped == "" {
			return []*models.RequestWithAssignee{}, 0, nil
		}
		if filters.DealID != "" && filters.DealID != scoped {
			return nil, 0, ErrForbidden
		}
		filters.DealID = scoped
	}

	reqs, total, err := s.requests.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if r.AssignedTo != nil {
			ids = append(ids, *r.AssignedTo)
		}
	}
	assignees := map[string]*models.Profile{}
	if len(ids) > 0 {
		assignees, err = s.profiles.GetMany(ctx, ids)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load assignees: %w", err)
		}
	}

	out := make([]*models.RequestWithAssignee, 0, len(reqs))
	for _, r := range reqs {
		item := &models.RequestWithAssignee{DiligenceRequest: *r}
		if r.AssignedTo != nil {
			item.Assignee = assignees[*r.AssignedTo]
		}
		out = append(out, item)
	}
	return out, total, nil
}

// Get loads a request with its assignee, documents and response.
func (s *RequestService) Get(ctx context.Context, actor *auth.Session, id string) (*RequestDetail, error) {
	req, err := s.requests.GetWithAssignee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if err := requireDeal(actor, req.DealID); err != nil {
		return nil, err
	}

	docs, err := s.documents.ListByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	resp, err := s.responses.GetByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load response: %w", err)
	}
	return &RequestDetail{RequestWithAssignee: req, Documents: docs, Response: resp}, nil
}

// GetForEdit loads the current request and assignee to pre-populate an edit
// or single-assignment form.
func (s *RequestService) GetForEdit(ctx context.Context, actor *auth.Session, id string) (*models.RequestWithAssignee, error) {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return nil, err
	}
	req, err := s.requests.GetWithAssignee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	return req, nil
}

// Create adds a pending request to a deal.
func (s *RequestService) Create(ctx context.Context, actor *auth.Session, dealID string, in RequestInput) (*models.DiligenceRequest, error) {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return nil, err
	}
	if err := requireDealExists(ctx, s.deals, dealID); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	req := &models.DiligenceRequest{
		DealID:            dealID,
		Title:             in.Title,
		Description:       in.Description,
		Category:          in.Category,
		Priority:          in.Priority,
		Status:            models.StatusPending,
		PeriodText:        optional(in.PeriodText),
		AllowFileUpload:   in.AllowFileUpload,
		AllowTextResponse: in.AllowTextResponse,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventRequestCreated,
		UserID:       actorID(actor),
		ResourceType: "request",
		ResourceID:   req.ID,
		Details:      map[string]any{"deal_id": dealID, "title": req.Title, "category": req.Category},
	})
	return req, nil
}

// Update replaces the editable content of a request.
func (s *RequestService) Update(ctx context.Context, actor *auth.Session, id string, in RequestInput) (*models.DiligenceRequest, error) {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}

	req.Title = in.Title
	req.Description = in.Description
	req.Category = in.Category
	req.Priority = in.Priority
	req.PeriodText = optional(in.PeriodText)
	req.AllowFileUpload = in.AllowFileUpload
	req.AllowTextResponse = in.AllowTextResponse

	ok, err := s.requests.Update(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventRequestUpdated,
		UserID:       actorID(actor),
		ResourceType: "request",
		ResourceID:   id,
		Details:      map[string]any{"title": req.Title},
	})
	return req, nil
}

// Delete removes a request. Its rows cascade in the database; the storage
// objects of its documents are removed afterwards and any that cannot be
// removed are queued for the cleanup reconciler.
func (s *RequestService) Delete(ctx context.Context, actor *auth.Session, id string) error {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return err
	}

	docs, err := s.documents.ListByRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}

	ok, err := s.requests.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	for _, d := range docs {
		if err := s.storage.Delete(ctx, d.StoragePath); err != nil {
			slog.Warn("failed to delete document object of deleted request",
				"request_id", id, "document_id", d.ID, "error", err)
			if qerr := s.cleanup.Enqueue(ctx, d.StoragePath, models.CleanupRequestDeleted, err.Error()); qerr != nil {
				slog.Error("failed to queue document object for cleanup",
					"request_id", id, "document_id", d.ID, "error", qerr)
			}
		}
	}

	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventRequestDeleted,
		UserID:       actorID(actor),
		ResourceType: "request",
		ResourceID:   id,
		Details:      map[string]any{"documents": len(docs)},
	})
	return nil
}

// Assign sets the assignee of every request in ids, or clears it when
// userID is nil. An assignee must be an existing profile.
func (s *RequestService) Assign(ctx context.Context, actor *auth.Session, ids []string, userID *string) (BatchResult, error) {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return BatchResult{}, err
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return BatchResult{}, invalidf("no requests selected")
	}
	if userID != nil && *userID == "" {
		userID = nil
	}
	if userID != nil {
		exists, err := s.profiles.Exists(ctx, *userID)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to check assignee: %w", err)
		}
		if !exists {
			return BatchResult{}, invalidf("assignee does not exist")
		}
	}

	result := s.applyEach(ctx, "assign", ids, func(id string) (bool, error) {
		return s.requests.SetAssignee(ctx, id, userID)
	})

	details := map[string]any{
		"request_ids": result.Updated,
		"attempted":   result.Attempted,
		"failed":      len(result.Failed),
	}
	if userID != nil {
		details["assigned_to"] = *userID
	} else {
		details["assigned_to"] = nil
	}
	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventRequestAssignment,
		UserID:       actorID(actor),
		ResourceType: "request",
		ResourceID:   batchResourceID(ids),
		Details:      details,
	})
	return result, nil
}

// BulkSetStatus moves every request in ids to status. Statuses are
// unordered; any status may follow any other.
func (s *RequestService) BulkSetStatus(ctx context.Context, actor *auth.Session, ids []string, status models.RequestStatus) (BatchResult, error) {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return BatchResult{}, err
	}
	if !status.Valid() {
		return BatchResult{}, invalidf("unknown status %q", status)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return BatchResult{}, invalidf("no requests selected")
	}

	result := s.applyEach(ctx, "status", ids, func(id string) (bool, error) {
		return s.requests.SetStatus(ctx, id, status)
	})

	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventRequestStatusChange,
		UserID:       actorID(actor),
		ResourceType: "request",
		ResourceID:   batchResourceID(ids),
		Details: map[string]any{
			"request_ids": result.Updated,
			"status":      status,
			"attempted":   result.Attempted,
			"failed":      len(result.Failed),
		},
	})
	return result, nil
}

// applyEach runs fn for every id and records the outcome of each.
func (s *RequestService) applyEach(ctx context.Context, operation string, ids []string, fn func(id string) (bool, error)) BatchResult {
	result := BatchResult{
		Attempted: len(ids),
		Updated:   make([]string, 0, len(ids)),
		Failed:    make([]BatchFailure, 0),
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, BatchFailure{ID: id, Reason: "cancelled"})
			telemetry.BulkMutationsTotal.WithLabelValues(operation, "failed").Inc()
			continue
		}
		ok, err := fn(id)
		switch {
		case err != nil:
			slog.Error("bulk request mutation failed", "operation", operation, "request_id", id, "error", err)
			result.Failed = append(result.Failed, BatchFailure{ID: id, Reason: "update failed"})
			telemetry.BulkMutationsTotal.WithLabelValues(operation, "failed").Inc()
		case !ok:
			result.Failed = append(result.Failed, BatchFailure{ID: id, Reason: "not found"})
			telemetry.BulkMutationsTotal.WithLabelValues(operation, "not_found").Inc()
		default:
			result.Updated = append(result.Updated, id)
			telemetry.BulkMutationsTotal.WithLabelValues(operation, "updated").Inc()
		}
	}
	return result
}

// markSubmitted applies the automatic pending -> submitted move that follows
// a seller's upload or response. Failure is logged and does not fail the
// caller's operation.
func markSubmitted(ctx context.Context, requests RequestStore, actor *auth.Session, requestID string) bool {
	if !actor.EffectiveRole().IsSeller() {
		return false
	}
	moved, err := requests.MarkSubmittedIfPending(ctx, requestID)
	if err != nil {
		slog.Error("failed to mark request submitted", "request_id", requestID, "error", err)
		return false
	}
	return moved
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// batchResourceID names the audited resource of a bulk operation: the id
// itself for a single row, empty otherwise (ids are in the details).
func batchResourceID(ids []string) string {
	if len(ids) == 1 {
		return ids[0]
	}
	return ""
}
