package services

import (
	"context"
	"fmt"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/validation"
)

// ResponseService manages the text answer attached to a request.
type ResponseService struct {
	responses ResponseStore
	requests  RequestStore
	audit     *audit.Logger
}

// NewResponseService creates a new response service
func NewResponseService(responses ResponseStore, requests RequestStore, auditLogger *audit.Logger) *ResponseService {
	return &ResponseService{responses: responses, requests: requests, audit: auditLogger}
}

// Submit validates and stores the response text for a request, replacing
// any earlier answer. kind selects the questionnaire check; empty means
// free text. A seller's response moves a pending request to submitted.
func (s *ResponseService) Submit(ctx context.Context, actor *auth.Session, requestID, text string, kind validation.InputKind) (*models.RequestResponse, error) {
	if err := requireCap(actor, auth.CapSubmitResponses); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = validation.KindText
	}
	res := validation.ValidateQuestionnaireResponse(text, kind)
	if !res.Valid {
		return nil, invalidf("%s", res.Error)
	}
	if res.Sanitized == "" {
		return nil, invalidf("response is required")
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if err := requireDeal(actor, req.DealID); err != nil {
		return nil, err
	}
	if !req.AllowTextResponse {
		return nil, invalidf("this request does not accept text responses")
	}

	resp := &models.RequestResponse{
		RequestID:    requestID,
		ResponseText: res.Sanitized,
		SubmittedBy:  actorRef(actor),
	}
	if err := s.responses.Upsert(ctx, resp); err != nil {
		return nil, fmt.Errorf("failed to save response: %w", err)
	}

	submitted := markSubmitted(ctx, s.requests, actor, requestID)
	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventResponseSubmitted,
		UserID:       actorID(actor),
		ResourceType: "request",
		ResourceID:   requestID,
		Details:      map[string]any{"length": len(resp.ResponseText), "auto_submitted": submitted},
	})
	return resp, nil
}
