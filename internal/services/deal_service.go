package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/validation"
)

const maxDealNameLength = 200

// DealInput is the editable content of a deal.
type DealInput struct {
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
	ProjectName string `json:"project_name"`
}

func (in *DealInput) normalize() error {
	in.Name = validation.SanitizeText(in.Name)
	in.CompanyName = validation.SanitizeText(in.CompanyName)
	in.ProjectName = validation.SanitizeText(in.ProjectName)
	if in.Name == "" {
		return invalidf("deal name is required")
	}
	for _, v := range []string{in.Name, in.CompanyName, in.ProjectName} {
		if utf8.RuneCountInString(v) > maxDealNameLength {
			return invalidf("deal names must be %d characters or fewer", maxDealNameLength)
		}
	}
	return nil
}

// DealService manages deals.
type DealService struct {
	deals DealStore
	audit *audit.Logger
}

// NewDealService creates a new deal service
func NewDealService(deals DealStore, auditLogger *audit.Logger) *DealService {
	return &DealService{deals: deals, audit: auditLogger}
}

// List returns the deals visible to actor: all of them for roles that view
// every deal, otherwise only the profile's own deal.
func (s *DealService) List(ctx context.Context, actor *auth.Session) ([]*models.Deal, error) {
	if actor.Can(auth.CapViewAllDeals) {
		return s.deals.List(ctx, nil)
	}
	scoped := actor.DealID()
	if scoped == "" {
		return []*models.Deal{}, nil
	}
	return s.deals.List(ctx, &scoped)
}

// Get returns one deal.
func (s *DealService) Get(ctx context.Context, actor *auth.Session, id string) (*models.Deal, error) {
	if err := requireDeal(actor, id); err != nil {
		return nil, err
	}
	d, err := s.deals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

// Create adds a deal.
func (s *DealService) Create(ctx context.Context, actor *auth.Session, in DealInput) (*models.Deal, error) {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	d := &models.Deal{
		Name:        in.Name,
		CompanyName: optional(in.CompanyName),
		ProjectName: optional(in.ProjectName),
		CreatedBy:   actorRef(actor),
	}
	if err := s.deals.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}
	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventDealCreated,
		UserID:       actorID(actor),
		ResourceType: "deal",
		ResourceID:   d.ID,
		Details:      map[string]any{"name": d.Name},
	})
	return d, nil
}

// Update renames a deal.
func (s *DealService) Update(ctx context.Context, actor *auth.Session, id string, in DealInput) (*models.Deal, error) {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	d, err := s.deals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	d.Name = in.Name
	d.CompanyName = optional(in.CompanyName)
	d.ProjectName = optional(in.ProjectName)

	ok, err := s.deals.Update(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to update deal: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventDealUpdated,
		UserID:       actorID(actor),
		ResourceType: "deal",
		ResourceID:   d.ID,
		Details:      map[string]any{"name": d.Name},
	})
	return d, nil
}
