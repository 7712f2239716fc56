package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/db/repositories"
	"github.com/diligence-portal/portal/internal/validation"
)

// ProfileInput creates or edits a profile. Email and Password are only read
// on create.
type ProfileInput struct {
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	Role         string  `json:"role"`
	Organization string  `json:"organization"`
	DealID       *string `json:"deal_id"`
	Password     string  `json:"password,omitempty"`
}

// ProfileService administers portal users.
type ProfileService struct {
	profiles ProfileStore
	deals    DealStore
	audit    *audit.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(profiles ProfileStore, deals DealStore, auditLogger *audit.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, deals: deals, audit: auditLogger}
}

// List returns profiles matching filters.
func (s *ProfileService) List(ctx context.Context, actor *auth.Session, filters repositories.ProfileFilters, limit, offset int) ([]*models.Profile, int, error) {
	if err := requireCap(actor, auth.CapManageProfiles); err != nil {
		return nil, 0, err
	}
	return s.profiles.List(ctx, filters, limit, offset)
}

// Assignable lists the profiles that requests of a deal may be assigned to.
// It backs the assignment picker and is open to request managers.
func (s *ProfileService) Assignable(ctx context.Context, actor *auth.Session, dealID string) ([]*models.Profile, error) {
	if err := requireCap(actor, auth.CapManageRequests); err != nil {
		return nil, err
	}
	profiles, _, err := s.profiles.List(ctx, repositories.ProfileFilters{DealID: dealID}, 500, 0)
	return profiles, err
}

// validate checks role, deal and the free-text fields of in.
func (s *ProfileService) validate(ctx context.Context, in *ProfileInput) (auth.Role, error) {
	role, ok := auth.ParseRole(in.Role)
	if !ok {
		return "", invalidf("unknown role %q", in.Role)
	}
	in.FullName = validation.SanitizeText(in.FullName)
	in.Organization = validation.SanitizeText(in.Organization)

	if in.DealID != nil && *in.DealID == "" {
		in.DealID = nil
	}
	if in.DealID != nil {
		d, err := s.deals.GetByID(ctx, *in.DealID)
		if err != nil {
			return "", fmt.Errorf("failed to load deal: %w", err)
		}
		if d == nil {
			return "", invalidf("deal does not exist")
		}
	}
	return role, nil
}

// Create invites a new user. A password is optional; users without one sign
// in through single sign-on.
func (s *ProfileService) Create(ctx context.Context, actor *auth.Session, in ProfileInput) (*models.Profile, error) {
	if err := requireCap(actor, auth.CapManageProfiles); err != nil {
		return nil, err
	}
	email := validation.ValidateInput(in.Email, validation.KindEmail)
	if !email.Valid {
		return nil, invalidf("%s", email.Error)
	}
	if email.Sanitized == "" {
		return nil, invalidf("email is required")
	}
	role, err := s.validate(ctx, &in)
	if err != nil {
		return nil, err
	}

	existing, err := s.profiles.GetByEmail(ctx, email.Sanitized)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, invalidf("a profile with this email already exists")
	}

	now := time.Now()
	p := &models.Profile{
		Email:        email.Sanitized,
		FullName:     in.FullName,
		Role:         string(role),
		Organization: optional(in.Organization),
		DealID:       in.DealID,
		InvitedBy:    actorRef(actor),
		InvitedAt:    &now,
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, invalidf("%s", err.Error())
		}
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		p.PasswordHash = &hash
	}

	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventProfileCreated,
		UserID:       actorID(actor),
		ResourceType: "profile",
		ResourceID:   p.ID,
		Details:      map[string]any{"email": p.Email, "role": p.Role},
	})
	return p, nil
}

// Update changes name, role, organization and deal of a profile.
func (s *ProfileService) Update(ctx context.Context, actor *auth.Session, id string, in ProfileInput) (*models.Profile, error) {
	if err := requireCap(actor, auth.CapManageProfiles); err != nil {
		return nil, err
	}
	role, err := s.validate(ctx, &in)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}

	previousRole := p.Role
	p.FullName = in.FullName
	p.Role = string(role)
	p.Organization = optional(in.Organization)
	p.DealID = in.DealID

	ok, err := s.profiles.Update(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventProfileUpdated,
		UserID:       actorID(actor),
		ResourceType: "profile",
		ResourceID:   p.ID,
		Details:      map[string]any{"role": p.Role, "previous_role": previousRole},
	})
	return p, nil
}
