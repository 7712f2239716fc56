package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/auth/oidc"
	"github.com/diligence-portal/portal/internal/db/models"
)

// LoginStore is the profile lookup used by sign-in.
type LoginStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetByOIDCSub(ctx context.Context, sub string) (*models.Profile, error)
	LinkOIDCSub(ctx context.Context, id, sub string) error
}

// ErrNoProfile is returned when single sign-on succeeds for an identity
// that has no portal profile. Profiles are created by invitation only.
var ErrNoProfile = errors.New("no portal profile for this identity")

// AuthService turns credentials into sessions through the SessionProvider.
type AuthService struct {
	profiles LoginStore
	sessions *auth.SessionProvider
	audit    *audit.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(profiles LoginStore, sessions *auth.SessionProvider, auditLogger *audit.Logger) *AuthService {
	return &AuthService{profiles: profiles, sessions: sessions, audit: auditLogger}
}

// LoginWithPassword checks an email and password and signs the user in.
// Every failure is reported as auth.ErrInvalidCredentials.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	p, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}
	if p == nil {
		// No identity to attribute the attempt to; the audit logger drops it.
		s.loginFailed(ctx, "", "password", "unknown_email")
		return nil, auth.ErrInvalidCredentials
	}
	if err := auth.CheckPassword(p.PasswordHash, password); err != nil {
		s.loginFailed(ctx, p.ID, "password", "bad_password")
		return nil, auth.ErrInvalidCredentials
	}

	return s.sessions.Apply(ctx, auth.Change{
		Kind:   auth.ChangeSignIn,
		UserID: p.ID,
		Email:  p.Email,
		Method: "password",
	})
}

// LoginWithIdentity signs in the profile matching a verified SSO identity.
// A profile found by email is linked to the identity's subject on first use.
func (s *AuthService) LoginWithIdentity(ctx context.Context, id *oidc.Identity) (*auth.Session, error) {
	p, err := s.profiles.GetByOIDCSub(ctx, id.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}
	if p == nil {
		if !id.EmailVerified {
			return nil, ErrNoProfile
		}
		p, err = s.profiles.GetByEmail(ctx, strings.ToLower(id.Email))
		if err != nil {
			return nil, fmt.Errorf("failed to look up profile: %w", err)
		}
		if p == nil {
			return nil, ErrNoProfile
		}
		if p.OIDCSub != nil && *p.OIDCSub != id.Subject {
			s.loginFailed(ctx, p.ID, "oidc", "subject_mismatch")
			return nil, ErrNoProfile
		}
		if err := s.profiles.LinkOIDCSub(ctx, p.ID, id.Subject); err != nil {
			slog.Error("failed to link SSO subject", "profile_id", p.ID, "error", err)
		}
	}

	return s.sessions.Apply(ctx, auth.Change{
		Kind:   auth.ChangeSignIn,
		UserID: p.ID,
		Email:  p.Email,
		Method: "oidc",
	})
}

// Logout ends a session. Subscribers are told so the logout is audited.
func (s *AuthService) Logout(ctx context.Context, session *auth.Session) error {
	_, err := s.sessions.Apply(ctx, auth.Change{
		Kind:      auth.ChangeSignOut,
		UserID:    session.UserID,
		Email:     session.Email,
		SessionID: session.ID,
		Method:    session.Method,
		ExpiresAt: session.ExpiresAt,
	})
	return err
}

func (s *AuthService) loginFailed(ctx context.Context, userID, method, reason string) {
	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventLoginFailed,
		UserID:       userID,
		ResourceType: "session",
		Details:      map[string]any{"method": method, "reason": reason},
	})
}
