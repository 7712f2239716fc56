package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/auth/oidc"
	"github.com/diligence-portal/portal/internal/db/models"
)

func newAuthFixture(t *testing.T, ps ...*models.Profile) (*AuthService, *fakeProfiles) {
	t.Helper()
	profiles := newFakeProfiles(ps...)
	provider := auth.NewSessionProvider(auth.NewResolver(profiles), nil, time.Hour)
	return NewAuthService(profiles, provider, audit.Disabled()), profiles
}

func TestLoginWithPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct-horse-battery")
	require.NoError(t, err)
	svc, _ := newAuthFixture(t, &models.Profile{ID: "p1", Email: "alice@example.com", Role: "bbt_legal", PasswordHash: &hash})
	ctx := context.Background()

	s, err := svc.LoginWithPassword(ctx, " Alice@Example.com", "correct-horse-battery")
	require.NoError(t, err)
	assert.Equal(t, "p1", s.UserID)
	assert.Equal(t, auth.RoleBBTLegal, s.EffectiveRole())
	assert.NotEmpty(t, s.Token)

	claims, err := auth.ValidateJWT(s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.SessionID())

	for _, tc := range []struct{ email, password string }{
		{"alice@example.com", "wrong-password-123"},
		{"nobody@example.com", "correct-horse-battery"},
		{"", ""},
	} {
		_, err := svc.LoginWithPassword(ctx, tc.email, tc.password)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}
}

func TestLoginWithPassword_UnknownRoleIsRestricted(t *testing.T) {
	hash, err := auth.HashPassword("correct-horse-battery")
	require.NoError(t, err)
	svc, _ := newAuthFixture(t, &models.Profile{ID: "p1", Email: "x@example.com", Role: "superuser", PasswordHash: &hash})

	s, err := svc.LoginWithPassword(context.Background(), "x@example.com", "correct-horse-battery")
	require.NoError(t, err)
	assert.False(t, s.Role.IsKnown())
	assert.Equal(t, auth.RoleSeller, s.EffectiveRole())
}

func TestLoginWithIdentity(t *testing.T) {
	linked := "sub-linked"
	other := "sub-other"
	svc, profiles := newAuthFixture(t,
		&models.Profile{ID: "p1", Email: "linked@example.com", Role: "admin", OIDCSub: &linked},
		&models.Profile{ID: "p2", Email: "new@example.com", Role: "rsm"},
		&models.Profile{ID: "p3", Email: "taken@example.com", Role: "rsm", OIDCSub: &other},
	)
	ctx := context.Background()

	s, err := svc.LoginWithIdentity(ctx, &oidc.Identity{Subject: "sub-linked", Email: "changed@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "p1", s.UserID)

	s, err = svc.LoginWithIdentity(ctx, &oidc.Identity{Subject: "sub-new", Email: "New@example.com", EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, "p2", s.UserID)
	require.NotNil(t, profiles.rows["p2"].OIDCSub)
	assert.Equal(t, "sub-new", *profiles.rows["p2"].OIDCSub)

	_, err = svc.LoginWithIdentity(ctx, &oidc.Identity{Subject: "sub-x", Email: "new@example.com", EmailVerified: false})
	assert.ErrorIs(t, err, ErrNoProfile)

	_, err = svc.LoginWithIdentity(ctx, &oidc.Identity{Subject: "sub-y", Email: "stranger@example.com", EmailVerified: true})
	assert.ErrorIs(t, err, ErrNoProfile)

	_, err = svc.LoginWithIdentity(ctx, &oidc.Identity{Subject: "sub-z", Email: "taken@example.com", EmailVerified: true})
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestLogout(t *testing.T) {
	svc, _ := newAuthFixture(t, &models.Profile{ID: "p1", Email: "a@example.com", Role: "seller"})
	assert.NoError(t, svc.Logout(context.Background(), &auth.Session{ID: "s1", UserID: "p1"}))
	assert.ErrorIs(t, svc.Logout(context.Background(), &auth.Session{ID: "s1"}), auth.ErrNoIdentity)
}
