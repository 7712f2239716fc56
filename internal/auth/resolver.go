package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/diligence-portal/portal/internal/db/models"
)

// UnresolvedReason says why a role could not be resolved.
type UnresolvedReason string

const (
	ReasonNoIdentity  UnresolvedReason = "no_identity"
	ReasonNotFound    UnresolvedReason = "profile_not_found"
	ReasonLookupError UnresolvedReason = "lookup_error"
	ReasonPanic       UnresolvedReason = "lookup_panic"
	ReasonUnknownRole UnresolvedReason = "unknown_role"
)

// ResolvedRole is either Known(role) or Unresolved(reason). The zero value is
// Unresolved. Consumers call Effective, which maps Unresolved to
// RestrictiveRole, so there is no path that treats a failed lookup as a
// privileged role.
type ResolvedRole struct {
	role   Role
	known  bool
	reason UnresolvedReason
}

// Known wraps a role read from a real profile.
func Known(r Role) ResolvedRole {
	return ResolvedRole{role: r, known: true}
}

// Unresolved records a failed resolution.
func Unresolved(reason UnresolvedReason) ResolvedRole {
	return ResolvedRole{reason: reason}
}

// IsKnown reports whether a profile granted the role.
func (r ResolvedRole) IsKnown() bool { return r.known }

// Reason is empty for known roles.
func (r ResolvedRole) Reason() UnresolvedReason { return r.reason }

// Effective is the role to authorize with.
func (r ResolvedRole) Effective() Role {
	if !r.known {
		return RestrictiveRole
	}
	return r.role
}

func (r ResolvedRole) String() string {
	if r.known {
		return fmt.Sprintf("Known(%s)", r.role)
	}
	return fmt.Sprintf("Unresolved(%s)", r.reason)
}

// ProfileLookup is the subset of the profile store the resolver needs.
// Implementations return nil, nil when the profile does not exist.
type ProfileLookup interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}

// Resolution is the outcome of resolving an identity. Profile is nil unless a
// profile row was found; nothing is fabricated on failure.
type Resolution struct {
	Role    ResolvedRole
	Profile *models.Profile
}

// Resolver turns an authenticated user ID into a role, failing closed.
type Resolver struct {
	profiles ProfileLookup
}

// NewResolver creates a resolver backed by profiles.
func NewResolver(profiles ProfileLookup) *Resolver {
	return &Resolver{profiles: profiles}
}

// Resolve never returns an error: every failure becomes Unresolved and is
// logged at warn level.
func (r *Resolver) Resolve(ctx context.Context, userID string) Resolution {
	if userID == "" {
		return Resolution{Role: Unresolved(ReasonNoIdentity)}
	}

	profile, err := r.lookup(ctx, userID)
	switch {
	case err != nil:
		reason := ReasonLookupError
		var p recoveredPanic
		if errors.As(err, &p) {
			reason = ReasonPanic
		}
		slog.Warn("role resolution failed, using restrictive role",
			"user_id", userID, "reason", reason, "error", err)
		return Resolution{Role: Unresolved(reason)}
	case profile == nil:
		slog.Warn("no profile for authenticated user, using restrictive role", "user_id", userID)
		return Resolution{Role: Unresolved(ReasonNotFound)}
	}

	role, ok := ParseRole(profile.Role)
	if !ok {
		slog.Warn("profile has unknown role, using restrictive role",
			"user_id", userID, "role", profile.Role)
		return Resolution{Role: Unresolved(ReasonUnknownRole), Profile: profile}
	}
	return Resolution{Role: Known(role), Profile: profile}
}

type recoveredPanic struct{ value any }

func (p recoveredPanic) Error() string { return fmt.Sprintf("panic: %v", p.value) }

func (r *Resolver) lookup(ctx context.Context, userID string) (profile *models.Profile, err error) {
	defer func() {
		if v := recover(); v != nil {
			profile, err = nil, recoveredPanic{value: v}
		}
	}()
	return r.profiles.GetByID(ctx, userID)
}
