package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/safego"
	"github.com/google/uuid"
)

// ErrNoIdentity is returned by Apply when a change carries no user.
var ErrNoIdentity = errors.New("session change has no identity")

// ErrSessionRevoked is returned by Apply when a token belongs to a session
// that has signed out.
var ErrSessionRevoked = errors.New("session has been signed out")

// ChangeKind is the kind of auth-state transition handed to Apply.
type ChangeKind string

const (
	// ChangeSignIn starts a session and issues a token.
	ChangeSignIn ChangeKind = "sign_in"
	// ChangeSignOut ends a session. Its token is refused from then on.
	ChangeSignOut ChangeKind = "sign_out"
	// ChangeResume rebuilds a session from a presented token, once per
	// request. Subscribers are not notified. Signed-out sessions fail with
	// ErrSessionRevoked.
	ChangeResume ChangeKind = "resume"
)

// Change describes an auth-state transition.
type Change struct {
	Kind      ChangeKind
	UserID    string
	Email     string
	SessionID string
	// Method is how the user authenticated ("password" or "oidc").
	Method    string
	ExpiresAt time.Time
}

// Session is the per-request view of who is calling and what they may do.
// It is built only by SessionProvider.Apply.
type Session struct {
	ID        string
	UserID    string
	Email     string
	Method    string
	Role      ResolvedRole
	Profile   *models.Profile
	ExpiresAt time.Time
	// Token is set only on sign-in.
	Token string
}

// EffectiveRole is the role every authorization check uses.
func (s *Session) EffectiveRole() Role {
	if s == nil {
		return RestrictiveRole
	}
	return s.Role.Effective()
}

// Can reports whether the session's effective role holds c.
func (s *Session) Can(c Capability) bool {
	return s.EffectiveRole().Can(c)
}

// DealID is the deal a scoped profile is limited to, or "" when none.
func (s *Session) DealID() string {
	if s == nil || s.Profile == nil || s.Profile.DealID == nil {
		return ""
	}
	return *s.Profile.DealID
}

// CanAccessDeal reports whether the session may read data in dealID.
func (s *Session) CanAccessDeal(dealID string) bool {
	if s.Can(CapViewAllDeals) {
		return true
	}
	scoped := s.DealID()
	return scoped != "" && scoped == dealID
}

// EventKind identifies a session notification.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// SessionEvent is delivered to subscribers after a sign-in or sign-out.
type SessionEvent struct {
	Kind    EventKind
	Session *Session
	At      time.Time
}

// Subscriber receives session events on its own goroutine. ctx carries the
// originating request's values but not its cancellation.
type Subscriber func(ctx context.Context, ev SessionEvent)

// SessionProvider is the single entry point for auth-state changes. It is
// built once at startup and shared by the auth handlers and middleware.
type SessionProvider struct {
	resolver *Resolver
	revoked  RevocationStore
	ttl      time.Duration

	mu          sync.RWMutex
	subscribers map[int]Subscriber
	nextSubID   int

	now func() time.Time
}

// NewSessionProvider creates a provider issuing tokens valid for ttl.
// Signed-out sessions are recorded in revoked; nil keeps them in memory.
func NewSessionProvider(resolver *Resolver, revoked RevocationStore, ttl time.Duration) *SessionProvider {
	if revoked == nil {
		revoked = NewMemoryRevocationStore()
	}
	return &SessionProvider{
		resolver:    resolver,
		revoked:     revoked,
		ttl:         ttl,
		subscribers: make(map[int]Subscriber),
		now:         time.Now,
	}
}

// Subscribe registers fn for sign-in and sign-out events and returns a
// function that removes it.
func (p *SessionProvider) Subscribe(fn Subscriber) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// Apply processes one auth-state change.
//
// Sign-in resolves the role, issues a token and notifies subscribers. Resume
// refuses revoked sessions and resolves the role for a token that was already
// verified. Sign-out revokes the session until its expiry, notifies
// subscribers and returns the closed session. Notifications are dispatched
// without waiting, so a slow subscriber never delays the caller.
func (p *SessionProvider) Apply(ctx context.Context, change Change) (*Session, error) {
	if change.UserID == "" {
		return nil, ErrNoIdentity
	}

	s := &Session{
		ID:        change.SessionID,
		UserID:    change.UserID,
		Email:     change.Email,
		Method:    change.Method,
		ExpiresAt: change.ExpiresAt,
	}

	switch change.Kind {
	case ChangeSignIn:
		s.ID = uuid.New().String()
		s.ExpiresAt = p.now().Add(p.ttl)
		p.resolve(ctx, s)
		token, err := GenerateJWT(s.UserID, s.Email, s.ID, p.ttl)
		if err != nil {
			return nil, err
		}
		s.Token = token
		p.notify(ctx, EventSignedIn, s)
	case ChangeResume:
		if s.ID == "" {
			return nil, ErrSessionRevoked
		}
		revoked, err := p.revoked.IsRevoked(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrSessionRevoked
		}
		p.resolve(ctx, s)
	case ChangeSignOut:
		if s.ID == "" {
			return nil, ErrNoIdentity
		}
		if err := p.revoked.Revoke(ctx, s.ID, s.ExpiresAt); err != nil {
			return nil, err
		}
		p.notify(ctx, EventSignedOut, s)
	default:
		return nil, errors.New("unknown session change: " + string(change.Kind))
	}
	return s, nil
}

func (p *SessionProvider) resolve(ctx context.Context, s *Session) {
	res := p.resolver.Resolve(ctx, s.UserID)
	s.Role = res.Role
	s.Profile = res.Profile
}

func (p *SessionProvider) notify(ctx context.Context, kind EventKind, s *Session) {
	p.mu.RLock()
	subs := make([]Subscriber, 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.RUnlock()

	ev := SessionEvent{Kind: kind, Session: s, At: p.now()}
	detached := context.WithoutCancel(ctx)
	for _, fn := range subs {
		fn := fn // per-iteration copy; go.mod targets go1.21 loop semantics
		safego.Go("session-subscriber", func() { fn(detached, ev) })
	}
}

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
