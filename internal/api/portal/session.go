// session.go implements sign-in (password and SSO), sign-out, the current
// session view, CSRF token issue and the role dashboard.
package portal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/diligence-portal/portal/internal/api/respond"
	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/auth/oidc"
	"github.com/diligence-portal/portal/internal/config"
	"github.com/diligence-portal/portal/internal/middleware"
	"github.com/diligence-portal/portal/internal/services"
	"github.com/diligence-portal/portal/internal/validation"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

const ssoStateTTL = 5 * time.Minute

// IdentityProvider is the SSO code flow used by the callback handler.
type IdentityProvider interface {
	AuthCodeURL(state, nonce, pkceVerifier string) string
	Exchange(ctx context.Context, code, pkceVerifier, nonce string) (*oidc.Identity, error)
}

type ssoState struct {
	nonce     string
	verifier  string
	createdAt time.Time
}

// SessionHandlers handles authentication endpoints.
type SessionHandlers struct {
	cfg      *config.Config
	auth     *services.AuthService
	csrf     validation.CSRFStore
	provider IdentityProvider
	audit    *audit.Logger

	mu     sync.Mutex
	states map[string]ssoState
	now    func() time.Time
}

// NewSessionHandlers creates the auth handlers. provider may be nil when SSO
// is disabled.
func NewSessionHandlers(cfg *config.Config, authService *services.AuthService, csrf validation.CSRFStore, provider IdentityProvider, auditLogger *audit.Logger) *SessionHandlers {
	return &SessionHandlers{
		cfg:      cfg,
		auth:     authService,
		csrf:     csrf,
		provider: provider,
		audit:    auditLogger,
		states:   make(map[string]ssoState),
		now:      time.Now,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// sessionBody is what a successful sign-in returns.
func (h *SessionHandlers) sessionBody(c *gin.Context, s *auth.Session) (gin.H, error) {
	csrfToken, err := h.csrf.Token(c.Request.Context(), s.ID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"token":      s.Token,
		"expires_at": s.ExpiresAt,
		"csrf_token": csrfToken,
		"user":       describeSession(s),
	}, nil
}

// describeSession is the client view of a session. The role shown is the
// effective one; role_resolved tells the UI whether it fell back.
func describeSession(s *auth.Session) gin.H {
	role := s.EffectiveRole()
	body := gin.H{
		"id":            s.UserID,
		"email":         s.Email,
		"role":          role,
		"role_resolved": s.Role.IsKnown(),
		"capabilities":  role.Capabilities(),
		"deal_id":       nil,
	}
	if s.Profile != nil {
		body["full_name"] = s.Profile.DisplayName()
		body["deal_id"] = s.Profile.DealID
		body["organization"] = s.Profile.Organization
	}
	return body
}

// LoginHandler signs in with email and password.
// POST /api/v1/auth/login
func (h *SessionHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.cfg.Auth.PasswordLogin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Password sign-in is disabled"})
			return
		}

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, "email and password are required")
			return
		}

		session, err := h.auth.LoginWithPassword(c.Request.Context(), req.Email, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		if err != nil {
			respond.Error(c, err)
			return
		}

		body, err := h.sessionBody(c, session)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SSOLoginHandler starts the OIDC code flow.
// GET /api/v1/auth/sso/login
func (h *SessionHandlers) SSOLoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.provider == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Single sign-on is not configured"})
			return
		}

		state, err := randomString(32)
		if err != nil {
			respond.Error(c, err)
			return
		}
		nonce, err := randomString(16)
		if err != nil {
			respond.Error(c, err)
			return
		}
		verifier := oauth2.GenerateVerifier()

		h.mu.Lock()
		h.pruneStatesLocked()
		h.states[state] = ssoState{nonce: nonce, verifier: verifier, createdAt: h.now()}
		h.mu.Unlock()

		c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state, nonce, verifier))
	}
}

func (h *SessionHandlers) pruneStatesLocked() {
	cutoff := h.now().Add(-ssoStateTTL)
	for k, st := range h.states {
		if st.createdAt.Before(cutoff) {
			delete(h.states, k)
		}
	}
}

// takeState removes and returns a pending SSO state if it is still valid.
func (h *SessionHandlers) takeState(state string) (ssoState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.states[state]
	if !ok {
		return ssoState{}, false
	}
	delete(h.states, state)
	if h.now().Sub(st.createdAt) > ssoStateTTL {
		return ssoState{}, false
	}
	return st, true
}

// SSOCallbackHandler completes the code flow and hands the session to the
// frontend in the URL fragment, so the token never reaches server logs.
// GET /api/v1/auth/sso/callback
func (h *SessionHandlers) SSOCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		frontend := h.cfg.Server.GetFrontendURL()
		fail := func(code, description string) {
			target := frontend + "/auth/callback?error=" + url.QueryEscape(code) +
				"&error_description=" + url.QueryEscape(description)
			c.Redirect(http.StatusFound, target)
		}

		if h.provider == nil {
			fail("sso_disabled", "Single sign-on is not configured.")
			return
		}
		if e := c.Query("error"); e != "" {
			fail(e, "The identity provider rejected the sign-in.")
			return
		}

		st, ok := h.takeState(c.Query("state"))
		if !ok {
			fail("invalid_state", "Your sign-in session expired. Please try again.")
			return
		}

		identity, err := h.provider.Exchange(c.Request.Context(), c.Query("code"), st.verifier, st.nonce)
		if err != nil {
			slog.Warn("SSO exchange failed", "error", err)
			fail("exchange_failed", "Sign-in could not be completed.")
			return
		}

		session, err := h.auth.LoginWithIdentity(c.Request.Context(), identity)
		if errors.Is(err, services.ErrNoProfile) {
			fail("no_profile", "Your account has not been invited to the portal.")
			return
		}
		if err != nil {
			slog.Error("SSO sign-in failed", "error", err)
			fail("login_failed", "Sign-in could not be completed.")
			return
		}

		csrfToken, err := h.csrf.Token(c.Request.Context(), session.ID)
		if err != nil {
			slog.Error("failed to issue CSRF token", "error", err)
			fail("login_failed", "Sign-in could not be completed.")
			return
		}

		fragment := url.Values{}
		fragment.Set("token", session.Token)
		fragment.Set("csrf_token", csrfToken)
		fragment.Set("expires_at", session.ExpiresAt.UTC().Format(time.RFC3339))
		c.Redirect(http.StatusFound, frontend+"/auth/callback#"+fragment.Encode())
	}
}

// LogoutHandler ends the caller's session and revokes its CSRF token.
// POST /api/v1/auth/logout
func (h *SessionHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := middleware.SessionFrom(c)
		if err := h.auth.Logout(c.Request.Context(), s); err != nil {
			respond.Error(c, err)
			return
		}
		if err := h.csrf.Revoke(c.Request.Context(), s.ID); err != nil {
			slog.Warn("failed to revoke CSRF token", "session_id", s.ID, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
	}
}

// MeHandler returns the caller's identity and effective role.
// GET /api/v1/auth/me
func (h *SessionHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, describeSession(middleware.SessionFrom(c)))
	}
}

// CSRFHandler returns the session's current CSRF token.
// GET /api/v1/auth/csrf
func (h *SessionHandlers) CSRFHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := middleware.SessionFrom(c)
		token, err := h.csrf.Token(c.Request.Context(), s.ID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.Header(middleware.CSRFHeader, token)
		c.JSON(http.StatusOK, gin.H{"csrf_token": token})
	}
}

// DashboardHandler describes the dashboard to render. Request managers may
// pass view_as to preview another role's dashboard; only the layout
// changes, data access still follows the real role.
// GET /api/v1/dashboard?view_as=<role>
func (h *SessionHandlers) DashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := middleware.SessionFrom(c)
		actual := s.EffectiveRole()
		display, applied := auth.ViewAs(actual, c.Query("view_as"))

		if applied {
			h.audit.Log(c.Request.Context(), audit.Event{
				Type:         audit.EventViewAs,
				ResourceType: "dashboard",
				ResourceID:   string(display),
				Details:      map[string]any{"actual_role": string(actual), "view_as": string(display)},
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"actual_role":     actual,
			"display_role":    display,
			"view_as_applied": applied,
			"dashboard":       auth.DashboardFor(display),
		})
	}
}
