// Package middleware provides Gin HTTP middleware for authentication, authorization,
// CSRF protection, rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Metrics → Security → CORS → RateLimit → Auth → CSRF → RBAC → Handler
//
// Security headers run first so they appear on all responses including errors.
// Auth resolves the caller's session; CSRF and RBAC read it from the context.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/diligence-portal/portal/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	// SessionKey is the gin.Context key holding the caller's *auth.Session.
	SessionKey = "session"
	// UserIDKey is the gin.Context key holding the caller's user ID.
	UserIDKey = "user_id"
)

// AuthMiddleware validates the bearer session token and resumes the session
// through the provider, which resolves the caller's role for this request.
// Tokens of signed-out sessions get 401.
// The session is stored in gin.Context and in the request context.
func AuthMiddleware(sessions *auth.SessionProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		change := auth.Change{
			Kind:      auth.ChangeResume,
			UserID:    claims.UserID,
			Email:     claims.Email,
			SessionID: claims.SessionID(),
		}
		if claims.ExpiresAt != nil {
			change.ExpiresAt = claims.ExpiresAt.Time
		}
		session, err := sessions.Apply(c.Request.Context(), change)
		switch {
		case errors.Is(err, auth.ErrSessionRevoked), errors.Is(err, auth.ErrNoIdentity):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session has ended"})
			return
		case err != nil:
			slog.Error("failed to resume session", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Session check unavailable"})
			return
		}

		c.Set(SessionKey, session)
		c.Set(UserIDKey, session.UserID)
		c.Request = c.Request.WithContext(auth.WithSession(c.Request.Context(), session))

		c.Next()
	}
}

func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "Missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "Authorization header must start with 'Bearer '"
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "Authorization token is empty"
	}
	return token, ""
}

// SessionFrom returns the session set by AuthMiddleware, or nil.
func SessionFrom(c *gin.Context) *auth.Session {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*auth.Session)
	return s
}
