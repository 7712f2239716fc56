package middleware

import (
	"log/slog"
	"net/http"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/validation"
	"github.com/gin-gonic/gin"
)

// CSRFHeader carries the session's CSRF token on state-changing requests.
const CSRFHeader = "X-CSRF-Token"

// CSRFMiddleware requires a valid CSRF token on POST, PUT, PATCH and DELETE.
// Tokens are bound to the session ID, so it must run after AuthMiddleware.
// Rejections are audited as csrf_rejected.
func CSRFMiddleware(store validation.CSRFStore, auditLog *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		session := SessionFrom(c)
		if session == nil || session.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		token := c.GetHeader(CSRFHeader)
		ok := false
		if token != "" {
			var err error
			ok, err = store.Validate(c.Request.Context(), session.ID, token)
			if err != nil {
				slog.Error("csrf store unavailable", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "CSRF validation unavailable"})
				return
			}
		}

		if !ok {
			reason := "invalid"
			if token == "" {
				reason = "missing"
			}
			auditLog.Log(c.Request.Context(), audit.Event{
				Type:         audit.EventCSRFRejected,
				ResourceType: "http_request",
				ResourceID:   c.Request.Method + " " + c.FullPath(),
				Details:      map[string]any{"reason": reason},
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or missing CSRF token"})
			return
		}

		c.Next()
	}
}
