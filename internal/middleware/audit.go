// audit.go provides Gin middleware that records authorization failures to the
// audit log. Successful actions are audited by the services that perform them.
package middleware

import (
	"net/http"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/gin-gonic/gin"
)

// ForbiddenAuditMiddleware logs a security_violation event for every request
// from an authenticated caller that ends in 403. Requests rejected before
// authentication carry no session and are not recorded.
func ForbiddenAuditMiddleware(auditLog *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() != http.StatusForbidden {
			return
		}
		session := SessionFrom(c)
		if session == nil {
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		auditLog.Log(c.Request.Context(), audit.Event{
			Type:         audit.EventSecurityViolation,
			UserID:       session.UserID,
			ResourceType: "http_request",
			ResourceID:   c.Request.Method + " " + path,
			Details: map[string]any{
				"role":   string(session.EffectiveRole()),
				"status": c.Writer.Status(),
			},
		})
	}
}
