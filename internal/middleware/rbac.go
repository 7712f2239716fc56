// rbac.go provides route guards that check the session's effective role.
// They must run after AuthMiddleware.
package middleware

import (
	"net/http"

	"github.com/diligence-portal/portal/internal/auth"
	"github.com/gin-gonic/gin"
)

// RequireCapability rejects callers whose effective role lacks capability.
// A missing session is treated as unauthenticated.
func RequireCapability(capability auth.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := SessionFrom(c)
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if !session.Can(capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "Insufficient permissions",
				"required": string(capability),
			})
			return
		}
		c.Next()
	}
}

// RequireDealAccess rejects callers that may not read the deal named by the
// route parameter param.
func RequireDealAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := SessionFrom(c)
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if !session.CanAccessDeal(c.Param(param)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access to this deal is not permitted"})
			return
		}
		c.Next()
	}
}
