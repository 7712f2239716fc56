package middleware

import (
	"time"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the canonical HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID string is stored so
	// that handlers and other middleware can retrieve it without reading the response header.
	RequestIDKey = "request_id"

	// ClientTimestampHeader optionally carries the client's clock at the time the
	// request was made, in RFC 3339 form. It is recorded on audit events.
	ClientTimestampHeader = "X-Client-Timestamp"
)

// RequestIDMiddleware returns a Gin handler that ensures every request carries a unique
// identifier propagated as an X-Request-ID HTTP header.
//
// An inbound X-Request-ID is reused unchanged; otherwise a new UUID v4 is generated.
// The identifier is stored in gin.Context under RequestIDKey and echoed back in the
// response header.
//
// The request context also receives the audit.ClientMeta (user agent, URL, request ID and
// client timestamp) that every audit event logged during the request is stamped with.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		meta := audit.ClientMeta{
			UserAgent: c.Request.UserAgent(),
			URL:       c.Request.URL.RequestURI(),
			RequestID: id,
		}
		if raw := c.GetHeader(ClientTimestampHeader); raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				meta.ClientTimestamp = &ts
			}
		}
		c.Request = c.Request.WithContext(audit.WithClientMeta(c.Request.Context(), meta))

		c.Next()
	}
}
