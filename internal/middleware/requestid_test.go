package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/gin-gonic/gin"
)

func TestRequestIDMiddleware(t *testing.T) {
	var meta audit.ClientMeta
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) {
		meta = audit.ClientMetaFromContext(c.Request.Context())
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	t.Run("generates", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/x?a=1")
		id := w.Header().Get(RequestIDHeader)
		if len(id) != 36 {
			t.Errorf("generated id = %q, want a UUID", id)
		}
		if w.Body.String() != id || meta.RequestID != id {
			t.Errorf("context id = %q / %q, header = %q", w.Body.String(), meta.RequestID, id)
		}
		if meta.URL != "/x?a=1" {
			t.Errorf("meta URL = %q", meta.URL)
		}
		if meta.ClientTimestamp != nil {
			t.Error("client timestamp should be nil without the header")
		}
	})

	t.Run("propagates and records client metadata", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(RequestIDHeader, "upstream-id")
		req.Header.Set("User-Agent", "portal-ui/1.0")
		req.Header.Set(ClientTimestampHeader, "2026-03-01T10:00:00Z")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Header().Get(RequestIDHeader) != "upstream-id" {
			t.Errorf("header = %q", w.Header().Get(RequestIDHeader))
		}
		if meta.UserAgent != "portal-ui/1.0" {
			t.Errorf("user agent = %q", meta.UserAgent)
		}
		want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		if meta.ClientTimestamp == nil || !meta.ClientTimestamp.Equal(want) {
			t.Errorf("client timestamp = %v, want %v", meta.ClientTimestamp, want)
		}
	})

	t.Run("ignores malformed client timestamp", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(ClientTimestampHeader, "yesterday")
		r.ServeHTTP(httptest.NewRecorder(), req)
		if meta.ClientTimestamp != nil {
			t.Error("malformed timestamp should be dropped")
		}
	})
}
