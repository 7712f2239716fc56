package middleware

import (
	"net/http"
	"testing"

	"github.com/diligence-portal/portal/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/api/requests/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	matched := telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/requests/:id", "200")
	unmatched := telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "<no-route>", "404")
	beforeMatched := testutil.ToFloat64(matched)
	beforeUnmatched := testutil.ToFloat64(unmatched)

	serve(r, http.MethodGet, "/api/requests/abc")
	serve(r, http.MethodGet, "/api/requests/def")
	serve(r, http.MethodGet, "/nowhere")

	if got := testutil.ToFloat64(matched) - beforeMatched; got != 2 {
		t.Errorf("matched route delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(unmatched) - beforeUnmatched; got != 1 {
		t.Errorf("unmatched delta = %v, want 1", got)
	}
}
