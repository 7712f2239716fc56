// Package telemetry provides logging setup and Prometheus metrics for the portal.
//
// All metrics are registered against the default registry and exposed by the
// side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<DDP_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics are labelled with the gin route template (c.FullPath()) rather
// than the raw URL so deal and request identifiers never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Document metrics. DocumentBytesUploaded is useful for storage capacity
// planning per backend.
var (
	DocumentsUploadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_documents_uploaded_total",
			Help: "Total number of request documents stored.",
		},
	)

	DocumentBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_document_bytes_uploaded_total",
			Help: "Total bytes of request documents stored.",
		},
	)

	DocumentsDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_documents_deleted_total",
			Help: "Document delete attempts, by outcome (ok, storage_failed, row_failed).",
		},
		[]string{"outcome"},
	)
)

// Request lifecycle metrics
var (
	// BulkMutationsTotal counts individual row outcomes of bulk assign and
	// bulk status operations.
	BulkMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_bulk_mutation_rows_total",
			Help: "Rows touched by bulk request mutations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	TemplateRequestsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_template_requests_created_total",
			Help: "Requests created by template seeding.",
		},
	)

	TemplateApplicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_template_applications_total",
			Help: "Template seeding invocations, by result (seeded, noop, marker_failed).",
		},
		[]string{"result"},
	)
)

// Audit and reconciliation metrics
var (
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_audit_events_total",
			Help: "Audit events by delivery outcome (recorded, dropped_no_identity, failed).",
		},
		[]string{"outcome"},
	)

	CleanupQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_document_cleanup_queue_depth",
			Help: "Entries waiting in the document cleanup queue at the last reconciler run.",
		},
	)
)

// DBOpenConnections is sampled by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every 30 seconds until ctx is
// cancelled or the database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
