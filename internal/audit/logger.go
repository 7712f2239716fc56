package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/safego"
	"github.com/diligence-portal/portal/internal/telemetry"
)

// EventType is the closed set of audited actions.
type EventType string

const (
	EventLogin               EventType = "login"
	EventLogout              EventType = "logout"
	EventLoginFailed         EventType = "login_failed"
	EventFileUpload          EventType = "file_upload"
	EventFileDownload        EventType = "file_download"
	EventFileDelete          EventType = "file_delete"
	EventRequestCreated      EventType = "request_created"
	EventRequestUpdated      EventType = "request_updated"
	EventRequestDeleted      EventType = "request_deleted"
	EventRequestStatusChange EventType = "request_status_change"
	EventRequestAssignment   EventType = "request_assignment"
	EventResponseSubmitted   EventType = "response_submitted"
	EventTemplateApplied     EventType = "template_applied"
	EventDealCreated         EventType = "deal_created"
	EventDealUpdated         EventType = "deal_updated"
	EventProfileCreated      EventType = "profile_created"
	EventProfileUpdated      EventType = "profile_updated"
	EventViewAs              EventType = "view_as"
	EventCSRFRejected        EventType = "csrf_rejected"
	EventSecurityViolation   EventType = "security_violation"
)

// EventTypes returns every event type.
func EventTypes() []EventType {
	return []EventType{
		EventLogin, EventLogout, EventLoginFailed,
		EventFileUpload, EventFileDownload, EventFileDelete,
		EventRequestCreated, EventRequestUpdated, EventRequestDeleted,
		EventRequestStatusChange, EventRequestAssignment, EventResponseSubmitted,
		EventTemplateApplied, EventDealCreated, EventDealUpdated,
		EventProfileCreated, EventProfileUpdated,
		EventViewAs, EventCSRFRejected, EventSecurityViolation,
	}
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, et := range EventTypes() {
		if et == t {
			return true
		}
	}
	return false
}

// Event is what callers hand to Logger.Log. UserID may be left empty when
// the context carries a session.
type Event struct {
	Type         EventType
	UserID       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

// ClientMeta is request metadata attached to every event logged during that
// request. Client IP is not recorded.
type ClientMeta struct {
	UserAgent       string
	URL             string
	RequestID       string
	ClientTimestamp *time.Time
}

type clientMetaKey struct{}

// WithClientMeta attaches m to ctx.
func WithClientMeta(ctx context.Context, m ClientMeta) context.Context {
	return context.WithValue(ctx, clientMetaKey{}, m)
}

// ClientMetaFromContext returns the metadata attached by WithClientMeta.
func ClientMetaFromContext(ctx context.Context) ClientMeta {
	m, _ := ctx.Value(clientMetaKey{}).(ClientMeta)
	return m
}

// Sink persists a single audit event.
type Sink interface {
	Record(ctx context.Context, ev *models.AuditEvent) error
}

// Logger records audit events without ever blocking or failing the caller.
// Delivery is best effort: no retry and no buffering.
type Logger struct {
	sink    Sink
	shipper Shipper
	timeout time.Duration
	enabled bool

	dispatch func(task string, timeout time.Duration, fn func(ctx context.Context))
	now      func() time.Time
}

// NewLogger creates a logger writing to sink and, when non-nil, shipper.
func NewLogger(sink Sink, shipper Shipper, timeout time.Duration) *Logger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Logger{
		sink:     sink,
		shipper:  shipper,
		timeout:  timeout,
		enabled:  true,
		dispatch: safego.GoWithTimeout,
		now:      time.Now,
	}
}

// Disabled returns a logger that discards everything.
func Disabled() *Logger {
	return &Logger{}
}

// Log builds the stored event and dispatches it in the background.
func (l *Logger) Log(ctx context.Context, ev Event) {
	if l == nil || !l.enabled {
		return
	}

	userID := ev.UserID
	if userID == "" {
		if s, ok := auth.SessionFromContext(ctx); ok {
			userID = s.UserID
		}
	}
	if userID == "" {
		telemetry.AuditEventsTotal.WithLabelValues("dropped_no_identity").Inc()
		slog.Warn("audit event dropped: no identity", "event_type", ev.Type)
		return
	}
	if !ev.Type.Valid() {
		telemetry.AuditEventsTotal.WithLabelValues("failed").Inc()
		slog.Warn("audit event dropped: unknown event type", "event_type", ev.Type)
		return
	}

	record := l.build(ctx, userID, ev)
	l.dispatch("audit-"+string(ev.Type), l.timeout, func(ctx context.Context) {
		l.deliver(ctx, record)
	})
}

func (l *Logger) build(ctx context.Context, userID string, ev Event) *models.AuditEvent {
	meta := ClientMetaFromContext(ctx)
	record := &models.AuditEvent{
		ID:              ulid.Make().String(),
		EventType:       string(ev.Type),
		UserID:          &userID,
		Details:         ev.Details,
		UserAgent:       optional(meta.UserAgent),
		URL:             optional(meta.URL),
		RequestID:       optional(meta.RequestID),
		ClientTimestamp: meta.ClientTimestamp,
		CreatedAt:       l.now(),
	}
	record.ResourceType = optional(ev.ResourceType)
	record.ResourceID = optional(ev.ResourceID)
	return record
}

func (l *Logger) deliver(ctx context.Context, record *models.AuditEvent) {
	if err := l.sink.Record(ctx, record); err != nil {
		telemetry.AuditEventsTotal.WithLabelValues("failed").Inc()
		slog.Warn("failed to record audit event",
			"event_type", record.EventType, "audit_id", record.ID, "error", err)
	} else {
		telemetry.AuditEventsTotal.WithLabelValues("recorded").Inc()
	}

	if l.shipper != nil {
		if err := l.shipper.Ship(ctx, record); err != nil {
			slog.Warn("failed to ship audit event",
				"event_type", record.EventType, "audit_id", record.ID, "error", err)
		}
	}
}

// SessionSubscriber turns sign-in and sign-out notifications into login and
// logout events. Register it with auth.SessionProvider.Subscribe.
func (l *Logger) SessionSubscriber() auth.Subscriber {
	return func(ctx context.Context, ev auth.SessionEvent) {
		if ev.Session == nil {
			return
		}
		t := EventLogin
		if ev.Kind == auth.EventSignedOut {
			t = EventLogout
		}
		l.Log(ctx, Event{
			Type:         t,
			UserID:       ev.Session.UserID,
			ResourceType: "session",
			ResourceID:   ev.Session.ID,
			Details:      map[string]any{"method": ev.Session.Method},
		})
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
