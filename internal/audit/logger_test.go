package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/telemetry"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*models.AuditEvent
	err    error
}

func (s *recordingSink) Record(_ context.Context, ev *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) recorded() []*models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditEvent(nil), s.events...)
}

type recordingShipper struct {
	recordingSink
}

func (s *recordingShipper) Ship(ctx context.Context, ev *models.AuditEvent) error {
	return s.Record(ctx, ev)
}

func (s *recordingShipper) Close() error { return nil }

// newSyncLogger returns a logger that delivers on the calling goroutine.
func newSyncLogger(sink Sink, shipper Shipper) *Logger {
	l := NewLogger(sink, shipper, time.Second)
	l.dispatch = func(_ string, _ time.Duration, fn func(ctx context.Context)) {
		fn(context.Background())
	}
	return l
}

func TestLogRecordsEvent(t *testing.T) {
	sink := &recordingSink{}
	shipper := &recordingShipper{}
	l := newSyncLogger(sink, shipper)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithClientMeta(context.Background(), ClientMeta{
		UserAgent:       "curl/8",
		URL:             "/api/v1/documents/d1",
		RequestID:       "req-1",
		ClientTimestamp: &ts,
	})
	l.Log(ctx, Event{
		Type:         EventFileDelete,
		UserID:       "u1",
		ResourceType: "document",
		ResourceID:   "d1",
		Details:      map[string]any{"filename": "a.pdf"},
	})

	events := sink.recorded()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.ID == "" || len(ev.ID) != 26 {
		t.Errorf("ID = %q, want a ULID", ev.ID)
	}
	if ev.EventType != "file_delete" || *ev.UserID != "u1" {
		t.Errorf("event = %+v", ev)
	}
	if *ev.ResourceType != "document" || *ev.ResourceID != "d1" {
		t.Errorf("resource = %v/%v", *ev.ResourceType, *ev.ResourceID)
	}
	if *ev.UserAgent != "curl/8" || *ev.URL != "/api/v1/documents/d1" || *ev.RequestID != "req-1" {
		t.Errorf("client meta not attached: %+v", ev)
	}
	if !ev.ClientTimestamp.Equal(ts) {
		t.Errorf("ClientTimestamp = %v", ev.ClientTimestamp)
	}
	if len(shipper.recorded()) != 1 {
		t.Error("event was not shipped")
	}
}

func TestLogUsesSessionIdentity(t *testing.T) {
	sink := &recordingSink{}
	l := newSyncLogger(sink, nil)

	ctx := auth.WithSession(context.Background(), &auth.Session{UserID: "from-session"})
	l.Log(ctx, Event{Type: EventViewAs})

	events := sink.recorded()
	if len(events) != 1 || *events[0].UserID != "from-session" {
		t.Fatalf("events = %+v", events)
	}
	if events[0].ResourceType != nil || events[0].UserAgent != nil {
		t.Error("empty optional fields should be nil")
	}
}

func TestLogDropsEventWithoutIdentity(t *testing.T) {
	sink := &recordingSink{}
	l := newSyncLogger(sink, nil)

	before := testutil.ToFloat64(telemetry.AuditEventsTotal.WithLabelValues("dropped_no_identity"))
	l.Log(context.Background(), Event{Type: EventLoginFailed})

	if n := len(sink.recorded()); n != 0 {
		t.Errorf("recorded %d events, want 0", n)
	}
	after := testutil.ToFloat64(telemetry.AuditEventsTotal.WithLabelValues("dropped_no_identity"))
	if after-before != 1 {
		t.Errorf("dropped counter delta = %v, want 1", after-before)
	}
}

func TestLogDropsUnknownType(t *testing.T) {
	sink := &recordingSink{}
	l := newSyncLogger(sink, nil)
	l.Log(context.Background(), Event{Type: "made_up", UserID: "u"})
	if n := len(sink.recorded()); n != 0 {
		t.Errorf("recorded %d events, want 0", n)
	}
}

func TestLogSwallowsSinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("insert failed")}
	shipper := &recordingShipper{}
	l := newSyncLogger(sink, shipper)

	before := testutil.ToFloat64(telemetry.AuditEventsTotal.WithLabelValues("failed"))
	l.Log(context.Background(), Event{Type: EventDealCreated, UserID: "u"})
	after := testutil.ToFloat64(telemetry.AuditEventsTotal.WithLabelValues("failed"))

	if after-before != 1 {
		t.Errorf("failed counter delta = %v, want 1", after-before)
	}
	if len(shipper.recorded()) != 1 {
		t.Error("shipper should still receive the event")
	}
}

func TestLogDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	sink := blockingSink{release: release, done: done}

	l := NewLogger(sink, nil, time.Second)
	start := time.Now()
	l.Log(context.Background(), Event{Type: EventFileUpload, UserID: "u"})
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Log blocked on the sink")
	}
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("background delivery never ran")
	}
}

type blockingSink struct {
	release <-chan struct{}
	done    chan<- struct{}
}

func (s blockingSink) Record(_ context.Context, _ *models.AuditEvent) error {
	<-s.release
	close(s.done)
	return nil
}

func TestDisabledLogger(t *testing.T) {
	var nilLogger *Logger
	nilLogger.Log(context.Background(), Event{Type: EventLogin, UserID: "u"})
	Disabled().Log(context.Background(), Event{Type: EventLogin, UserID: "u"})
}

func TestSessionSubscriber(t *testing.T) {
	sink := &recordingSink{}
	l := newSyncLogger(sink, nil)
	sub := l.SessionSubscriber()

	s := &auth.Session{ID: "sess-1", UserID: "u1", Method: "oidc"}
	sub(context.Background(), auth.SessionEvent{Kind: auth.EventSignedIn, Session: s})
	sub(context.Background(), auth.SessionEvent{Kind: auth.EventSignedOut, Session: s})
	sub(context.Background(), auth.SessionEvent{Kind: auth.EventSignedOut})

	events := sink.recorded()
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(events))
	}
	if events[0].EventType != "login" || events[1].EventType != "logout" {
		t.Errorf("types = %s, %s", events[0].EventType, events[1].EventType)
	}
	if *events[0].ResourceID != "sess-1" || events[0].Details["method"] != "oidc" {
		t.Errorf("login event = %+v", events[0])
	}
}

func TestEventTypesAreValid(t *testing.T) {
	if len(EventTypes()) != 20 {
		t.Errorf("EventTypes() has %d entries, want 20", len(EventTypes()))
	}
	for _, et := range EventTypes() {
		if !et.Valid() {
			t.Errorf("%s not valid", et)
		}
	}
}
