package verify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func buildAuditTestEngine(t *testing.T, sink AuditSink, mailer Mailer) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithRedis(rdb).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

func waitForEvent(t *testing.T, events <-chan AuditEvent, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", eventType)
		}
	}
}

func TestAuditIssueDeliveredEvent(t *testing.T) {
	sink := NewChannelSink(16)
	mailer := newMockMailer()
	engine, done := buildAuditTestEngine(t, sink, mailer)
	defer done()

	if _, err := engine.Issue(context.Background(), "alice@example.com", PurposeRegistration); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	event := waitForEvent(t, sink.Events(), auditEventIssueDelivered)
	if !event.Success {
		t.Fatal("expected success event")
	}
	if event.IdentityKey != "alice@example.com" {
		t.Fatalf("unexpected identity key %q", event.IdentityKey)
	}
	if event.Purpose != "registration" {
		t.Fatalf("unexpected purpose %q", event.Purpose)
	}
	if event.EventID == "" {
		t.Fatal("expected non-empty event ID")
	}
	if event.Metadata["challenge_id"] == "" {
		t.Fatal("expected challenge_id metadata")
	}
}

func TestAuditConfirmFailureCarriesErrorCode(t *testing.T) {
	sink := NewChannelSink(16)
	mailer := newMockMailer()
	engine, done := buildAuditTestEngine(t, sink, mailer)
	defer done()

	if err := engine.Confirm(context.Background(), "alice@example.com", PurposeRegistration, "123456"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	event := waitForEvent(t, sink.Events(), auditEventConfirmFailure)
	if event.Success {
		t.Fatal("expected failure event")
	}
	if event.Error == "" {
		t.Fatal("expected error code on failure event")
	}
}

func TestAuditEventCarriesClientIP(t *testing.T) {
	sink := NewChannelSink(16)
	mailer := newMockMailer()
	engine, done := buildAuditTestEngine(t, sink, mailer)
	defer done()

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.Issue(ctx, "alice@example.com", PurposeRegistration); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	event := waitForEvent(t, sink.Events(), auditEventIssueDelivered)
	if event.IP != "203.0.113.9" {
		t.Fatalf("expected client IP on event, got %q", event.IP)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mailer := newMockMailer()
	engine := newTestEngine(t, rdb, mailer, nil, testConfig())

	if _, err := engine.Issue(context.Background(), "alice@example.com", PurposeRegistration); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if engine.AuditDropped() != 0 {
		t.Fatal("expected no drop counting without a dispatcher")
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventID: "e1", EventType: "issue_delivered", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventID: "e2", EventType: "confirm_failure"})

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		lines++
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, AuditEvent) {
		<-block
	})

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventID: "e"})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}

	close(block)
	d.Close()
}

func TestDispatcherCloseDrainsBuffered(t *testing.T) {
	received := make(chan AuditEvent, 16)
	sink := sinkFunc(func(_ context.Context, event AuditEvent) {
		received <- event
	})

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventID: "e"})
	}
	d.Close()

	if got := len(received); got != 5 {
		t.Fatalf("expected 5 delivered events after Close, got %d", got)
	}
}

type sinkFunc func(context.Context, AuditEvent)

func (f sinkFunc) Emit(ctx context.Context, event AuditEvent) {
	f(ctx, event)
}
