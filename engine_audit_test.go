package goNoPassword

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func drainAudit(engine *Engine, sink *ChannelSink) []AuditEvent {
	engine.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestAuditLifecycleEvents(t *testing.T) {
	sink := NewChannelSink(64)
	mail := &recordingSink{name: "mail"}
	engine, _ := newTestEngine(t, func(b *Builder) {
		b.WithAuditSink(sink).WithSinks(mail)
	})

	ctx := WithRequestID(WithClientIP(context.Background(), "198.51.100.4"), "req-1")
	res, err := engine.RequestLoginCode(ctx, "alice", "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := engine.Redeem(ctx, res.Code.Code); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if _, err := engine.Redeem(ctx, res.Code.Code); !errors.Is(err, ErrCodeConsumed) {
		t.Fatalf("expected ErrCodeConsumed, got %v", err)
	}

	events := drainAudit(engine, sink)
	var types []string
	for _, ev := range events {
		types = append(types, ev.EventType)
		if ev.IP != "198.51.100.4" {
			t.Fatalf("%s: missing client IP", ev.EventType)
		}
		if ev.Metadata["request_id"] != "req-1" {
			t.Fatalf("%s: missing request id", ev.EventType)
		}
		if strings.Contains(fmt.Sprintf("%+v", ev), res.Code.Code) {
			t.Fatalf("%s: audit event leaks code value", ev.EventType)
		}
	}

	want := []string{
		auditEventCodeIssued,
		auditEventCodeDelivery,
		auditEventCodeRedeemed,
		auditEventCodeRejected,
	}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("got events %v want %v", types, want)
	}

	issued := events[0]
	if !issued.Success || issued.PrincipalID != alice.ID || issued.CodeID != res.Code.ID {
		t.Fatalf("unexpected issue event %+v", issued)
	}
	if issued.Metadata["attempts"] != "1" {
		t.Fatalf("expected attempts metadata, got %v", issued.Metadata)
	}
	if events[1].Metadata["sink"] != "mail" {
		t.Fatalf("delivery event must name the sink, got %v", events[1].Metadata)
	}
	rejected := events[3]
	if rejected.Success || rejected.Error != string(auditErrAlreadyConsumed) {
		t.Fatalf("unexpected rejection event %+v", rejected)
	}
}

func TestAuditRefusedIssue(t *testing.T) {
	sink := NewChannelSink(16)
	engine, _ := newTestEngine(t, func(b *Builder) { b.WithAuditSink(sink) })

	if _, err := engine.RequestLoginCode(context.Background(), "bob", ""); !errors.Is(err, ErrInactivePrincipal) {
		t.Fatalf("expected ErrInactivePrincipal, got %v", err)
	}
	if _, err := engine.RequestLoginCode(context.Background(), "nobody", ""); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}

	events := drainAudit(engine, sink)
	if len(events) != 2 {
		t.Fatalf("expected two events, got %+v", events)
	}
	if events[0].EventType != auditEventCodeIssueRefused || events[0].Error != string(auditErrPrincipalInactive) {
		t.Fatalf("unexpected event %+v", events[0])
	}
	if events[1].Error != string(auditErrPrincipalNotFound) || events[1].PrincipalID != "" {
		t.Fatalf("unexpected event %+v", events[1])
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	if engine.audit != nil {
		t.Fatal("dispatcher must not run without an audit sink")
	}
	if engine.AuditDropped() != 0 {
		t.Fatal("expected zero drops")
	}
}

func TestAuditErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{err: nil, want: ""},
		{err: ErrCodeNotFound, want: auditErrNotFound},
		{err: ErrCodeExpired, want: auditErrExpired},
		{err: ErrCodeConsumed, want: auditErrAlreadyConsumed},
		{err: ErrInactivePrincipal, want: auditErrPrincipalInactive},
		{err: ErrCodeOwnerInactive, want: auditErrPrincipalInactive},
		{err: ErrPrincipalNotFound, want: auditErrPrincipalNotFound},
		{err: ErrGenerationExhausted, want: auditErrGenerationExhausted},
		{err: fmt.Errorf("%w: mail: boom", ErrDeliveryFailed), want: auditErrDeliveryFailed},
		{err: ErrRateLimited, want: auditErrRateLimited},
		{err: fmt.Errorf("%w: find: %w", ErrStoreUnavailable, context.Canceled), want: auditErrCanceled},
		{err: fmt.Errorf("%w: find: dial tcp", ErrStoreUnavailable), want: auditErrUnavailable},
		{err: errors.New("other"), want: auditErrInternal},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("%v: got %q want %q", tc.err, got, tc.want)
		}
	}
}
