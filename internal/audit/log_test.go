package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
	"estatehub.org/internal/obs"
	"estatehub.org/internal/store"
	"estatehub.org/internal/store/memory"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	t.Cleanup(obs.SetLogger(zap.New(core)))
	return logs
}

func TestLogEvent(t *testing.T) {
	logs := observe(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{UserID: "user-42", Role: community.RoleAdminHead, TenantID: "tenant-a"})

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	entries := logs.FilterField(zap.String("type", "audit")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one audit line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event"] != "audit.test" {
		t.Fatalf("unexpected event: %v", fields["event"])
	}
	if fields["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", fields["request_id"])
	}
	if fields["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", fields["user_id"])
	}
	payload, ok := fields["fields"].(map[string]any)
	if !ok || payload["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", fields["fields"])
	}

	if err := LogEvent(ctx, "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestRecorderPersistsEntry(t *testing.T) {
	observe(t)
	mem := memory.New()
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rec := NewRecorder(mem, WithClock(func() time.Time { return at }))

	ctx := WithRequestID(context.Background(), "req-9")
	rec.Record(ctx, community.AuditEntry{
		TenantID:     "tenant-a",
		ActorID:      "admin-1",
		Action:       "sticker.approve",
		ResourceType: "sticker",
		ResourceID:   "stk-1",
		After:        map[string]any{"status": "active"},
	})

	got, err := mem.ListAudit(context.Background(), community.TenantScope("tenant-a"), store.AuditFilter{})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ID == "" || got[0].RequestID != "req-9" || !got[0].OccurredAt.Equal(at) {
		t.Fatalf("entry not enriched: %+v", got[0])
	}
}

type ctxAuditStore struct {
	entries []community.AuditEntry
}

func (s *ctxAuditStore) AppendAudit(ctx context.Context, e community.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *ctxAuditStore) ListAudit(context.Context, community.Scope, store.AuditFilter) ([]community.AuditEntry, error) {
	return s.entries, nil
}

func TestRecorderOutlivesCancelledRequest(t *testing.T) {
	observe(t)
	before := testutil.ToFloat64(obs.AuditFailures)
	st := &ctxAuditStore{}

	ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "req-gone"))
	cancel()
	NewRecorder(st).Record(ctx, community.AuditEntry{
		TenantID: "tenant-a", ActorID: "admin-1", Action: "sticker.approve", ResourceType: "sticker", ResourceID: "stk-1",
	})

	if len(st.entries) != 1 || st.entries[0].RequestID != "req-gone" {
		t.Fatalf("expected entry despite cancelled request, got %+v", st.entries)
	}
	if got := testutil.ToFloat64(obs.AuditFailures) - before; got != 0 {
		t.Fatalf("unexpected audit failures: %v", got)
	}
}

type failingAuditStore struct{}

func (failingAuditStore) AppendAudit(context.Context, community.AuditEntry) error {
	return errors.New("audit table locked")
}

func (failingAuditStore) ListAudit(context.Context, community.Scope, store.AuditFilter) ([]community.AuditEntry, error) {
	return nil, nil
}

func TestRecorderSwallowsStoreFailure(t *testing.T) {
	logs := observe(t)
	before := testutil.ToFloat64(obs.AuditFailures)

	NewRecorder(failingAuditStore{}).Record(context.Background(), community.AuditEntry{
		ActorID: "admin-1", Action: "permit.approve", ResourceType: "permit", ResourceID: "pmt-1",
	})

	if got := testutil.ToFloat64(obs.AuditFailures) - before; got != 1 {
		t.Fatalf("expected failure counter to increase by 1, got %v", got)
	}
	if logs.FilterMessage("audit append failed").Len() != 1 {
		t.Fatal("expected a warning for the failed append")
	}
	if logs.FilterField(zap.String("type", "audit")).Len() != 1 {
		t.Fatal("audit line should still be emitted")
	}
}
