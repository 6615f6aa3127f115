// Package audit records privileged mutations. Recording is best-effort: a
// failed append is logged and counted but never surfaces to the caller.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"estatehub.org/internal/community"
	"estatehub.org/internal/ids"
	"estatehub.org/internal/obs"
	"estatehub.org/internal/store"
)

type Recorder struct {
	store store.AuditStore
	now   func() time.Time
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder returns a recorder appending to s. A nil store only emits log lines.
func NewRecorder(s store.AuditStore, opts ...Option) *Recorder {
	r := &Recorder{store: s, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends entry. Missing id, timestamp and request id are filled in.
// The append ignores cancellation of ctx: the mutation it describes has
// already committed by the time Record runs.
func (r *Recorder) Record(ctx context.Context, entry community.AuditEntry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = RequestIDFromContext(ctx)
	}

	if r.store != nil {
		if err := r.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
			obs.AuditFailures.Inc()
			obs.Logger().Warn("audit append failed",
				zap.String("action", entry.Action),
				zap.String("resource_type", entry.ResourceType),
				zap.String("resource_id", entry.ResourceID),
				zap.String("request_id", entry.RequestID),
				zap.Error(err),
			)
		}
	}

	_ = LogEvent(ctx, entry.Action, map[string]any{
		"audit_id":      entry.ID,
		"tenant_id":     entry.TenantID,
		"actor_id":      entry.ActorID,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"before":        entry.Before,
		"after":         entry.After,
	})
}
