// Package decision runs admin decisions on stickers and permits: resolve the
// caller, load the record inside the caller's tenant, validate the transition,
// write it conditionally, then audit and announce the result.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"estatehub.org/internal/audit"
	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
	"estatehub.org/internal/events"
	"estatehub.org/internal/obs"
	"estatehub.org/internal/stickercode"
	"estatehub.org/internal/store"
	"estatehub.org/internal/workflow"
)

var deciders = []community.Role{community.RoleSuperadmin, community.RoleAdminHead, community.RoleAdminOfficer}

// Store is the part of the gateway decisions read from and write to.
type Store interface {
	store.StickerStore
	store.PermitStore
	store.AuditStore
}

// Codes issues and verifies sticker codes.
type Codes interface {
	workflow.CodeIssuer
	Verify(code string) (stickercode.Payload, error)
}

type Service struct {
	guard    *auth.Guard
	store    Store
	codes    Codes
	recorder *audit.Recorder
	broker   *events.Broker
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBroker publishes committed decisions on b.
func WithBroker(b *events.Broker) Option {
	return func(s *Service) { s.broker = b }
}

func NewService(guard *auth.Guard, st Store, codes Codes, recorder *audit.Recorder, opts ...Option) *Service {
	if recorder == nil {
		recorder = audit.NewRecorder(st)
	}
	s := &Service{guard: guard, store: st, codes: codes, recorder: recorder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StickerRequest is a sticker decision as submitted by an admin.
type StickerRequest struct {
	StickerID       string
	Action          string
	ExpiryDate      string
	RejectionReason string
}

// PermitRequest is a permit decision as submitted by an admin.
type PermitRequest struct {
	PermitID         string
	Action           string
	RoadFeeAmount    *decimal.Decimal
	RejectionReason  string
	PaymentReference string
	PaymentMethod    string
	StartDate        string
	EndDate          string
}

// DecideSticker applies an approve or reject decision and returns the stored sticker.
func (s *Service) DecideSticker(ctx context.Context, caller auth.Principal, req StickerRequest) (community.Sticker, error) {
	if err := s.guard.Authorize(caller, deciders...); err != nil {
		return community.Sticker{}, err
	}
	id := strings.TrimSpace(req.StickerID)
	if id == "" {
		return community.Sticker{}, fmt.Errorf("%w: sticker_id is required", workflow.ErrValidation)
	}
	action, err := workflow.ParseStickerAction(req.Action)
	if err != nil {
		return community.Sticker{}, err
	}

	updated, err := s.decideSticker(ctx, caller, id, workflow.StickerInput{
		Action:          action,
		ExpiryDate:      req.ExpiryDate,
		RejectionReason: req.RejectionReason,
	})
	obs.Transitions.WithLabelValues("sticker", string(action), resultLabel(err)).Inc()
	return updated, err
}

func (s *Service) decideSticker(ctx context.Context, caller auth.Principal, id string, in workflow.StickerInput) (community.Sticker, error) {
	scope := caller.Scope()
	current, err := s.store.GetSticker(ctx, scope, id)
	if err != nil {
		return community.Sticker{}, notFound(err, "sticker", id)
	}
	change, err := workflow.DecideSticker(current, in, caller.UserID, s.now(), s.codes)
	if err != nil {
		return community.Sticker{}, err
	}
	updated, err := s.store.ApplyStickerChange(ctx, scope, id, change)
	if err != nil {
		return community.Sticker{}, notFound(err, "sticker", id)
	}

	s.recorder.Record(ctx, community.AuditEntry{
		TenantID:     updated.TenantID,
		ActorID:      caller.UserID,
		ActorRole:    caller.Role,
		Action:       "sticker." + string(in.Action),
		ResourceType: "sticker",
		ResourceID:   updated.ID,
		Before:       workflow.StickerSnapshot(current),
		After:        workflow.StickerSnapshot(updated),
	})
	s.broker.Publish(events.Event{
		Type:         "sticker.decided",
		TenantID:     updated.TenantID,
		ResourceType: "sticker",
		ResourceID:   updated.ID,
		Action:       string(in.Action),
		Status:       string(updated.Status),
		ActorID:      caller.UserID,
		At:           updated.UpdatedAt,
	})
	return updated, nil
}

// DecidePermit applies a permit action and returns the stored permit.
func (s *Service) DecidePermit(ctx context.Context, caller auth.Principal, req PermitRequest) (community.Permit, error) {
	if err := s.guard.Authorize(caller, deciders...); err != nil {
		return community.Permit{}, err
	}
	id := strings.TrimSpace(req.PermitID)
	if id == "" {
		return community.Permit{}, fmt.Errorf("%w: permit_id is required", workflow.ErrValidation)
	}
	action, err := workflow.ParsePermitAction(req.Action)
	if err != nil {
		return community.Permit{}, err
	}

	updated, err := s.decidePermit(ctx, caller, id, workflow.PermitInput{
		Action:           action,
		RoadFeeAmount:    req.RoadFeeAmount,
		RejectionReason:  req.RejectionReason,
		PaymentReference: req.PaymentReference,
		PaymentMethod:    req.PaymentMethod,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
	})
	obs.Transitions.WithLabelValues("permit", string(action), resultLabel(err)).Inc()
	return updated, err
}

func (s *Service) decidePermit(ctx context.Context, caller auth.Principal, id string, in workflow.PermitInput) (community.Permit, error) {
	scope := caller.Scope()
	current, err := s.store.GetPermit(ctx, scope, id)
	if err != nil {
		return community.Permit{}, notFound(err, "permit", id)
	}
	change, err := workflow.DecidePermit(current, in, caller.UserID, s.now())
	if err != nil {
		return community.Permit{}, err
	}
	updated, err := s.store.ApplyPermitChange(ctx, scope, id, change)
	if err != nil {
		return community.Permit{}, notFound(err, "permit", id)
	}

	s.recorder.Record(ctx, community.AuditEntry{
		TenantID:     updated.TenantID,
		ActorID:      caller.UserID,
		ActorRole:    caller.Role,
		Action:       "permit." + string(in.Action),
		ResourceType: "permit",
		ResourceID:   updated.ID,
		Before:       workflow.PermitSnapshot(current),
		After:        workflow.PermitSnapshot(updated),
	})
	s.broker.Publish(events.Event{
		Type:         "permit.decided",
		TenantID:     updated.TenantID,
		ResourceType: "permit",
		ResourceID:   updated.ID,
		Action:       string(in.Action),
		Status:       string(updated.Status),
		ActorID:      caller.UserID,
		At:           updated.UpdatedAt,
	})
	return updated, nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, entity, id)
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, workflow.ErrStaleState):
		return "stale"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, workflow.ErrValidation):
		return "validation"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
