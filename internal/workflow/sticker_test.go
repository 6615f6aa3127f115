package workflow

import (
	"errors"
	"testing"
	"time"

	"estatehub.org/internal/community"
	"estatehub.org/internal/stickercode"
)

var testNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func testCodes(t *testing.T) *stickercode.Issuer {
	t.Helper()
	iss, err := stickercode.NewIssuer("sticker-secret", func() time.Time { return testNow })
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func sticker(status community.StickerStatus) community.Sticker {
	return community.Sticker{
		ID:           "stk-1",
		TenantID:     "tenant-a",
		HouseholdID:  "hh-1",
		VehiclePlate: "ABC 123",
		Status:       status,
	}
}

func TestDecideStickerApproveFromRequested(t *testing.T) {
	codes := testCodes(t)
	change, err := DecideSticker(sticker(community.StickerRequested), StickerInput{
		Action:     StickerApprove,
		ExpiryDate: "2026-01-01",
	}, "admin-1", testNow, codes)
	if err != nil {
		t.Fatalf("DecideSticker: %v", err)
	}
	if change.To != community.StickerActive {
		t.Fatalf("unexpected target: %s", change.To)
	}
	if change.ExpiryDate == nil || change.ExpiryDate.Format("2006-01-02") != "2026-01-01" {
		t.Fatalf("expiry not set: %v", change.ExpiryDate)
	}
	if change.ApprovedBy == nil || *change.ApprovedBy != "admin-1" || change.ApprovedAt == nil {
		t.Fatalf("approval fields not set: %+v", change)
	}
	if change.RFIDCode == nil {
		t.Fatalf("expected a sticker code")
	}
	payload, err := codes.Verify(*change.RFIDCode)
	if err != nil {
		t.Fatalf("code does not verify: %v", err)
	}
	if payload.StickerID != "stk-1" || payload.HouseholdID != "hh-1" || payload.Plate != "ABC123" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	applied := change.Apply(sticker(community.StickerRequested), testNow)
	if applied.Status != community.StickerActive || applied.ExpiryDate == nil {
		t.Fatalf("apply lost fields: %+v", applied)
	}
	if applied.Status.HasExpiry() != (applied.ExpiryDate != nil) {
		t.Fatalf("expiry invariant broken")
	}
}

func TestDecideStickerApproveRequiresExpiry(t *testing.T) {
	for _, raw := range []string{"", "   ", "next week"} {
		_, err := DecideSticker(sticker(community.StickerPending), StickerInput{
			Action:     StickerApprove,
			ExpiryDate: raw,
		}, "admin-1", testNow, testCodes(t))
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expiry %q: expected ErrValidation, got %v", raw, err)
		}
	}
}

func TestDecideStickerIllegalSources(t *testing.T) {
	for _, status := range community.StickerStatuses {
		if status == community.StickerRequested || status == community.StickerPending {
			continue
		}
		for _, action := range []StickerAction{StickerApprove, StickerReject} {
			original := sticker(status)
			_, err := DecideSticker(original, StickerInput{Action: action, ExpiryDate: "2026-01-01"}, "admin-1", testNow, testCodes(t))
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s from %s: expected ErrInvalidTransition, got %v", action, status, err)
			}
			var te *TransitionError
			if !errors.As(err, &te) || te.Current != string(status) {
				t.Fatalf("%s from %s: error must carry current status, got %v", action, status, err)
			}
			if errors.Is(err, ErrStaleState) {
				t.Fatalf("validator errors are not stale")
			}
		}
	}
}

func TestDecideStickerReject(t *testing.T) {
	change, err := DecideSticker(sticker(community.StickerPending), StickerInput{
		Action:          StickerReject,
		RejectionReason: "  plate does not match OR/CR  ",
	}, "admin-1", testNow, nil)
	if err != nil {
		t.Fatalf("DecideSticker: %v", err)
	}
	if change.To != community.StickerRejected {
		t.Fatalf("unexpected target: %s", change.To)
	}
	if change.RejectionReason == nil || *change.RejectionReason != "plate does not match OR/CR" {
		t.Fatalf("unexpected reason: %v", change.RejectionReason)
	}
	if change.ExpiryDate != nil {
		t.Fatalf("rejected stickers must not carry an expiry")
	}

	change, err = DecideSticker(sticker(community.StickerRequested), StickerInput{Action: StickerReject}, "admin-1", testNow, nil)
	if err != nil {
		t.Fatalf("reject without reason: %v", err)
	}
	if change.RejectionReason != nil {
		t.Fatalf("absent reason must stay empty, got %q", *change.RejectionReason)
	}
}

func TestParseStickerAction(t *testing.T) {
	if a, err := ParseStickerAction(" Approve "); err != nil || a != StickerApprove {
		t.Fatalf("unexpected: %v %v", a, err)
	}
	if _, err := ParseStickerAction("revoke"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStaleErrorMatchesBoth(t *testing.T) {
	err := Stale("sticker", "approve", "active")
	if !errors.Is(err, ErrStaleState) || !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("stale error must match both sentinels: %v", err)
	}
}
