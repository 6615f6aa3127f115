package workflow

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"estatehub.org/internal/community"
	"estatehub.org/internal/stickercode"
)

const entitySticker = "sticker"

// StickerAction is an admin decision on a sticker request.
type StickerAction string

const (
	StickerApprove StickerAction = "approve"
	StickerReject  StickerAction = "reject"
)

var stickerSources = map[StickerAction][]community.StickerStatus{
	StickerApprove: {community.StickerRequested, community.StickerPending},
	StickerReject:  {community.StickerRequested, community.StickerPending},
}

// StickerInput is the caller-provided part of a sticker decision.
type StickerInput struct {
	Action          StickerAction
	ExpiryDate      string
	RejectionReason string
}

// CodeIssuer materialises the verifiable code written on an approved sticker.
type CodeIssuer interface {
	Issue(p stickercode.Payload) (string, error)
}

// StickerChange is the validated update for one sticker. From lists the
// statuses the stored record must still have when the write lands.
type StickerChange struct {
	Action          StickerAction
	From            []community.StickerStatus
	To              community.StickerStatus
	ExpiryDate      *time.Time
	RejectionReason *string
	RFIDCode        *string
	ApprovedBy      *string
	ApprovedAt      *time.Time
}

// ParseStickerAction validates the action name.
func ParseStickerAction(s string) (StickerAction, error) {
	a := StickerAction(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := stickerSources[a]; !ok {
		return "", validationf("action must be one of approve, reject")
	}
	return a, nil
}

// DecideSticker validates the action against the sticker's current status and
// computes the fields to write. It never mutates current.
func DecideSticker(current community.Sticker, in StickerInput, actorID string, now time.Time, codes CodeIssuer) (StickerChange, error) {
	sources, ok := stickerSources[in.Action]
	if !ok {
		return StickerChange{}, validationf("action must be one of approve, reject")
	}
	if !lo.Contains(sources, current.Status) {
		return StickerChange{}, invalid(entitySticker, string(in.Action), string(current.Status))
	}

	change := StickerChange{Action: in.Action, From: sources}
	switch in.Action {
	case StickerApprove:
		expiry, err := parseDate("expiry_date", in.ExpiryDate)
		if err != nil {
			return StickerChange{}, err
		}
		if codes == nil {
			return StickerChange{}, validationf("sticker code issuer unavailable")
		}
		code, err := codes.Issue(stickercode.Payload{
			StickerID:   current.ID,
			TenantID:    current.TenantID,
			HouseholdID: current.HouseholdID,
			Plate:       current.VehiclePlate,
			Expiry:      expiry,
		})
		if err != nil {
			return StickerChange{}, validationf("issue sticker code: %v", err)
		}
		at := now.UTC()
		change.To = community.StickerActive
		change.ExpiryDate = &expiry
		change.RFIDCode = &code
		change.ApprovedBy = ptr(actorID)
		change.ApprovedAt = &at
	case StickerReject:
		reason, err := optionalText("rejection_reason", in.RejectionReason, maxReasonLength)
		if err != nil {
			return StickerChange{}, err
		}
		change.To = community.StickerRejected
		change.RejectionReason = reason
	}
	return change, nil
}

// Apply returns s with the change written over it.
func (c StickerChange) Apply(s community.Sticker, now time.Time) community.Sticker {
	s.Status = c.To
	if c.ExpiryDate != nil {
		s.ExpiryDate = c.ExpiryDate
	}
	if c.RejectionReason != nil {
		s.RejectionReason = c.RejectionReason
	}
	if c.RFIDCode != nil {
		s.RFIDCode = c.RFIDCode
	}
	if c.ApprovedBy != nil {
		s.ApprovedBy = c.ApprovedBy
	}
	if c.ApprovedAt != nil {
		s.ApprovedAt = c.ApprovedAt
	}
	s.UpdatedAt = now.UTC()
	return s
}

// StickerSnapshot is the audit view of a sticker.
func StickerSnapshot(s community.Sticker) map[string]any {
	out := map[string]any{"status": string(s.Status)}
	if s.ExpiryDate != nil {
		out["expiry_date"] = s.ExpiryDate.Format(dateLayout)
	}
	if s.RejectionReason != nil {
		out["rejection_reason"] = *s.RejectionReason
	}
	if s.ApprovedBy != nil {
		out["approved_by"] = *s.ApprovedBy
	}
	return out
}
