package workflow

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"estatehub.org/internal/community"
)

const entityPermit = "permit"

// PermitAction is an admin decision on a construction permit.
type PermitAction string

const (
	PermitApprove        PermitAction = "approve"
	PermitReject         PermitAction = "reject"
	PermitMarkInProgress PermitAction = "mark_in_progress"
	PermitMarkPaid       PermitAction = "mark_paid"
	PermitMarkCompleted  PermitAction = "mark_completed"
)

var permitSources = map[PermitAction][]community.PermitStatus{
	PermitApprove:        {community.PermitPending, community.PermitSubmitted},
	PermitReject:         {community.PermitPending, community.PermitSubmitted},
	PermitMarkInProgress: {community.PermitApproved},
	PermitMarkPaid:       {community.PermitApproved},
	PermitMarkCompleted:  {community.PermitPaid, community.PermitInProgress},
}

// PermitInput is the caller-provided part of a permit decision.
type PermitInput struct {
	Action           PermitAction
	RoadFeeAmount    *decimal.Decimal
	RejectionReason  string
	PaymentReference string
	PaymentMethod    string
	StartDate        string
	EndDate          string
}

// PermitChange is the validated update for one permit. Status is left
// untouched when To is empty (mark_paid only flips the fee flag).
type PermitChange struct {
	Action           PermitAction
	From             []community.PermitStatus
	To               community.PermitStatus
	ExpectFeeUnpaid  bool
	RoadFeeAmount    *decimal.Decimal
	RoadFeePaid      *bool
	RoadFeePaidAt    *time.Time
	PaymentReference *string
	PaymentMethod    *string
	ApprovedBy       *string
	ApprovedAt       *time.Time
	RejectionReason  *string
	ProjectStartDate *time.Time
	ProjectEndDate   *time.Time
	CompletedAt      *time.Time
}

// ParsePermitAction validates the action name.
func ParsePermitAction(s string) (PermitAction, error) {
	a := PermitAction(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := permitSources[a]; !ok {
		return "", validationf("action must be one of approve, reject, mark_in_progress, mark_paid, mark_completed")
	}
	return a, nil
}

// DecidePermit validates the action against the permit's current status and
// computes the fields to write. It never mutates current.
func DecidePermit(current community.Permit, in PermitInput, actorID string, now time.Time) (PermitChange, error) {
	sources, ok := permitSources[in.Action]
	if !ok {
		return PermitChange{}, validationf("unknown permit action %q", in.Action)
	}
	if !lo.Contains(sources, current.Status) {
		return PermitChange{}, invalid(entityPermit, string(in.Action), string(current.Status))
	}

	at := now.UTC()
	change := PermitChange{Action: in.Action, From: sources}
	switch in.Action {
	case PermitApprove:
		amount, err := validateRoadFee(in.RoadFeeAmount)
		if err != nil {
			return PermitChange{}, err
		}
		start, end, err := projectWindow(current, in.StartDate, in.EndDate)
		if err != nil {
			return PermitChange{}, err
		}
		change.To = community.PermitApproved
		change.RoadFeeAmount = &amount
		change.RoadFeePaid = ptr(false)
		change.ApprovedBy = ptr(actorID)
		change.ApprovedAt = &at
		change.ProjectStartDate = start
		change.ProjectEndDate = end
	case PermitReject:
		reason, err := optionalText("rejection_reason", in.RejectionReason, maxReasonLength)
		if err != nil {
			return PermitChange{}, err
		}
		change.To = community.PermitRejected
		change.RejectionReason = reason
	case PermitMarkInProgress:
		change.To = community.PermitInProgress
	case PermitMarkPaid:
		if current.RoadFeePaid {
			return PermitChange{}, validationf("road fee already paid")
		}
		ref, err := optionalText("payment_reference", in.PaymentReference, maxReferenceLength)
		if err != nil {
			return PermitChange{}, err
		}
		method, err := optionalText("payment_method", in.PaymentMethod, maxReferenceLength)
		if err != nil {
			return PermitChange{}, err
		}
		change.ExpectFeeUnpaid = true
		change.RoadFeePaid = ptr(true)
		change.RoadFeePaidAt = &at
		change.PaymentReference = ref
		change.PaymentMethod = method
	case PermitMarkCompleted:
		change.To = community.PermitCompleted
		change.CompletedAt = &at
	}
	return change, nil
}

// maxRoadFee is the largest amount a numeric(12,2) column holds.
var maxRoadFee = decimal.RequireFromString("9999999999.99")

func validateRoadFee(amount *decimal.Decimal) (decimal.Decimal, error) {
	if amount == nil {
		return decimal.Decimal{}, validationf("road_fee_amount is required to approve")
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, validationf("road_fee_amount must be greater than zero")
	}
	if amount.GreaterThan(maxRoadFee) {
		return decimal.Decimal{}, validationf("road_fee_amount must not exceed %s", maxRoadFee.StringFixed(2))
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Decimal{}, validationf("road_fee_amount must have at most two decimal places")
	}
	return *amount, nil
}

// projectWindow parses the requested dates. A bound left out of the request
// keeps the permit's stored value when checking the window's order.
func projectWindow(current community.Permit, startRaw, endRaw string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if strings.TrimSpace(startRaw) != "" {
		t, err := parseDate("start_date", startRaw)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if strings.TrimSpace(endRaw) != "" {
		t, err := parseDate("end_date", endRaw)
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}
	effStart := lo.CoalesceOrEmpty(start, current.ProjectStartDate)
	effEnd := lo.CoalesceOrEmpty(end, current.ProjectEndDate)
	if effStart != nil && effEnd != nil && effEnd.Before(*effStart) {
		return nil, nil, validationf("end_date must not precede start_date")
	}
	return start, end, nil
}

// Apply returns p with the change written over it.
func (c PermitChange) Apply(p community.Permit, now time.Time) community.Permit {
	if c.To != "" {
		p.Status = c.To
	}
	if c.RoadFeeAmount != nil {
		p.RoadFeeAmount = c.RoadFeeAmount
	}
	if c.RoadFeePaid != nil {
		p.RoadFeePaid = *c.RoadFeePaid
	}
	if c.RoadFeePaidAt != nil {
		p.RoadFeePaidAt = c.RoadFeePaidAt
	}
	if c.PaymentReference != nil {
		p.PaymentReference = c.PaymentReference
	}
	if c.PaymentMethod != nil {
		p.PaymentMethod = c.PaymentMethod
	}
	if c.ApprovedBy != nil {
		p.ApprovedBy = c.ApprovedBy
	}
	if c.ApprovedAt != nil {
		p.ApprovedAt = c.ApprovedAt
	}
	if c.RejectionReason != nil {
		p.RejectionReason = c.RejectionReason
	}
	if c.ProjectStartDate != nil {
		p.ProjectStartDate = c.ProjectStartDate
	}
	if c.ProjectEndDate != nil {
		p.ProjectEndDate = c.ProjectEndDate
	}
	if c.CompletedAt != nil {
		p.CompletedAt = c.CompletedAt
	}
	p.UpdatedAt = now.UTC()
	return p
}

// PermitSnapshot is the audit view of a permit.
func PermitSnapshot(p community.Permit) map[string]any {
	out := map[string]any{
		"status":        string(p.Status),
		"road_fee_paid": p.RoadFeePaid,
	}
	if p.RoadFeeAmount != nil {
		out["road_fee_amount"] = p.RoadFeeAmount.StringFixed(2)
	}
	if p.RejectionReason != nil {
		out["rejection_reason"] = *p.RejectionReason
	}
	if p.PaymentReference != nil {
		out["payment_reference"] = *p.PaymentReference
	}
	return out
}
