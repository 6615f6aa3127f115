package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"estatehub.org/internal/community"
	"estatehub.org/internal/store"
	"estatehub.org/internal/workflow"
)

const permitColumns = `id, tenant_id, household_id,
	coalesce(project_type, ''), coalesce(description, ''), status,
	road_fee_amount, road_fee_paid, road_fee_paid_at, payment_reference, payment_method,
	approved_by, approved_at, rejection_reason,
	project_start_date, project_end_date, completed_at,
	created_at, updated_at`

func scanPermit(row rowScanner) (community.Permit, error) {
	var (
		p                                        community.Permit
		status                                   string
		fee                                      decimal.NullDecimal
		paidAt, approvedAt, start, end, complete sql.NullTime
		ref, method, approvedBy, reason          sql.NullString
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.HouseholdID,
		&p.ProjectType, &p.Description, &status,
		&fee, &p.RoadFeePaid, &paidAt, &ref, &method,
		&approvedBy, &approvedAt, &reason,
		&start, &end, &complete,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return community.Permit{}, err
	}
	p.Status = community.PermitStatus(status)
	if fee.Valid {
		amount := fee.Decimal
		p.RoadFeeAmount = &amount
	}
	p.RoadFeePaidAt = timePtr(paidAt)
	p.PaymentReference = stringPtr(ref)
	p.PaymentMethod = stringPtr(method)
	p.ApprovedBy = stringPtr(approvedBy)
	p.ApprovedAt = timePtr(approvedAt)
	p.RejectionReason = stringPtr(reason)
	p.ProjectStartDate = timePtr(start)
	p.ProjectEndDate = timePtr(end)
	p.CompletedAt = timePtr(complete)
	return p, nil
}

func (s *Store) GetPermit(ctx context.Context, scope community.Scope, id string) (community.Permit, error) {
	if s.db == nil {
		return community.Permit{}, store.ErrUnavailable
	}
	query, args := scopedQuery(`select `+permitColumns+` from construction_permits where id = $1`, scope, []any{id})
	p, err := scanPermit(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return community.Permit{}, store.ErrNotFound
	}
	if err != nil {
		return community.Permit{}, err
	}
	return p, nil
}

func (s *Store) ApplyPermitChange(ctx context.Context, scope community.Scope, id string, change workflow.PermitChange) (community.Permit, error) {
	if s.db == nil {
		return community.Permit{}, store.ErrUnavailable
	}
	var u update
	if change.To != "" {
		u.set("status", string(change.To))
	}
	if change.RoadFeeAmount != nil {
		u.set("road_fee_amount", change.RoadFeeAmount.StringFixed(2))
	}
	if change.RoadFeePaid != nil {
		u.set("road_fee_paid", *change.RoadFeePaid)
	}
	if change.RoadFeePaidAt != nil {
		u.set("road_fee_paid_at", *change.RoadFeePaidAt)
	}
	if change.PaymentReference != nil {
		u.set("payment_reference", *change.PaymentReference)
	}
	if change.PaymentMethod != nil {
		u.set("payment_method", *change.PaymentMethod)
	}
	if change.ApprovedBy != nil {
		u.set("approved_by", *change.ApprovedBy)
	}
	if change.ApprovedAt != nil {
		u.set("approved_at", *change.ApprovedAt)
	}
	if change.RejectionReason != nil {
		u.set("rejection_reason", *change.RejectionReason)
	}
	if change.ProjectStartDate != nil {
		u.set("project_start_date", *change.ProjectStartDate)
	}
	if change.ProjectEndDate != nil {
		u.set("project_end_date", *change.ProjectEndDate)
	}
	if change.CompletedAt != nil {
		u.set("completed_at", *change.CompletedAt)
	}
	u.where("id", id)
	u.scoped(scope)
	u.whereIn("status", lo.Map(change.From, func(st community.PermitStatus, _ int) string { return string(st) }))
	if change.ExpectFeeUnpaid {
		u.where("road_fee_paid", false)
	}

	p, err := scanPermit(s.db.QueryRowContext(ctx, u.statement("construction_permits", permitColumns), u.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return community.Permit{}, s.staleOrMissing(ctx, "construction_permits", "permit", string(change.Action), scope, id)
	}
	if pgErr, ok := maybePgError(err); ok && (pgErr.Code == pgErrCheckViolation || pgErr.Code == pgErrNumericOutOfRange) {
		return community.Permit{}, fmt.Errorf("%w: %s", workflow.ErrValidation, pgErr.Message)
	}
	if err != nil {
		return community.Permit{}, err
	}
	return p, nil
}
