package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samber/lo"

	"estatehub.org/internal/community"
	"estatehub.org/internal/store"
	"estatehub.org/internal/workflow"
)

const stickerColumns = `id, tenant_id, household_id, vehicle_plate,
	coalesce(vehicle_make, ''), coalesce(vehicle_model, ''), coalesce(vehicle_color, ''),
	status, expiry_date, rejection_reason, rfid_code, approved_by, approved_at,
	created_at, updated_at`

func scanSticker(row rowScanner) (community.Sticker, error) {
	var (
		st                       community.Sticker
		status                   string
		expiry, approvedAt       sql.NullTime
		reason, code, approvedBy sql.NullString
	)
	if err := row.Scan(&st.ID, &st.TenantID, &st.HouseholdID, &st.VehiclePlate,
		&st.VehicleMake, &st.VehicleModel, &st.VehicleColor,
		&status, &expiry, &reason, &code, &approvedBy, &approvedAt,
		&st.CreatedAt, &st.UpdatedAt); err != nil {
		return community.Sticker{}, err
	}
	st.Status = community.StickerStatus(status)
	st.ExpiryDate = timePtr(expiry)
	st.RejectionReason = stringPtr(reason)
	st.RFIDCode = stringPtr(code)
	st.ApprovedBy = stringPtr(approvedBy)
	st.ApprovedAt = timePtr(approvedAt)
	return st, nil
}

func (s *Store) GetSticker(ctx context.Context, scope community.Scope, id string) (community.Sticker, error) {
	if s.db == nil {
		return community.Sticker{}, store.ErrUnavailable
	}
	query, args := scopedQuery(`select `+stickerColumns+` from vehicle_stickers where id = $1`, scope, []any{id})
	st, err := scanSticker(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return community.Sticker{}, store.ErrNotFound
	}
	if err != nil {
		return community.Sticker{}, err
	}
	return st, nil
}

func (s *Store) ApplyStickerChange(ctx context.Context, scope community.Scope, id string, change workflow.StickerChange) (community.Sticker, error) {
	if s.db == nil {
		return community.Sticker{}, store.ErrUnavailable
	}
	var u update
	u.set("status", string(change.To))
	if change.ExpiryDate != nil {
		u.set("expiry_date", *change.ExpiryDate)
	}
	if change.RejectionReason != nil {
		u.set("rejection_reason", *change.RejectionReason)
	}
	if change.RFIDCode != nil {
		u.set("rfid_code", *change.RFIDCode)
	}
	if change.ApprovedBy != nil {
		u.set("approved_by", *change.ApprovedBy)
	}
	if change.ApprovedAt != nil {
		u.set("approved_at", *change.ApprovedAt)
	}
	u.where("id", id)
	u.scoped(scope)
	u.whereIn("status", lo.Map(change.From, func(st community.StickerStatus, _ int) string { return string(st) }))

	st, err := scanSticker(s.db.QueryRowContext(ctx, u.statement("vehicle_stickers", stickerColumns), u.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return community.Sticker{}, s.staleOrMissing(ctx, "vehicle_stickers", "sticker", string(change.Action), scope, id)
	}
	if err != nil {
		return community.Sticker{}, err
	}
	return st, nil
}

// staleOrMissing explains a conditional update that matched no row.
func (s *Store) staleOrMissing(ctx context.Context, table, entity, action string, scope community.Scope, id string) error {
	query, args := scopedQuery(`select status from `+table+` where id = $1`, scope, []any{id})
	var status string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return workflow.Stale(entity, action, status)
}
