package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
	"estatehub.org/internal/store"
	"estatehub.org/internal/workflow"
)

func TestVerifyStickerCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.svc.DecideSticker(ctx, officerA, StickerRequest{StickerID: "stk-1", Action: "approve", ExpiryDate: "2026-01-01"})
	require.NoError(t, err)

	v, err := f.svc.VerifyStickerCode(ctx, guardA, *st.RFIDCode)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "stk-1", v.Payload.StickerID)

	_, err = f.svc.VerifyStickerCode(ctx, auth.Principal{UserID: "gate-b", Role: community.RoleSecurity, TenantID: "tenant-b"}, *st.RFIDCode)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.VerifyStickerCode(ctx, guardA, "garbage")
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.svc.VerifyStickerCode(ctx, resident, *st.RFIDCode)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestReadsAreScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Sticker(ctx, officerB, "stk-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	st, err := f.svc.Sticker(ctx, guardA, "stk-1")
	require.NoError(t, err)
	assert.Equal(t, "hh-1", st.HouseholdID)

	_, err = f.svc.Permit(ctx, guardA, "pmt-1")
	assert.ErrorIs(t, err, auth.ErrForbidden)
	p, err := f.svc.Permit(ctx, superadmin, "pmt-1")
	require.NoError(t, err)
	assert.Equal(t, community.PermitPending, p.Status)
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.DecideSticker(ctx, officerA, StickerRequest{StickerID: "stk-1", Action: "reject"})
	require.NoError(t, err)

	entries, err := f.svc.AuditTrail(ctx, officerA, store.AuditFilter{ResourceType: "sticker"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sticker.reject", entries[0].Action)

	entries, err = f.svc.AuditTrail(ctx, officerB, store.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = f.svc.AuditTrail(ctx, guardA, store.AuditFilter{})
	assert.ErrorIs(t, err, auth.ErrForbidden)
}
