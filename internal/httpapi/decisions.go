package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"estatehub.org/internal/community"
	"estatehub.org/internal/decision"
	"estatehub.org/internal/store"
)

const dateLayout = "2006-01-02"

type stickerDecisionRequest struct {
	StickerID       string `json:"sticker_id"`
	Action          string `json:"action"`
	ExpiryDate      string `json:"expiry_date,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type stickerDecisionData struct {
	StickerID       string  `json:"sticker_id"`
	NewStatus       string  `json:"new_status"`
	ExpiryDate      *string `json:"expiry_date,omitempty"`
	ApprovedBy      *string `json:"approved_by,omitempty"`
	ApprovedAt      *string `json:"approved_at,omitempty"`
	RFIDCode        *string `json:"rfid_code,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
}

type permitDecisionRequest struct {
	PermitID         string           `json:"permit_id"`
	Action           string           `json:"action"`
	RoadFeeAmount    *decimal.Decimal `json:"road_fee_amount,omitempty"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`
	PaymentReference string           `json:"payment_reference,omitempty"`
	PaymentMethod    string           `json:"payment_method,omitempty"`
	StartDate        string           `json:"start_date,omitempty"`
	EndDate          string           `json:"end_date,omitempty"`
}

type permitDecisionData struct {
	PermitID         string       `json:"permit_id"`
	NewStatus        string       `json:"new_status"`
	RoadFeeAmount    *json.Number `json:"road_fee_amount,omitempty"`
	RoadFeePaid      bool         `json:"road_fee_paid"`
	RoadFeePaidAt    *string      `json:"road_fee_paid_at,omitempty"`
	PaymentReference *string      `json:"payment_reference,omitempty"`
	PaymentMethod    *string      `json:"payment_method,omitempty"`
	ApprovedBy       *string      `json:"approved_by,omitempty"`
	ApprovedAt       *string      `json:"approved_at,omitempty"`
	RejectionReason  *string      `json:"rejection_reason,omitempty"`
	ProjectStartDate *string      `json:"project_start_date,omitempty"`
	ProjectEndDate   *string      `json:"project_end_date,omitempty"`
	CompletedAt      *string      `json:"completed_at,omitempty"`
}

type verifyRequest struct {
	RFIDCode string `json:"rfid_code"`
}

type verifyData struct {
	Valid       bool    `json:"valid"`
	StickerID   string  `json:"sticker_id"`
	TenantID    string  `json:"tenant_id"`
	HouseholdID string  `json:"household_id"`
	Plate       string  `json:"vehicle_plate"`
	Status      string  `json:"status"`
	ExpiryDate  *string `json:"expiry_date,omitempty"`
	Version     int     `json:"version"`
}

// POST /v1/stickers/decision
func (a *API) handleStickerDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.decisions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "decisions disabled")
		return
	}
	var req stickerDecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	st, err := a.decisions.DecideSticker(r.Context(), principal(r), decision.StickerRequest{
		StickerID:       req.StickerID,
		Action:          req.Action,
		ExpiryDate:      req.ExpiryDate,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "sticker "+string(st.Status), stickerData(st))
}

// POST /v1/permits/decision
func (a *API) handlePermitDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.decisions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "decisions disabled")
		return
	}
	var req permitDecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	p, err := a.decisions.DecidePermit(r.Context(), principal(r), decision.PermitRequest{
		PermitID:         req.PermitID,
		Action:           req.Action,
		RoadFeeAmount:    req.RoadFeeAmount,
		RejectionReason:  req.RejectionReason,
		PaymentReference: req.PaymentReference,
		PaymentMethod:    req.PaymentMethod,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, permitMessage(req.Action, p), permitData(p))
}

// GET /v1/stickers/{id}
func (a *API) handleStickerGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.decisions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "decisions disabled")
		return
	}
	st, err := a.decisions.Sticker(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeReadError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", st)
}

// GET /v1/permits/{id}
func (a *API) handlePermitGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.decisions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "decisions disabled")
		return
	}
	p, err := a.decisions.Permit(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeReadError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", p)
}

// POST /v1/stickers/verify
func (a *API) handleStickerVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.decisions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "decisions disabled")
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	v, err := a.decisions.VerifyStickerCode(r.Context(), principal(r), req.RFIDCode)
	if err != nil {
		writeReadError(w, r, err)
		return
	}
	msg := "sticker code rejected"
	if v.Valid {
		msg = "sticker code valid"
	}
	writeSuccess(w, http.StatusOK, msg, verifyData{
		Valid:       v.Valid,
		StickerID:   v.Sticker.ID,
		TenantID:    v.Sticker.TenantID,
		HouseholdID: v.Payload.HouseholdID,
		Plate:       v.Payload.Plate,
		Status:      string(v.Sticker.Status),
		ExpiryDate:  formatDate(&v.Payload.Expiry),
		Version:     v.Payload.Version,
	})
}

// GET /v1/audit?resource_type=&resource_id=&limit=
func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.decisions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "decisions disabled")
		return
	}
	q := r.URL.Query()
	filter := store.AuditFilter{
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
		ResourceID:   strings.TrimSpace(q.Get("resource_id")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	entries, err := a.decisions.AuditTrail(r.Context(), principal(r), filter)
	if err != nil {
		writeReadError(w, r, err)
		return
	}
	if entries == nil {
		entries = []community.AuditEntry{}
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"items": entries})
}

func stickerData(s community.Sticker) stickerDecisionData {
	return stickerDecisionData{
		StickerID:       s.ID,
		NewStatus:       string(s.Status),
		ExpiryDate:      formatDate(s.ExpiryDate),
		ApprovedBy:      s.ApprovedBy,
		ApprovedAt:      formatTime(s.ApprovedAt),
		RFIDCode:        s.RFIDCode,
		RejectionReason: s.RejectionReason,
	}
}

func permitData(p community.Permit) permitDecisionData {
	out := permitDecisionData{
		PermitID:         p.ID,
		NewStatus:        string(p.Status),
		RoadFeePaid:      p.RoadFeePaid,
		RoadFeePaidAt:    formatTime(p.RoadFeePaidAt),
		PaymentReference: p.PaymentReference,
		PaymentMethod:    p.PaymentMethod,
		ApprovedBy:       p.ApprovedBy,
		ApprovedAt:       formatTime(p.ApprovedAt),
		RejectionReason:  p.RejectionReason,
		ProjectStartDate: formatDate(p.ProjectStartDate),
		ProjectEndDate:   formatDate(p.ProjectEndDate),
		CompletedAt:      formatTime(p.CompletedAt),
	}
	if p.RoadFeeAmount != nil {
		n := json.Number(p.RoadFeeAmount.StringFixed(2))
		out.RoadFeeAmount = &n
	}
	return out
}

func permitMessage(action string, p community.Permit) string {
	if strings.TrimSpace(action) == "mark_paid" {
		return "road fee marked as paid"
	}
	return "permit " + string(p.Status)
}

func formatDate(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(dateLayout)
	return &s
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
