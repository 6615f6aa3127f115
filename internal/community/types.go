package community

import (
	"time"

	"github.com/shopspring/decimal"
)

// StickerStatus is the lifecycle state of a vehicle sticker.
type StickerStatus string

const (
	StickerRequested StickerStatus = "requested"
	StickerPending   StickerStatus = "pending"
	StickerActive    StickerStatus = "active"
	StickerExpiring  StickerStatus = "expiring"
	StickerExpired   StickerStatus = "expired"
	StickerRejected  StickerStatus = "rejected"
	StickerRevoked   StickerStatus = "revoked"
)

// StickerStatuses lists every sticker state.
var StickerStatuses = []StickerStatus{
	StickerRequested, StickerPending, StickerActive, StickerExpiring,
	StickerExpired, StickerRejected, StickerRevoked,
}

// HasExpiry reports whether stickers in this state must carry an expiry date.
func (s StickerStatus) HasExpiry() bool {
	return s == StickerActive || s == StickerExpiring || s == StickerExpired
}

// Sticker is a vehicle registration record owned by a household.
type Sticker struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenant_id"`
	HouseholdID     string        `json:"household_id"`
	VehiclePlate    string        `json:"vehicle_plate"`
	VehicleMake     string        `json:"vehicle_make,omitempty"`
	VehicleModel    string        `json:"vehicle_model,omitempty"`
	VehicleColor    string        `json:"vehicle_color,omitempty"`
	Status          StickerStatus `json:"status"`
	ExpiryDate      *time.Time    `json:"expiry_date,omitempty"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	RFIDCode        *string       `json:"rfid_code,omitempty"`
	ApprovedBy      *string       `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// PermitStatus is the lifecycle state of a construction permit.
type PermitStatus string

const (
	PermitPending    PermitStatus = "pending"
	PermitSubmitted  PermitStatus = "submitted"
	PermitApproved   PermitStatus = "approved"
	PermitRejected   PermitStatus = "rejected"
	PermitInProgress PermitStatus = "in_progress"
	PermitPaid       PermitStatus = "paid"
	PermitCompleted  PermitStatus = "completed"
)

// PermitStatuses lists every permit state.
var PermitStatuses = []PermitStatus{
	PermitPending, PermitSubmitted, PermitApproved, PermitRejected,
	PermitInProgress, PermitPaid, PermitCompleted,
}

// Permit is a construction permit requested by a household.
// RoadFeePaid is an independent flag and not part of Status.
type Permit struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenant_id"`
	HouseholdID      string           `json:"household_id"`
	ProjectType      string           `json:"project_type,omitempty"`
	Description      string           `json:"description,omitempty"`
	Status           PermitStatus     `json:"status"`
	RoadFeeAmount    *decimal.Decimal `json:"road_fee_amount,omitempty"`
	RoadFeePaid      bool             `json:"road_fee_paid"`
	RoadFeePaidAt    *time.Time       `json:"road_fee_paid_at,omitempty"`
	PaymentReference *string          `json:"payment_reference,omitempty"`
	PaymentMethod    *string          `json:"payment_method,omitempty"`
	ApprovedBy       *string          `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	RejectionReason  *string          `json:"rejection_reason,omitempty"`
	ProjectStartDate *time.Time       `json:"project_start_date,omitempty"`
	ProjectEndDate   *time.Time       `json:"project_end_date,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

const (
	AdminStatusActive   = "active"
	AdminStatusInactive = "inactive"
)

// AdminUser is a tenant-scoped administrator record.
type AdminUser struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      Role      `json:"role"`
	Status    string    `json:"status"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdentityAccount is the login identity backing an admin record.
type IdentityAccount struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
}

// Tenant is one community.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry is one append-only record of a privileged mutation.
type AuditEntry struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id,omitempty"`
	ActorID      string         `json:"actor_id"`
	ActorRole    Role           `json:"actor_role,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Before       map[string]any `json:"before,omitempty"`
	After        map[string]any `json:"after,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}
