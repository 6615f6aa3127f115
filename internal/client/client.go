// Package client is a Go client for the estatehub HTTP API, used by
// operator tooling and smoke checks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
	"estatehub.org/internal/store"
)

// ErrRejected marks a request the API refused as invalid (HTTP 400).
var ErrRejected = errors.New("request rejected")

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api %d: %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// Is maps response statuses onto the service error taxonomy.
func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusUnauthorized:
		return target == auth.ErrUnauthorized
	case http.StatusForbidden:
		return target == auth.ErrForbidden
	case http.StatusBadRequest:
		return target == ErrRejected
	case http.StatusNotFound:
		return target == store.ErrNotFound
	case http.StatusServiceUnavailable:
		return target == store.ErrUnavailable
	}
	return false
}

// Client calls the API with the bearer token carried by the request context
// (auth.ContextWithToken) or, failing that, the client's default token.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithToken sets the token used when the context carries none.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StickerDecision is the data returned by the sticker decision endpoint.
type StickerDecision struct {
	StickerID       string `json:"sticker_id"`
	NewStatus       string `json:"new_status"`
	ExpiryDate      string `json:"expiry_date,omitempty"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	RFIDCode        string `json:"rfid_code,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// PermitDecision is the data returned by the permit decision endpoint.
type PermitDecision struct {
	PermitID         string              `json:"permit_id"`
	NewStatus        string              `json:"new_status"`
	RoadFeeAmount    decimal.NullDecimal `json:"road_fee_amount"`
	RoadFeePaid      bool                `json:"road_fee_paid"`
	RoadFeePaidAt    string              `json:"road_fee_paid_at,omitempty"`
	PaymentReference string              `json:"payment_reference,omitempty"`
	PaymentMethod    string              `json:"payment_method,omitempty"`
	ApprovedBy       string              `json:"approved_by,omitempty"`
	ApprovedAt       string              `json:"approved_at,omitempty"`
	RejectionReason  string              `json:"rejection_reason,omitempty"`
	ProjectStartDate string              `json:"project_start_date,omitempty"`
	ProjectEndDate   string              `json:"project_end_date,omitempty"`
	CompletedAt      string              `json:"completed_at,omitempty"`
}

// AdminCreated is the data returned by admin provisioning.
type AdminCreated struct {
	ID                   string `json:"id"`
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	Role                 string `json:"role"`
	TenantID             string `json:"tenant_id"`
	Status               string `json:"status"`
	MustChangePassword   bool   `json:"must_change_password"`
	CredentialDispatched bool   `json:"credential_dispatched"`
}

// Verification is the data returned by sticker code verification.
type Verification struct {
	Valid      bool   `json:"valid"`
	StickerID  string `json:"sticker_id"`
	TenantID   string `json:"tenant_id"`
	Status     string `json:"status"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

// StickerAction submits an approve or reject decision.
type StickerAction struct {
	StickerID       string `json:"sticker_id"`
	Action          string `json:"action"`
	ExpiryDate      string `json:"expiry_date,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// PermitAction submits a permit decision.
type PermitAction struct {
	PermitID         string           `json:"permit_id"`
	Action           string           `json:"action"`
	RoadFeeAmount    *decimal.Decimal `json:"road_fee_amount,omitempty"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`
	PaymentReference string           `json:"payment_reference,omitempty"`
	PaymentMethod    string           `json:"payment_method,omitempty"`
	StartDate        string           `json:"start_date,omitempty"`
	EndDate          string           `json:"end_date,omitempty"`
}

// NewAdmin is an admin provisioning request.
type NewAdmin struct {
	TenantID  string         `json:"tenant_id"`
	Email     string         `json:"email"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Role      community.Role `json:"role"`
	Phone     string         `json:"phone,omitempty"`
}

func (c *Client) DecideSticker(ctx context.Context, in StickerAction) (StickerDecision, error) {
	var out StickerDecision
	err := c.do(ctx, http.MethodPost, "/v1/stickers/decision", in, &out)
	return out, err
}

func (c *Client) DecidePermit(ctx context.Context, in PermitAction) (PermitDecision, error) {
	var out PermitDecision
	err := c.do(ctx, http.MethodPost, "/v1/permits/decision", in, &out)
	return out, err
}

func (c *Client) CreateAdmin(ctx context.Context, in NewAdmin) (AdminCreated, error) {
	var out AdminCreated
	err := c.do(ctx, http.MethodPost, "/v1/admin-users", in, &out)
	return out, err
}

func (c *Client) VerifySticker(ctx context.Context, code string) (Verification, error) {
	var out Verification
	err := c.do(ctx, http.MethodPost, "/v1/stickers/verify", map[string]string{"rfid_code": code}, &out)
	return out, err
}

func (c *Client) Sticker(ctx context.Context, id string) (community.Sticker, error) {
	var out community.Sticker
	err := c.do(ctx, http.MethodGet, "/v1/stickers/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Permit(ctx context.Context, id string) (community.Permit, error) {
	var out community.Permit
	err := c.do(ctx, http.MethodGet, "/v1/permits/"+url.PathEscape(id), nil, &out)
	return out, err
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID string          `json:"request_id"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.bearer(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: "undecodable response: " + err.Error()}
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error, RequestID: env.RequestID}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func (c *Client) bearer(ctx context.Context) string {
	if token, ok := auth.TokenFromContext(ctx); ok {
		return token
	}
	return c.token
}
