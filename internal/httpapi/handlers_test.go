package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"estatehub.org/internal/audit"
	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
	"estatehub.org/internal/decision"
	"estatehub.org/internal/events"
	"estatehub.org/internal/notify"
	"estatehub.org/internal/obs"
	"estatehub.org/internal/provision"
	"estatehub.org/internal/stickercode"
	"estatehub.org/internal/store/memory"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	tokens  *auth.Tokens
	mem     *memory.Store
	sent    *captureDispatcher
	broker  *events.Broker
}

type captureDispatcher struct {
	creds []notify.Credential
}

func (d *captureDispatcher) Dispatch(_ context.Context, c notify.Credential) error {
	d.creds = append(d.creds, c)
	return nil
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	core, _ := observer.New(zapcore.InfoLevel)
	t.Cleanup(obs.SetLogger(zap.New(core)))

	tokens, err := auth.NewTokens("test-secret")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	codes, err := stickercode.NewIssuer("code-secret", time.Now)
	if err != nil {
		t.Fatalf("codes: %v", err)
	}

	mem := memory.New()
	mem.PutTenant(community.Tenant{ID: "tenant-a", Name: "Acacia Homes", Status: "active"})
	mem.PutTenant(community.Tenant{ID: "tenant-b", Name: "Banyan Court", Status: "active"})
	mem.PutSticker(community.Sticker{ID: "stk-1", TenantID: "tenant-a", HouseholdID: "hh-1", VehiclePlate: "NCR 4821", Status: community.StickerRequested})
	mem.PutSticker(community.Sticker{ID: "stk-2", TenantID: "tenant-a", HouseholdID: "hh-2", VehiclePlate: "ABC 123", Status: community.StickerRejected})
	mem.PutSticker(community.Sticker{ID: "stk-b", TenantID: "tenant-b", HouseholdID: "hh-9", VehiclePlate: "ZZZ 999", Status: community.StickerPending})
	mem.PutPermit(community.Permit{ID: "pmt-1", TenantID: "tenant-a", HouseholdID: "hh-1", Status: community.PermitPending})

	guard := auth.NewGuard(tokens)
	recorder := audit.NewRecorder(mem)
	broker := events.NewBroker(8)
	sent := &captureDispatcher{}

	api := New(Options{
		Version:     "test",
		Ready:       ReadyProbe{Checks: map[string]func(context.Context) error{"store": mem.Ping}},
		Guard:       guard,
		Decisions:   decision.NewService(guard, mem, codes, recorder, decision.WithBroker(broker)),
		Provisioner: provision.NewService(guard, mem, sent, recorder),
		Events:      broker,
		CORSOrigins: []string{"https://admin.example.org"},
		RateBurst:   100,
		RatePerSec:  100,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		tokens:  tokens,
		mem:     mem,
		sent:    sent,
		broker:  broker,
	}
}

func (c *apiClient) bearer(user string, role community.Role, tenant string) map[string]string {
	c.t.Helper()
	token, _, err := c.tokens.Issue(user, role, tenant, time.Hour)
	if err != nil {
		c.t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type response[T any] struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      T      `json:"data"`
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

func expectStatus(t *testing.T, resp *http.Response, want int) response[map[string]any] {
	t.Helper()
	if resp.StatusCode != want {
		body := decode[map[string]any](t, resp)
		t.Fatalf("status = %d, want %d (body %v)", resp.StatusCode, want, body)
	}
	return decode[response[map[string]any]](t, resp)
}

func TestStickerApproveFlow(t *testing.T) {
	api := newTestAPI(t)
	officer := api.bearer("off-1", community.RoleAdminOfficer, "tenant-a")

	body := expectStatus(t, api.post("/v1/stickers/decision", map[string]any{
		"sticker_id":  "stk-1",
		"action":      "approve",
		"expiry_date": "2099-12-31",
	}, officer), http.StatusOK)

	if !body.Success || body.Message == "" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if body.Data["sticker_id"] != "stk-1" || body.Data["new_status"] != "active" {
		t.Fatalf("unexpected data: %v", body.Data)
	}
	if body.Data["expiry_date"] != "2099-12-31" {
		t.Fatalf("expiry_date = %v", body.Data["expiry_date"])
	}
	if body.Data["approved_by"] != "off-1" || body.Data["approved_at"] == nil {
		t.Fatalf("approval metadata missing: %v", body.Data)
	}
	code, _ := body.Data["rfid_code"].(string)
	if code == "" {
		t.Fatalf("expected rfid_code")
	}

	// The issued code verifies at the gate.
	gate := api.bearer("gate-1", community.RoleSecurity, "tenant-a")
	verified := expectStatus(t, api.post("/v1/stickers/verify", map[string]any{"rfid_code": code}, gate), http.StatusOK)
	if verified.Data["valid"] != true || verified.Data["sticker_id"] != "stk-1" {
		t.Fatalf("unexpected verification: %v", verified.Data)
	}

	// A second approval sees the committed state.
	again := expectStatus(t, api.post("/v1/stickers/decision", map[string]any{
		"sticker_id":  "stk-1",
		"action":      "approve",
		"expiry_date": "2099-12-31",
	}, officer), http.StatusBadRequest)
	if again.Success || !strings.Contains(again.Error, "active") {
		t.Fatalf("expected transition error naming current status, got %+v", again)
	}

	trail := expectStatus(t, api.get("/v1/audit", url.Values{"resource_type": {"sticker"}, "resource_id": {"stk-1"}}, officer), http.StatusOK)
	items, _ := trail.Data["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(items))
	}
}

func TestStickerDecisionErrors(t *testing.T) {
	api := newTestAPI(t)
	officer := api.bearer("off-1", community.RoleAdminOfficer, "tenant-a")

	cases := []struct {
		name    string
		headers map[string]string
		body    map[string]any
		want    int
	}{
		{"missing credential", nil, map[string]any{"sticker_id": "stk-1", "action": "reject"}, http.StatusUnauthorized},
		{"garbage credential", map[string]string{"Authorization": "Bearer nope"}, map[string]any{"sticker_id": "stk-1", "action": "reject"}, http.StatusUnauthorized},
		{"resident role", api.bearer("res-1", community.RoleResident, "tenant-a"), map[string]any{"sticker_id": "stk-1", "action": "reject"}, http.StatusForbidden},
		{"approve without expiry", officer, map[string]any{"sticker_id": "stk-1", "action": "approve"}, http.StatusBadRequest},
		{"unknown action", officer, map[string]any{"sticker_id": "stk-1", "action": "archive"}, http.StatusBadRequest},
		{"rejected sticker", officer, map[string]any{"sticker_id": "stk-2", "action": "approve", "expiry_date": "2026-01-01"}, http.StatusBadRequest},
		{"other tenant", officer, map[string]any{"sticker_id": "stk-b", "action": "reject"}, http.StatusBadRequest},
		{"unknown field", officer, map[string]any{"sticker_id": "stk-1", "action": "reject", "extra": true}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := expectStatus(t, api.post("/v1/stickers/decision", tc.body, tc.headers), tc.want)
			if body.Success || body.Error == "" {
				t.Fatalf("expected error envelope, got %+v", body)
			}
		})
	}

	st, err := api.mem.GetSticker(context.Background(), community.PlatformScope(), "stk-1")
	if err != nil {
		t.Fatalf("get sticker: %v", err)
	}
	if st.Status != community.StickerRequested {
		t.Fatalf("failed decisions must not write, status = %s", st.Status)
	}
}

func TestStickerRejectWithoutReason(t *testing.T) {
	api := newTestAPI(t)
	body := expectStatus(t, api.post("/v1/stickers/decision", map[string]any{
		"sticker_id": "stk-1",
		"action":     "reject",
	}, api.bearer("head-1", community.RoleAdminHead, "tenant-a")), http.StatusOK)
	if body.Data["new_status"] != "rejected" {
		t.Fatalf("unexpected data: %v", body.Data)
	}
	if _, ok := body.Data["rejection_reason"]; ok {
		t.Fatalf("absent reason must not be filled in: %v", body.Data)
	}
}

func TestPermitDecisionFlow(t *testing.T) {
	api := newTestAPI(t)
	officer := api.bearer("off-1", community.RoleAdminOfficer, "tenant-a")

	approved := expectStatus(t, api.post("/v1/permits/decision", map[string]any{
		"permit_id":       "pmt-1",
		"action":          "approve",
		"road_fee_amount": 5000,
	}, officer), http.StatusOK)
	if approved.Data["new_status"] != "approved" || approved.Data["road_fee_amount"] != float64(5000) {
		t.Fatalf("unexpected approve data: %v", approved.Data)
	}
	if approved.Data["road_fee_paid"] != false {
		t.Fatalf("road fee must start unpaid: %v", approved.Data)
	}

	paid := expectStatus(t, api.post("/v1/permits/decision", map[string]any{
		"permit_id":         "pmt-1",
		"action":            "mark_paid",
		"payment_reference": "GCASH-0001",
		"payment_method":    "gcash",
	}, officer), http.StatusOK)
	if paid.Data["new_status"] != "approved" || paid.Data["road_fee_paid"] != true {
		t.Fatalf("mark_paid must only flip the fee flag: %v", paid.Data)
	}
	if paid.Data["payment_reference"] != "GCASH-0001" {
		t.Fatalf("payment reference missing: %v", paid.Data)
	}

	expectStatus(t, api.post("/v1/permits/decision", map[string]any{
		"permit_id": "pmt-1",
		"action":    "mark_completed",
	}, officer), http.StatusBadRequest)

	expectStatus(t, api.post("/v1/permits/decision", map[string]any{
		"permit_id": "pmt-1",
		"action":    "mark_in_progress",
	}, officer), http.StatusOK)

	done := expectStatus(t, api.post("/v1/permits/decision", map[string]any{
		"permit_id": "pmt-1",
		"action":    "mark_completed",
	}, officer), http.StatusOK)
	if done.Data["new_status"] != "completed" || done.Data["completed_at"] == nil {
		t.Fatalf("unexpected completion data: %v", done.Data)
	}

	got := expectStatus(t, api.get("/v1/permits/pmt-1", nil, officer), http.StatusOK)
	if got.Data["status"] != "completed" {
		t.Fatalf("unexpected permit: %v", got.Data)
	}
}

func TestPermitApproveRequiresPositiveFee(t *testing.T) {
	api := newTestAPI(t)
	officer := api.bearer("off-1", community.RoleAdminOfficer, "tenant-a")
	for _, fee := range []any{nil, 0, -10, "abc"} {
		body := map[string]any{"permit_id": "pmt-1", "action": "approve"}
		if fee != nil {
			body["road_fee_amount"] = fee
		}
		expectStatus(t, api.post("/v1/permits/decision", body, officer), http.StatusBadRequest)
	}
}

func TestReadEndpointsReturnNotFound(t *testing.T) {
	api := newTestAPI(t)
	officer := api.bearer("off-1", community.RoleAdminOfficer, "tenant-a")

	expectStatus(t, api.get("/v1/stickers/stk-b", nil, officer), http.StatusNotFound)
	expectStatus(t, api.get("/v1/permits/missing", nil, officer), http.StatusNotFound)

	codes, err := stickercode.NewIssuer("code-secret", time.Now)
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	orphan, err := codes.Issue(stickercode.Payload{StickerID: "stk-gone", TenantID: "tenant-a", HouseholdID: "hh-1", Plate: "NCR 4821", Expiry: time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expectStatus(t, api.post("/v1/stickers/verify", map[string]any{"rfid_code": orphan}, officer), http.StatusNotFound)

	root := api.bearer("root", community.RoleSuperadmin, "")
	body := expectStatus(t, api.get("/v1/stickers/stk-b", nil, root), http.StatusOK)
	if body.Data["tenant_id"] != "tenant-b" {
		t.Fatalf("superadmin should read across tenants: %v", body.Data)
	}
}

func TestCreateAdminUser(t *testing.T) {
	api := newTestAPI(t)
	head := api.bearer("head-1", community.RoleAdminHead, "tenant-a")

	resp := api.post("/v1/admin-users", map[string]any{
		"tenant_id":  "tenant-a",
		"email":      "Officer@Example.org",
		"first_name": "Maria",
		"last_name":  "Santos",
		"role":       "admin_officer",
	}, head)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if strings.Contains(strings.ToLower(raw.String()), "password\":\"") {
		t.Fatalf("response must not carry a password: %s", raw.String())
	}
	var body response[map[string]any]
	if err := json.Unmarshal(raw.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["email"] != "officer@example.org" || body.Data["role"] != "admin_officer" {
		t.Fatalf("unexpected data: %v", body.Data)
	}
	if body.Data["credential_dispatched"] != true || body.Data["must_change_password"] != true {
		t.Fatalf("unexpected credential flags: %v", body.Data)
	}
	if len(api.sent.creds) != 1 || api.sent.creds[0].TemporaryPassword == "" {
		t.Fatalf("temporary credential must be dispatched out of band")
	}

	dup := expectStatus(t, api.post("/v1/admin-users", map[string]any{
		"tenant_id":  "tenant-a",
		"email":      "officer@example.org",
		"first_name": "Other",
		"last_name":  "Person",
		"role":       "admin_officer",
	}, head), http.StatusBadRequest)
	if !strings.Contains(dup.Error, "email") {
		t.Fatalf("expected duplicate email error, got %q", dup.Error)
	}
}

func TestCreateAdminUserForbidden(t *testing.T) {
	api := newTestAPI(t)
	head := api.bearer("head-1", community.RoleAdminHead, "tenant-a")
	base := map[string]any{
		"tenant_id":  "tenant-a",
		"email":      "new@example.org",
		"first_name": "New",
		"last_name":  "Admin",
		"role":       "admin_officer",
	}
	with := func(k, v string) map[string]any {
		out := make(map[string]any, len(base))
		for key, val := range base {
			out[key] = val
		}
		out[k] = v
		return out
	}

	expectStatus(t, api.post("/v1/admin-users", with("role", "admin_head"), head), http.StatusForbidden)
	expectStatus(t, api.post("/v1/admin-users", with("tenant_id", "tenant-b"), head), http.StatusForbidden)
	expectStatus(t, api.post("/v1/admin-users", base, api.bearer("off-1", community.RoleAdminOfficer, "tenant-a")), http.StatusForbidden)
	expectStatus(t, api.post("/v1/admin-users", with("role", "resident"), head), http.StatusBadRequest)
	expectStatus(t, api.post("/v1/admin-users", base, nil), http.StatusUnauthorized)

	if len(api.mem.Accounts()) != 0 || len(api.mem.Admins()) != 0 {
		t.Fatalf("rejected requests must not write")
	}

	root := api.bearer("root", community.RoleSuperadmin, "")
	expectStatus(t, api.post("/v1/admin-users", with("role", "admin_head"), root), http.StatusCreated)
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/v1/stickers/decision", nil, api.bearer("off-1", community.RoleAdminOfficer, "tenant-a"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != http.MethodPost {
		t.Fatalf("unexpected Allow header %q", resp.Header.Get("Allow"))
	}
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	health := decode[map[string]any](t, api.get("/healthz", nil, nil))
	if health["status"] != "ok" {
		t.Fatalf("unexpected health: %v", health)
	}
	resp := api.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestReadyProbeReportsFailingCheck(t *testing.T) {
	rp := ReadyProbe{Checks: map[string]func(context.Context) error{
		"db": func(context.Context) error { return context.DeadlineExceeded },
	}}
	err := rp.Check(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "db:") {
		t.Fatalf("expected db failure, got %v", err)
	}
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)
	req, err := http.NewRequest(http.MethodOptions, api.baseURL+"/v1/stickers/decision", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "https://admin.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "https://admin.example.org" {
		t.Fatalf("missing allow-origin header")
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatalf("Authorization must be an allowed header")
	}
}
