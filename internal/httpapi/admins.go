package httpapi

import (
	"net/http"

	"estatehub.org/internal/provision"
)

type createAdminRequest struct {
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Phone     string `json:"phone,omitempty"`
}

// createAdminData never carries the temporary password; it is delivered out of band.
type createAdminData struct {
	ID                   string `json:"id"`
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	Role                 string `json:"role"`
	TenantID             string `json:"tenant_id"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Phone                string `json:"phone,omitempty"`
	Status               string `json:"status"`
	MustChangePassword   bool   `json:"must_change_password"`
	CredentialDispatched bool   `json:"credential_dispatched"`
}

// POST /v1/admin-users
func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.provisioner == nil {
		writeError(w, r, http.StatusServiceUnavailable, "provisioning disabled")
		return
	}
	var req createAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	res, err := a.provisioner.CreateAdmin(r.Context(), principal(r), provision.Request{
		TenantID:  req.TenantID,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Phone:     req.Phone,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	msg := "admin user created; temporary credential sent"
	if !res.CredentialDispatched {
		msg = "admin user created; temporary credential delivery pending"
	}
	admin := res.Admin
	writeSuccess(w, http.StatusCreated, msg, createAdminData{
		ID:                   admin.ID,
		UserID:               admin.UserID,
		Email:                admin.Email,
		Role:                 string(admin.Role),
		TenantID:             admin.TenantID,
		FirstName:            admin.FirstName,
		LastName:             admin.LastName,
		Phone:                admin.Phone,
		Status:               admin.Status,
		MustChangePassword:   res.MustChangePassword,
		CredentialDispatched: res.CredentialDispatched,
	})
}
