package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/decision"
	"estatehub.org/internal/events"
	"estatehub.org/internal/obs"
	"estatehub.org/internal/provision"
	"estatehub.org/internal/store"
	"estatehub.org/internal/workflow"
)

const defaultMaxBody = 1 << 20

// ReadyProbe runs named dependency checks for /readyz.
type ReadyProbe struct {
	Checks map[string]func(context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	names := make([]string, 0, len(rp.Checks))
	for name := range rp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rp.Checks[name](ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Options wires the API to its services.
type Options struct {
	Version     string
	Ready       ReadyProbe
	Guard       *auth.Guard
	Decisions   *decision.Service
	Provisioner *provision.Service
	Events      *events.Broker
	CORSOrigins []string
	// TrustedProxies are the peers allowed to set X-Forwarded-For.
	TrustedProxies []netip.Prefix
	RateBurst      int
	RatePerSec     int
	MaxBody        int64
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	readyProbe  ReadyProbe
	version     string
	guard       *auth.Guard
	decisions   *decision.Service
	provisioner *provision.Service
	events      *events.Broker
	corsOrigins []string
	proxies     []netip.Prefix
	rateBurst   int
	ratePerSec  int
	maxBody     int64
}

func New(opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  opts.Ready,
		version:     opts.Version,
		guard:       opts.Guard,
		decisions:   opts.Decisions,
		provisioner: opts.Provisioner,
		events:      opts.Events,
		corsOrigins: opts.CORSOrigins,
		proxies:     opts.TrustedProxies,
		rateBurst:   opts.RateBurst,
		ratePerSec:  opts.RatePerSec,
		maxBody:     opts.MaxBody,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.maxBody <= 0 {
		a.maxBody = defaultMaxBody
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// decisions
	a.mux.HandleFunc("/v1/stickers/decision", a.handleStickerDecision)
	a.mux.HandleFunc("/v1/stickers/verify", a.handleStickerVerify)
	a.mux.HandleFunc("/v1/stickers/{id}", a.handleStickerGet)
	a.mux.HandleFunc("/v1/permits/decision", a.handlePermitDecision)
	a.mux.HandleFunc("/v1/permits/{id}", a.handlePermitGet)
	a.mux.HandleFunc("/v1/audit", a.handleAudit)

	// provisioning
	a.mux.HandleFunc("/v1/admin-users", a.handleAdminUsers)

	// decision feed
	a.mux.Handle("/v1/events", RequireRole(eventRoles...)(http.HandlerFunc(a.Stream)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(a.corsOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RealIP(a.proxies)(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "estatehub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "estatehub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, envelope{Success: false, Error: msg, RequestID: RequestIDFromContext(r.Context())})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, defaultMaxBody)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Lookups and rejected decisions are client errors (400) on decision endpoints.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		unauthorized(w, r, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, workflow.ErrValidation),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, provision.ErrDuplicateEmail),
		errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "storage unavailable")
	default:
		obs.Logger().Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// writeReadError is writeServiceError for resource lookups, where a missing
// record is reported as 404.
func writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeServiceError(w, r, err)
}
