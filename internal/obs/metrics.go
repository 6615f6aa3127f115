package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Transitions counts decision outcomes by entity, action and result.
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoa_transitions_total",
			Help: "Lifecycle transitions attempted, by entity, action and result.",
		},
		[]string{"entity", "action", "result"},
	)

	// AuditFailures counts audit appends that could not be persisted.
	AuditFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hoa_audit_failures_total",
		Help: "Audit entries that failed to persist.",
	})

	// ProvisionRollbacks counts compensating deletes of identity accounts.
	ProvisionRollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoa_provision_rollbacks_total",
			Help: "Compensating identity deletions after failed admin provisioning.",
		},
		[]string{"result"},
	)

	// CredentialsDispatched counts temporary credential deliveries handed to the outbox.
	CredentialsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoa_credentials_dispatched_total",
			Help: "Temporary credentials handed to the delivery channel.",
		},
		[]string{"result"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hoa_ready",
		Help: "1 when the last readiness probe succeeded.",
	})

	initOnce sync.Once
)

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			Transitions, AuditFailures, ProvisionRollbacks, CredentialsDispatched,
			readyGauge,
		)
	})
}

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument records in-flight, count and latency per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var fixedResourceActions = map[string]bool{
	"decision": true,
	"verify":   true,
}

// CanonicalPath collapses resource identifiers so metric label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 3 && parts[0] == "v1" {
		switch parts[1] {
		case "stickers", "permits", "admin-users":
			if !fixedResourceActions[parts[2]] {
				return "/v1/" + parts[1] + "/:id"
			}
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
