package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/odyssey-crm/odyssey-crm/internal/jobs"
	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	mutationChanges *prometheus.HistogramVec
	shieldChanges   *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry, metrik HTTP, metrik izin dan metrik job.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_permission_mutations_total",
		Help: "Override mutations by subject, operation and result.",
	}, []string{"subject", "op", "result"})
	changes := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_permission_mutation_changes",
		Help:    "Number of override entries changed by a saved mutation.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	}, []string{"subject"})
	shields := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_shield_changes_total",
		Help: "Company shield lock changes by action and result.",
	}, []string{"action", "result"})
	registry.MustRegister(requests, duration, mutations, changes, shields)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		mutations:       mutations,
		mutationChanges: changes,
		shieldChanges:   shields,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Jobs returns the job collectors registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// RecordMutation implements permissions.MutationObserver.
func (m *Metrics) RecordMutation(subject string, op permissions.Op, changes int, err error) {
	if m == nil {
		return
	}
	result := resultOf(err)
	m.mutations.WithLabelValues(subject, string(op), result).Inc()
	if err == nil {
		m.mutationChanges.WithLabelValues(subject).Observe(float64(changes))
	}
}

// RecordShieldChange implements rbac.ShieldObserver.
func (m *Metrics) RecordShieldChange(locked bool, err error) {
	if m == nil {
		return
	}
	action := "unlock"
	if locked {
		action = "lock"
	}
	m.shieldChanges.WithLabelValues(action, resultOf(err)).Inc()
}

func resultOf(err error) string {
	var perr *permissions.PersistenceError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &perr):
		return "save_failed"
	case errors.Is(err, permissions.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, permissions.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
