package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Workflow metrics
	WorkflowStartsTotal      *prometheus.CounterVec
	WorkflowDecisionsTotal   *prometheus.CounterVec
	WorkflowCompletionsTotal *prometheus.CounterVec
	WorkflowActiveInstances  *prometheus.GaugeVec

	// SLA metrics
	SLAStepsAtRiskTotal   prometheus.Counter
	SLAStepsBreachedTotal prometheus.Counter
	SLAReassignmentsTotal prometheus.Counter

	// Permission cache metrics
	PermissionCacheHitsTotal   prometheus.Counter
	PermissionCacheMissesTotal prometheus.Counter

	// System metrics
	NotificationsCreatedTotal *prometheus.CounterVec
	TemplatesLoaded           prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Workflows
		WorkflowStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_workflow_starts_total",
			Help: "Total number of workflow instances started.",
		}, []string{"template_id"}),
		WorkflowDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_workflow_decisions_total",
			Help: "Total number of step decisions recorded.",
		}, []string{"template_id", "action"}),
		WorkflowCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_workflow_completions_total",
			Help: "Total number of workflow instances reaching a terminal status.",
		}, []string{"template_id", "final_status"}),
		WorkflowActiveInstances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docflow_workflow_active_instances",
			Help: "Number of active workflow instances.",
		}, []string{"template_id"}),

		// SLA
		SLAStepsAtRiskTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_sla_steps_at_risk_total",
			Help: "Total steps flagged as approaching their deadline.",
		}),
		SLAStepsBreachedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_sla_steps_breached_total",
			Help: "Total steps that passed their deadline.",
		}),
		SLAReassignmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_sla_reassignments_total",
			Help: "Total step reassignments, manual and automatic.",
		}),

		// Permission cache
		PermissionCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_permission_cache_hits_total",
			Help: "Total permission cache hits.",
		}),
		PermissionCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_permission_cache_misses_total",
			Help: "Total permission cache misses.",
		}),

		// System
		NotificationsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_notifications_created_total",
			Help: "Total notifications created.",
		}, []string{"type"}),
		TemplatesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docflow_templates_loaded",
			Help: "Number of workflow templates in the store.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Workflows
		m.WorkflowStartsTotal,
		m.WorkflowDecisionsTotal,
		m.WorkflowCompletionsTotal,
		m.WorkflowActiveInstances,
		// SLA
		m.SLAStepsAtRiskTotal,
		m.SLAStepsBreachedTotal,
		m.SLAReassignmentsTotal,
		// Permission cache
		m.PermissionCacheHitsTotal,
		m.PermissionCacheMissesTotal,
		// System
		m.NotificationsCreatedTotal,
		m.TemplatesLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordWorkflowStart records a workflow instance start.
func (m *Metrics) RecordWorkflowStart(templateID string) {
	m.WorkflowStartsTotal.WithLabelValues(templateID).Inc()
	m.WorkflowActiveInstances.WithLabelValues(templateID).Inc()
}

// RecordWorkflowDecision records a step decision.
func (m *Metrics) RecordWorkflowDecision(templateID, action string) {
	m.WorkflowDecisionsTotal.WithLabelValues(templateID, action).Inc()
}

// RecordWorkflowCompletion records an instance reaching a terminal status.
func (m *Metrics) RecordWorkflowCompletion(templateID, finalStatus string) {
	m.WorkflowCompletionsTotal.WithLabelValues(templateID, finalStatus).Inc()
	m.WorkflowActiveInstances.WithLabelValues(templateID).Dec()
}

// SLAStepAtRisk records a step crossing its warning threshold.
func (m *Metrics) SLAStepAtRisk() {
	m.SLAStepsAtRiskTotal.Inc()
}

// SLAStepBreached records a step passing its deadline.
func (m *Metrics) SLAStepBreached() {
	m.SLAStepsBreachedTotal.Inc()
}

// SLAStepReassigned records a step reassignment.
func (m *Metrics) SLAStepReassigned() {
	m.SLAReassignmentsTotal.Inc()
}

// PermissionCacheHit records a permission cache hit.
func (m *Metrics) PermissionCacheHit() {
	m.PermissionCacheHitsTotal.Inc()
}

// PermissionCacheMiss records a permission cache miss.
func (m *Metrics) PermissionCacheMiss() {
	m.PermissionCacheMissesTotal.Inc()
}

// NotificationCreated records a delivered notification.
func (m *Metrics) NotificationCreated(notifType string) {
	m.NotificationsCreatedTotal.WithLabelValues(notifType).Inc()
}

// SetTemplatesLoaded sets the number of templates in the store.
func (m *Metrics) SetTemplatesLoaded(count float64) {
	m.TemplatesLoaded.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
