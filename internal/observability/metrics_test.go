package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("GET", "/test", 200, time.Millisecond, 0, 100)
	m.RecordWorkflowStart("tpl-1")
	m.RecordWorkflowDecision("tpl-1", "approve")
	m.RecordWorkflowCompletion("tpl-1", "completed")
	m.SLAStepAtRisk()
	m.SLAStepBreached()
	m.SLAStepReassigned()
	m.PermissionCacheHit()
	m.PermissionCacheMiss()
	m.NotificationCreated("step_assigned")
	m.SetTemplatesLoaded(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"docflow_http_requests_total",
		"docflow_http_request_duration_seconds",
		"docflow_http_request_size_bytes",
		"docflow_http_response_size_bytes",
		"docflow_workflow_starts_total",
		"docflow_workflow_decisions_total",
		"docflow_workflow_completions_total",
		"docflow_workflow_active_instances",
		"docflow_sla_steps_at_risk_total",
		"docflow_sla_steps_breached_total",
		"docflow_sla_reassignments_total",
		"docflow_permission_cache_hits_total",
		"docflow_permission_cache_misses_total",
		"docflow_notifications_created_total",
		"docflow_templates_loaded",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/workflows/{instanceId}", 200, 50*time.Millisecond, 0, 1024)
	m.RecordHTTPRequest("GET", "/workflows/{instanceId}", 200, 100*time.Millisecond, 0, 2048)
	m.RecordHTTPRequest("POST", "/workflows", 500, 200*time.Millisecond, 512, 256)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/workflows/{instanceId}", "200"))
	if val != 2 {
		t.Errorf("GET requests = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/workflows", "500"))
	if val != 1 {
		t.Errorf("POST requests = %v, want 1", val)
	}
}

func TestRecordWorkflowLifecycle(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordWorkflowStart("invoice-approval")
	active := testutil.ToFloat64(m.WorkflowActiveInstances.WithLabelValues("invoice-approval"))
	if active != 1 {
		t.Errorf("active instances = %v, want 1", active)
	}

	m.RecordWorkflowDecision("invoice-approval", "approve")
	decisions := testutil.ToFloat64(m.WorkflowDecisionsTotal.WithLabelValues("invoice-approval", "approve"))
	if decisions != 1 {
		t.Errorf("decisions = %v, want 1", decisions)
	}

	m.RecordWorkflowCompletion("invoice-approval", "completed")
	active = testutil.ToFloat64(m.WorkflowActiveInstances.WithLabelValues("invoice-approval"))
	if active != 0 {
		t.Errorf("active instances after completion = %v, want 0", active)
	}

	completions := testutil.ToFloat64(m.WorkflowCompletionsTotal.WithLabelValues("invoice-approval", "completed"))
	if completions != 1 {
		t.Errorf("completions = %v, want 1", completions)
	}
}

func TestSLACounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SLAStepAtRisk()
	m.SLAStepAtRisk()
	m.SLAStepBreached()
	m.SLAStepReassigned()

	if v := testutil.ToFloat64(m.SLAStepsAtRiskTotal); v != 2 {
		t.Errorf("at risk = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.SLAStepsBreachedTotal); v != 1 {
		t.Errorf("breached = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.SLAReassignmentsTotal); v != 1 {
		t.Errorf("reassignments = %v, want 1", v)
	}
}

func TestPermissionCacheCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.PermissionCacheHit()
	m.PermissionCacheHit()
	m.PermissionCacheMiss()

	hits := testutil.ToFloat64(m.PermissionCacheHitsTotal)
	if hits != 2 {
		t.Errorf("cache hits = %v, want 2", hits)
	}
	misses := testutil.ToFloat64(m.PermissionCacheMissesTotal)
	if misses != 1 {
		t.Errorf("cache misses = %v, want 1", misses)
	}
}

func TestSetTemplatesLoaded(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetTemplatesLoaded(5)
	if v := testutil.ToFloat64(m.TemplatesLoaded); v != 5 {
		t.Errorf("templates loaded = %v, want 5", v)
	}

	m.SetTemplatesLoaded(10)
	if v := testutil.ToFloat64(m.TemplatesLoaded); v != 10 {
		t.Errorf("templates loaded = %v, want 10", v)
	}
}

func TestMetricsMiddleware_recordsRequestMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Build a chi router so route patterns are captured.
	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/workflows/{instanceId}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/workflows/{instanceId}", "200"))
	if val != 1 {
		t.Errorf("middleware recorded %v requests, want 1", val)
	}
}

func TestMetricsMiddleware_recordsErrorStatus(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/boom", "500"))
	if val != 1 {
		t.Errorf("middleware recorded %v error requests, want 1", val)
	}
}
