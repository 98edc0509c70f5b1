package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	HandleHealth()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestHandleReady_allHealthy(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		Database:        CheckerFunc(func(context.Context) error { return nil }),
		Redis:           CheckerFunc(func(context.Context) error { return nil }),
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if len(resp.Checks) != 3 {
		t.Errorf("checks = %d, want 3", len(resp.Checks))
	}
}

func TestHandleReady_dependencyDown(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		Database:        CheckerFunc(func(context.Context) error { return errors.New("connection refused") }),
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp ReadinessResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Checks["database"].Error != "connection refused" {
		t.Errorf("database error = %q", resp.Checks["database"].Error)
	}
}

func TestHandleReady_noTemplates(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return false },
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
