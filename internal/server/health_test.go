package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthAllHealthy(t *testing.T) {
	s := NewHealthServer(&HealthConfig{Version: "1.0.0"})
	s.RegisterCheck("redis", RedisHealthChecker(func(ctx context.Context) error { return nil }))
	s.RegisterCheck("qdrant", QdrantHealthChecker("ecom_faq", func(ctx context.Context) bool { return true }))

	rec := httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != HealthStatusHealthy {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("version = %q", resp.Version)
	}
	if len(resp.Checks) != 2 {
		t.Errorf("checks = %d", len(resp.Checks))
	}
}

func TestHealthMissingCollectionUnhealthy(t *testing.T) {
	s := NewHealthServer(nil)
	s.RegisterCheck("qdrant", QdrantHealthChecker("ecom_faq", func(ctx context.Context) bool { return false }))

	rec := httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHealthRedisDownDegrades(t *testing.T) {
	// A dead conversation store degrades but does not fail the service.
	s := NewHealthServer(nil)
	s.RegisterCheck("redis", RedisHealthChecker(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, degraded should still be 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != HealthStatusDegraded {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}

func TestReadiness(t *testing.T) {
	s := NewHealthServer(nil)

	rec := httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready status = %d", rec.Code)
	}

	s.SetReady(true)
	rec = httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
}

func TestLiveness(t *testing.T) {
	s := NewHealthServer(nil)

	rec := httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live status = %d", rec.Code)
	}

	s.SetLive(false)
	rec = httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/livez", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-live status = %d", rec.Code)
	}
}

func TestLLMHealthCheckerNilProbe(t *testing.T) {
	check := LLMHealthChecker("openai", nil)(context.Background())
	if check.Status != HealthStatusHealthy {
		t.Errorf("status = %q", check.Status)
	}
}
