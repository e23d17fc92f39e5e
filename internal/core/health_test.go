package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func performHealthCheck(t *testing.T, s *Server) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	return w, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	s := testServer(t)

	w, resp := performHealthCheck(t, s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
}

func TestHandleHealth_AllProbesHealthy(t *testing.T) {
	s := testServer(t)
	s.HealthProbes = []HealthProbe{
		NewProbe("database", func(ctx context.Context) error { return nil }),
	}

	w, resp := performHealthCheck(t, s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp.Components["database"].Status != "healthy" {
		t.Errorf("expected healthy database component, got %+v", resp.Components)
	}
}

func TestHandleHealth_FailingProbe(t *testing.T) {
	s := testServer(t)
	s.HealthProbes = []HealthProbe{
		NewProbe("database", func(ctx context.Context) error { return errors.New("connection refused") }),
	}

	w, resp := performHealthCheck(t, s)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %s", resp.Status)
	}
	if resp.Components["database"].Message != "connection refused" {
		t.Errorf("expected probe error message, got %+v", resp.Components["database"])
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	s := testServer(t)
	s.HealthProbes = []HealthProbe{
		NewProbe("flaky", func(ctx context.Context) error { panic("probe bug") }),
	}

	w, resp := performHealthCheck(t, s)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if resp.Components["flaky"].Status != "unhealthy" {
		t.Errorf("expected unhealthy flaky component, got %+v", resp.Components)
	}
}
