package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", status.Status)
	}
	if status.Service != "voice-studio" {
		t.Errorf("Expected service 'voice-studio', got '%s'", status.Service)
	}
}

func TestReadinessHandler_AllHealthy(t *testing.T) {
	ok := func(ctx context.Context) (bool, error) { return true, nil }

	rec := httptest.NewRecorder()
	ReadinessHandler(DependencyCheck{Name: "synthesis", Check: ok})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got '%s'", ct)
	}
}

func TestReadinessHandler_Unhealthy(t *testing.T) {
	ok := func(ctx context.Context) (bool, error) { return true, nil }
	broken := func(ctx context.Context) (bool, error) { return false, errors.New("circuit breaker is open") }

	rec := httptest.NewRecorder()
	handler := ReadinessHandler(
		DependencyCheck{Name: "assets", Check: ok},
		DependencyCheck{Name: "synthesis", Check: broken},
	)
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "not_ready" {
		t.Errorf("Expected status 'not_ready', got '%s'", status.Status)
	}
	dep := status.Dependencies["synthesis"]
	if dep.Status != "unhealthy" || dep.Message != "circuit breaker is open" {
		t.Errorf("Unexpected synthesis dependency status: %+v", dep)
	}
	if status.Dependencies["assets"].Status != "healthy" {
		t.Errorf("Expected assets to be healthy, got %+v", status.Dependencies["assets"])
	}
}

func TestHealthReporter(t *testing.T) {
	h := NewHealthReporter()
	ctx := context.Background()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := h.Server().Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) failed: %v", service, err)
		}
		return resp.Status
	}

	if check(SynthesisServiceName) != healthpb.HealthCheckResponse_SERVING {
		t.Error("Expected synthesis to start SERVING")
	}

	h.SetSynthesisAvailable(false)
	if check(SynthesisServiceName) != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Error("Expected synthesis NOT_SERVING after breaker opened")
	}
	if check("") != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Error("Expected overall status NOT_SERVING after breaker opened")
	}

	h.SetSynthesisAvailable(true)
	if check("") != healthpb.HealthCheckResponse_SERVING {
		t.Error("Expected overall status SERVING after recovery")
	}
}
