package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Probes
// =============================================================================

func okProbe(ctx context.Context) error { return nil }

func failProbe(msg string) CheckFunc {
	return func(ctx context.Context) error { return errors.New(msg) }
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	monitor := NewMonitor()
	monitor.Register("database", StatusCritical, okProbe)
	monitor.Register("redis", StatusDegraded, okProbe)

	report := monitor.CheckHealth(context.Background())

	if got := Aggregate(report); got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
	if report["database"].Status != StatusHealthy {
		t.Errorf("expected healthy database, got %s", report["database"].Status)
	}
}

func TestMonitor_DegradedMirror(t *testing.T) {
	monitor := NewMonitor()
	monitor.Register("database", StatusCritical, okProbe)
	monitor.Register("redis", StatusDegraded, failProbe("connection refused"))

	report := monitor.CheckHealth(context.Background())

	if got := Aggregate(report); got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}
	if report["redis"].Error != "connection refused" {
		t.Errorf("expected probe error to be reported, got %q", report["redis"].Error)
	}
}

func TestMonitor_CriticalDatabase(t *testing.T) {
	monitor := NewMonitor()
	monitor.Register("database", StatusCritical, failProbe("dial tcp: refused"))
	monitor.Register("broker", StatusDegraded, okProbe)

	report := monitor.CheckHealth(context.Background())

	if got := Aggregate(report); got != StatusCritical {
		t.Errorf("expected critical, got %s", got)
	}
}

func TestMonitor_RateLimitsChecks(t *testing.T) {
	calls := 0
	monitor := NewMonitor()
	monitor.Register("database", StatusCritical, func(ctx context.Context) error {
		calls++
		return nil
	})

	monitor.CheckHealth(context.Background())
	monitor.CheckHealth(context.Background())

	if calls != 1 {
		t.Errorf("expected cached report on second check, probe ran %d times", calls)
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	monitor := NewMonitor()
	monitor.Register("database", StatusCritical, failProbe("down"))
	server := NewServer(monitor, 0)

	rec := httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for critical system, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != string(StatusCritical) {
		t.Errorf("expected critical status in body, got %q", body["status"])
	}
}

func TestServer_DetailedEndpoint(t *testing.T) {
	monitor := NewMonitor()
	monitor.Register("database", StatusCritical, okProbe)
	monitor.Register("redis", StatusDegraded, failProbe("timeout"))
	server := NewServer(monitor, 0)

	rec := httptest.NewRecorder()
	server.handleDetailed(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded system, got %s", report.SystemStatus)
	}
	if len(report.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(report.Components))
	}
}
