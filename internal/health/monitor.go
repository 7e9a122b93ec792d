package health

import (
	"context"
	"sync"
	"time"
)

// CheckFunc probes one dependency. A nil return means the dependency is
// reachable and serving.
type CheckFunc func(ctx context.Context) error

type check struct {
	name      string
	probe     CheckFunc
	onFailure SystemStatus
}

// Monitor aggregates health status from registered dependencies.
type Monitor struct {
	checks     []check
	lastCheck  time.Time
	lastReport map[string]ComponentHealth
	mu         sync.RWMutex
}

// NewMonitor creates a new health monitor with no registered checks.
func NewMonitor() *Monitor {
	return &Monitor{
		lastReport: make(map[string]ComponentHealth),
	}
}

// Register adds a dependency probe. onFailure is the status the
// component reports when the probe errors, which lets best-effort
// dependencies (the device mirror, say) degrade the system without
// taking it critical.
func (m *Monitor) Register(name string, onFailure SystemStatus, probe CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check{name: name, probe: probe, onFailure: onFailure})
}

// CheckHealth probes all registered dependencies.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ComponentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (e.g. max once per 10s) to avoid hammering dependencies
	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport) > 0 {
		return m.lastReport
	}

	report := make(map[string]ComponentHealth)

	for _, c := range m.checks {
		component := ComponentHealth{
			Component: c.name,
			Status:    StatusHealthy,
		}
		if err := c.probe(ctx); err != nil {
			component.Status = c.onFailure
			component.Error = err.Error()
		}
		report[c.name] = component
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
