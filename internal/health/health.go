// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth contains the health state of one dependency.
type ComponentHealth struct {
	Component string       `json:"component"`
	Status    SystemStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
}

// Aggregate reduces component states to a single status (worst case wins).
func Aggregate(components map[string]ComponentHealth) SystemStatus {
	status := StatusHealthy
	for _, c := range components {
		if c.Status == StatusCritical {
			return StatusCritical
		}
		if c.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
