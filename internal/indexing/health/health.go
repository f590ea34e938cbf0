// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth contains the health of a single dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// QueueHealth contains the state of the index job queue.
type QueueHealth struct {
	Status     SystemStatus `json:"status"`
	Pending    int          `json:"pending"`
	Processing int          `json:"processing"`
	Failed     int          `json:"failed"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
	Queue        QueueHealth                `json:"queue"`
}
