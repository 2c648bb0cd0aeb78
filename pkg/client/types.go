package client

import "time"

// ServiceStatus mirrors the server's per-service runtime JSON.
type ServiceStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Restarts  int       `json:"restarts"`
	LastError string    `json:"last_error,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	ExitedAt  time.Time `json:"exited_at,omitzero"`
}

// Status mirrors the server's aggregate snapshot JSON.
type Status struct {
	Phase    string          `json:"phase"`
	Degraded bool            `json:"degraded"`
	Services []ServiceStatus `json:"services"`
}
