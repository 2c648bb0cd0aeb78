package service

import (
	"time"

	"github.com/loykin/stagehand/internal/process"
)

// State is the lifecycle state of a supervised service.
type State string

const (
	StatePending       State = "pending"
	StateCheckingFiles State = "checking_files"
	StateStarting      State = "starting"
	StateWaitingReady  State = "waiting_ready"
	StateRunning       State = "running"
	StateCrashed       State = "crashed"
	StateRestarting    State = "restarting"
	StateFailed        State = "failed"
	StateStopping      State = "stopping"
	StateStopped       State = "stopped"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s State) Terminal() bool { return s == StateFailed || s == StateStopped }

// Runtime is the mutable per-service record. It is mutated only by the
// owning Controller; external readers get copies via Snapshot.
type Runtime struct {
	Name      string              `json:"name"`
	State     State               `json:"state"`
	PID       int                 `json:"pid,omitempty"`
	Restarts  int                 `json:"restarts"`
	Backoff   time.Duration       `json:"backoff,omitempty"`
	LastExit  *process.ExitStatus `json:"last_exit,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	StartedAt time.Time           `json:"started_at,omitzero"`
	ExitedAt  time.Time           `json:"exited_at,omitzero"`
}

// Event reports a single state transition to the supervisor.
type Event struct {
	Service   string        `json:"service"`
	From      State         `json:"from"`
	To        State         `json:"to"`
	At        time.Time     `json:"at"`
	PID       int           `json:"pid,omitempty"`
	Restarts  int           `json:"restarts"`
	Err       error         `json:"-"`
	ReadyWait time.Duration `json:"ready_wait,omitempty"`
}
