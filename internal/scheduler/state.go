package scheduler

import "time"

// Status is the lifecycle state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// RunState is the persisted daemon record. It is the source of truth for
// status queries and for detecting a daemon that died without cleaning up.
type RunState struct {
	Status      Status    `json:"status"`
	PID         int       `json:"pid,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	HeartbeatAt time.Time `json:"heartbeat_at,omitempty"`
}

// Alive reports whether the recorded PID still belongs to a live process.
func (s RunState) Alive() bool {
	if s.Status == StatusStopped || s.Status == "" {
		return false
	}
	return IsProcessRunning(s.PID)
}
