package domain

import "time"

// SourceState is the lifecycle state shared by the streaming ingestors.
//
//	idle -> running -> stopped
//
// stopped is reachable from any state, and a stopped source may be
// started again.
type SourceState string

const (
	SourceStateIdle    SourceState = "idle"
	SourceStateRunning SourceState = "running"
	SourceStateStopped SourceState = "stopped"
)

// String returns the string representation of SourceState
func (s SourceState) String() string {
	return string(s)
}

// SourceStatus is a point-in-time view of one ingestor
type SourceStatus struct {
	Name      string      `json:"name"`
	Origin    Origin      `json:"origin"`
	State     SourceState `json:"state"`
	Entries   int64       `json:"entries"`
	StartedAt time.Time   `json:"started_at,omitempty"`
	StoppedAt time.Time   `json:"stopped_at,omitempty"`
	LastError string      `json:"last_error,omitempty"`
}
