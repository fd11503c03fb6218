package api

import (
	"time"

	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/ingest"
	"github.com/charliek/devlog/internal/logs"
	"github.com/charliek/devlog/internal/session"
)

// StatusResponse represents the response for GET /status
type StatusResponse struct {
	Status        string               `json:"status"`
	SessionID     string               `json:"session_id"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	ConfigFile    string               `json:"config_file,omitempty"`
	APIVersion    string               `json:"api_version"`
	Compiling     bool                 `json:"compiling"`
	Entries       int                  `json:"entries"`
	Counts        domain.Counts        `json:"counts"`
	DisplayCounts domain.Counts        `json:"display_counts"`
	Pipeline      ingest.PipelineStats `json:"pipeline"`
	Filter        logs.FilterStats     `json:"filter"`
}

// LogsResponse represents the response for GET /logs
type LogsResponse struct {
	Logs          []LogEntryResponse `json:"logs"`
	FilteredCount int                `json:"filtered_count"`
	TotalCount    int                `json:"total_count"`
	Counts        domain.Counts      `json:"counts"`
	DisplayCounts domain.Counts      `json:"display_counts"`
}

// LogEntryResponse represents a single log entry
type LogEntryResponse struct {
	Seq          uint64          `json:"seq"`
	Timestamp    string          `json:"timestamp"`
	Severity     string          `json:"severity"`
	Message      string          `json:"message"`
	ExtraMessage string          `json:"extra_message,omitempty"`
	Frames       []FrameResponse `json:"frames,omitempty"`
	Origin       string          `json:"origin"`
	Transient    bool            `json:"transient,omitempty"`
	Selected     bool            `json:"selected,omitempty"`
	Count        int             `json:"count,omitempty"`
}

// FrameResponse represents one stack frame
type FrameResponse struct {
	Raw           string `json:"raw"`
	Method        string `json:"method,omitempty"`
	File          string `json:"file,omitempty"`
	Line          int    `json:"line,omitempty"`
	Available     bool   `json:"available,omitempty"`
	LocalPath     string `json:"local_path,omitempty"`
	SourceExcerpt string `json:"source_excerpt,omitempty"`
}

// LogDetailResponse represents the response for GET /logs/{seq}
type LogDetailResponse struct {
	LogEntryResponse
	Fingerprint string `json:"fingerprint"`
}

// IngestRequest is the body of POST /logs
type IngestRequest struct {
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace,omitempty"`
	Severity   string `json:"severity,omitempty"`
}

// SourceListResponse represents the response for GET /sources
type SourceListResponse struct {
	Sources   []SourceResponse  `json:"sources"`
	Processes []ProcessResponse `json:"processes"`
}

// SourceResponse represents a single ingestor
type SourceResponse struct {
	Name          string `json:"name"`
	Origin        string `json:"origin"`
	State         string `json:"state"`
	Entries       int64  `json:"entries"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LastError     string `json:"last_error,omitempty"`
}

// ProcessResponse represents a collaborator process
type ProcessResponse struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	PID           int    `json:"pid"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ExitCode      int    `json:"exit_code"`
	Cmd           string `json:"cmd,omitempty"`
}

// ClearResponse represents the response for POST /logs/clear
type ClearResponse struct {
	Retained int `json:"retained"`
}

// CompileResponse represents the response for POST /compile/end
type CompileResponse struct {
	Compiling bool `json:"compiling"`
	Reset     int  `json:"reset"`
}

// HealthResponse is served without auth so tools can probe a console
type HealthResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// SuccessResponse represents a simple success response
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToLogEntryResponse converts domain.LogEntry to LogEntryResponse
func ToLogEntryResponse(entry domain.LogEntry) LogEntryResponse {
	resp := LogEntryResponse{
		Seq:          entry.Seq,
		Timestamp:    entry.Timestamp.Format(time.RFC3339Nano),
		Severity:     string(entry.Severity),
		Message:      entry.Message,
		ExtraMessage: entry.ExtraMessage,
		Origin:       string(entry.Origin),
		Transient:    entry.Transient,
		Selected:     entry.Selected,
	}
	for _, f := range entry.Frames {
		resp.Frames = append(resp.Frames, FrameResponse{
			Raw:           f.Raw,
			Method:        f.Method,
			File:          f.FilePath,
			Line:          f.Line,
			SourceExcerpt: f.SourceExcerpt,
		})
	}
	return resp
}

// ToLogDetailResponse converts a session entry detail to LogDetailResponse
func ToLogDetailResponse(detail session.EntryDetail) LogDetailResponse {
	resp := LogDetailResponse{
		LogEntryResponse: ToLogEntryResponse(detail.Entry),
		Fingerprint:      detail.Entry.Fingerprint(),
	}
	resp.Count = detail.Count
	for i, f := range detail.Frames {
		resp.Frames[i].Available = f.Location.Available
		resp.Frames[i].LocalPath = f.Location.Path
	}
	return resp
}

// ToSourceResponse converts domain.SourceStatus to SourceResponse
func ToSourceResponse(status domain.SourceStatus) SourceResponse {
	resp := SourceResponse{
		Name:      status.Name,
		Origin:    string(status.Origin),
		State:     string(status.State),
		Entries:   status.Entries,
		LastError: status.LastError,
	}
	if status.State == domain.SourceStateRunning && !status.StartedAt.IsZero() {
		resp.UptimeSeconds = int64(time.Since(status.StartedAt).Seconds())
	}
	return resp
}

// ToProcessResponse converts domain.ProcessInfo to ProcessResponse
func ToProcessResponse(info domain.ProcessInfo) ProcessResponse {
	return ProcessResponse{
		Name:          info.Name,
		Status:        string(info.State),
		PID:           info.PID,
		UptimeSeconds: info.UptimeSeconds(),
		ExitCode:      info.ExitCode,
		Cmd:           info.Cmd,
	}
}
