package domain

import "errors"

// Domain errors
var (
	ErrInvalidEntry       = errors.New("invalid log entry")
	ErrEntryNotFound      = errors.New("log entry not found")
	ErrSourceNotFound     = errors.New("source not found")
	ErrSourceRunning      = errors.New("source already running")
	ErrSourceNotRunning   = errors.New("source not running")
	ErrProcessNotRunning  = errors.New("process not running")
	ErrProcessRunning     = errors.New("process already running")
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
	ErrSnapshotCorrupt    = errors.New("snapshot is corrupt")
	ErrPipelineClosed     = errors.New("ingest pipeline closed")
	ErrShutdownInProgress = errors.New("shutdown in progress")
	ErrConfigNotFound     = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Error codes for API responses
const (
	ErrCodeInvalidEntry       = "INVALID_ENTRY"
	ErrCodeEntryNotFound      = "ENTRY_NOT_FOUND"
	ErrCodeSourceNotFound     = "SOURCE_NOT_FOUND"
	ErrCodeSourceRunning      = "SOURCE_RUNNING"
	ErrCodeSourceNotRunning   = "SOURCE_NOT_RUNNING"
	ErrCodeShutdownInProgress = "SHUTDOWN_IN_PROGRESS"

	// API-only codes with no sentinel error behind them
	ErrCodeInvalidQuery          = "INVALID_QUERY"
	ErrCodeStreamingNotSupported = "STREAMING_NOT_SUPPORTED"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
)

// ErrorCode returns the API error code for a domain error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEntry):
		return ErrCodeInvalidEntry
	case errors.Is(err, ErrEntryNotFound):
		return ErrCodeEntryNotFound
	case errors.Is(err, ErrSourceNotFound):
		return ErrCodeSourceNotFound
	case errors.Is(err, ErrSourceRunning):
		return ErrCodeSourceRunning
	case errors.Is(err, ErrSourceNotRunning):
		return ErrCodeSourceNotRunning
	case errors.Is(err, ErrShutdownInProgress), errors.Is(err, ErrPipelineClosed):
		return ErrCodeShutdownInProgress
	default:
		return "INTERNAL_ERROR"
	}
}
