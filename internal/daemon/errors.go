package daemon

import "errors"

var (
	// ErrStateNotFound is returned when no state file exists
	ErrStateNotFound = errors.New("state file not found")
	// ErrAlreadyRunning is returned when a devlog server already owns the directory
	ErrAlreadyRunning = errors.New("devlog is already running")
	// ErrNotRunning is returned when no devlog server is running
	ErrNotRunning = errors.New("devlog is not running")
	// ErrLocked is returned when the lock file is held by another process
	ErrLocked = errors.New("lock file is held by another process")
)
