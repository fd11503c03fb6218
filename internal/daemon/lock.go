package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Lock is an exclusive flock on the lock file of a state directory. The
// holder's PID is written into the file.
//
// Lock is not safe for concurrent use.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the lock for dir. It returns ErrAlreadyRunning if
// another process holds it.
func AcquireLock(dir string) (*Lock, error) {
	if err := EnsureStateDir(dir); err != nil {
		return nil, err
	}

	path := LockPath(dir)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %w", ErrAlreadyRunning, ErrLocked)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		unlockAndClose(f)
		return nil, fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		unlockAndClose(f)
		return nil, fmt.Errorf("writing PID: %w", err)
	}
	if err := f.Sync(); err != nil {
		unlockAndClose(f)
		return nil, fmt.Errorf("syncing lock file: %w", err)
	}

	return &Lock{path: path, file: f}, nil
}

// Path returns the lock file path
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	unlockAndClose(l.file)
	l.file = nil

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

func unlockAndClose(f *os.File) {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}

// IsLocked reports whether another process holds the lock file at path.
// A missing file is not locked.
func IsLocked(path string) bool {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err != nil {
		return true
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false
}

// ReadPID reads the PID written into a lock file
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing PID: %w", err)
	}
	return pid, nil
}

// ProcessExists checks if a process with the given PID exists
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes without delivering; EPERM still means it exists
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// IsRunning reports whether a devlog server serves dir. This is a
// best-effort check for clients; the lock is authoritative.
func IsRunning(dir string) bool {
	if IsLocked(LockPath(dir)) {
		return true
	}
	state, err := LoadState(dir)
	if err != nil {
		return false
	}
	return ProcessExists(state.PID)
}

// GetRunningState returns the state of the server serving dir, or
// ErrNotRunning
func GetRunningState(dir string) (*State, error) {
	if !IsRunning(dir) {
		return nil, ErrNotRunning
	}
	return LoadState(dir)
}

// CleanupStaleFiles removes runtime files left behind by a server that
// exited without cleaning up
func CleanupStaleFiles(dir string) error {
	if IsLocked(LockPath(dir)) {
		return ErrAlreadyRunning
	}

	state, err := LoadState(dir)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	if ProcessExists(state.PID) {
		return ErrAlreadyRunning
	}

	return CleanupStateDir(dir)
}
