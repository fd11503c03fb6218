package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// StateDirName is the name of the directory storing runtime state
	StateDirName = ".devlog"
	// StateFileName is the name of the state file
	StateFileName = "devlog.state"
	// LockFileName is the name of the lock file held while serving
	LockFileName = "devlog.lock"
	// TokenFileName is the name of the API token file
	TokenFileName = "token"
	// LogFileName receives server logs while the terminal is taken over
	LogFileName = "devlog.log"
)

// State describes a running devlog server so that clients started in the
// same directory can find it.
//
// The server writes state once at startup and again after each reload;
// clients only read it.
type State struct {
	PID         int       `json:"pid"`
	Port        int       `json:"port"`
	Host        string    `json:"host"`
	StartedAt   time.Time `json:"started_at"`
	ConfigFile  string    `json:"config_file"`
	SessionID   string    `json:"session_id"`
	AuthEnabled bool      `json:"auth_enabled"`
}

// Addr returns the base URL of the server's API
func (s *State) Addr() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// Write writes the state to the state file in the given directory
func (s *State) Write(dir string) error {
	if s.PID <= 0 {
		return fmt.Errorf("invalid PID: %d", s.PID)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if s.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	if err := EnsureStateDir(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial file
	statePath := StatePath(dir)
	tmp := statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, statePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming state file: %w", err)
	}

	return nil
}

// LoadState reads the state from the state file in the given directory
func LoadState(dir string) (*State, error) {
	data, err := os.ReadFile(StatePath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}

	return &state, nil
}

// RemoveState removes the state file from the given directory
func RemoveState(dir string) error {
	if err := os.Remove(StatePath(dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

// StateDir returns the path to the .devlog directory in the given directory.
// If dir is empty, uses the current working directory.
func StateDir(dir string) string {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return StateDirName
		}
	}
	return filepath.Join(dir, StateDirName)
}

// StatePath returns the full path to the state file
func StatePath(dir string) string {
	return filepath.Join(StateDir(dir), StateFileName)
}

// LockPath returns the full path to the lock file
func LockPath(dir string) string {
	return filepath.Join(StateDir(dir), LockFileName)
}

// TokenPath returns the full path to the API token file
func TokenPath(dir string) string {
	return filepath.Join(StateDir(dir), TokenFileName)
}

// LogPath returns the full path to the server log file
func LogPath(dir string) string {
	return filepath.Join(StateDir(dir), LogFileName)
}

// OpenLogFile opens the server log file for appending
func OpenLogFile(dir string) (*os.File, error) {
	if err := EnsureStateDir(dir); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(LogPath(dir), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// SaveToken writes the API token readable by the owner only
func SaveToken(dir, token string) error {
	if err := EnsureStateDir(dir); err != nil {
		return err
	}
	if err := os.WriteFile(TokenPath(dir), []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// LoadToken reads the API token. A missing file yields an empty token.
func LoadToken(dir string) (string, error) {
	data, err := os.ReadFile(TokenPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// EnsureStateDir creates the .devlog directory if it doesn't exist
func EnsureStateDir(dir string) error {
	if err := os.MkdirAll(StateDir(dir), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// CleanupStateDir removes the runtime files from the .devlog directory.
// The log file is kept.
func CleanupStateDir(dir string) error {
	for _, path := range []string{StatePath(dir), LockPath(dir), TokenPath(dir)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}
