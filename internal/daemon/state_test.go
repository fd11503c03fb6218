package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validState() *State {
	return &State{PID: 1, Port: 5566, Host: "127.0.0.1", ConfigFile: "devlog.yaml", SessionID: "abc"}
}

func TestState_Write_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *State)
		wantErr bool
	}{
		{"valid", func(s *State) {}, false},
		{"valid max port", func(s *State) { s.Port = 65535 }, false},
		{"zero port", func(s *State) { s.Port = 0 }, true},
		{"port too high", func(s *State) { s.Port = 65536 }, true},
		{"zero PID", func(s *State) { s.PID = 0 }, true},
		{"negative PID", func(s *State) { s.PID = -1 }, true},
		{"empty host", func(s *State) { s.Host = "" }, true},
		{"empty session", func(s *State) { s.SessionID = "" }, true},
		{"no config file", func(s *State) { s.ConfigFile = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := validState()
			tt.mutate(state)
			err := state.Write(t.TempDir())
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestState_WriteAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	original := &State{
		PID:         12345,
		Port:        5566,
		Host:        "127.0.0.1",
		StartedAt:   time.Now().Truncate(time.Second),
		ConfigFile:  "devlog.yaml",
		SessionID:   "0b7c1f5e",
		AuthEnabled: true,
	}
	if err := original.Write(tmpDir); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, StateDirName, StateFileName)); err != nil {
		t.Fatalf("state file was not created: %v", err)
	}
	if _, err := os.Stat(StatePath(tmpDir) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after write")
	}

	loaded, err := LoadState(tmpDir)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if loaded.PID != original.PID || loaded.Port != original.Port || loaded.Host != original.Host {
		t.Errorf("endpoint mismatch: got %+v, want %+v", loaded, original)
	}
	if loaded.SessionID != original.SessionID {
		t.Errorf("SessionID mismatch: got %s, want %s", loaded.SessionID, original.SessionID)
	}
	if !loaded.AuthEnabled {
		t.Error("AuthEnabled should round-trip")
	}
	if !loaded.StartedAt.Equal(original.StartedAt) {
		t.Errorf("StartedAt mismatch: got %v, want %v", loaded.StartedAt, original.StartedAt)
	}

	// Rewriting after a reload replaces the session id
	original.SessionID = "d41d8cd9"
	if err := original.Write(tmpDir); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	loaded, err = LoadState(tmpDir)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if loaded.SessionID != "d41d8cd9" {
		t.Errorf("expected rewritten session id, got %s", loaded.SessionID)
	}
}

func TestLoadState_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		_, err := LoadState(t.TempDir())
		if !errors.Is(err, ErrStateNotFound) {
			t.Errorf("expected ErrStateNotFound, got %v", err)
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := EnsureStateDir(tmpDir); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(StatePath(tmpDir), []byte("{not json"), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := LoadState(tmpDir)
		if err == nil || errors.Is(err, ErrStateNotFound) {
			t.Errorf("expected unmarshal error, got %v", err)
		}
	})
}

func TestState_Addr(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "http://127.0.0.1:5566"},
		{"localhost", "http://localhost:5566"},
		{"0.0.0.0", "http://127.0.0.1:5566"},
		{"::1", "http://[::1]:5566"},
		{"", "http://127.0.0.1:5566"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			s := &State{Host: tt.host, Port: 5566}
			if got := s.Addr(); got != tt.want {
				t.Errorf("Addr() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	dir := "/project"
	cases := map[string]string{
		StateDir(dir):  "/project/.devlog",
		StatePath(dir): "/project/.devlog/devlog.state",
		LockPath(dir):  "/project/.devlog/devlog.lock",
		TokenPath(dir): "/project/.devlog/token",
		LogPath(dir):   "/project/.devlog/devlog.log",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}

	cwd, _ := os.Getwd()
	if got := StateDir(""); got != filepath.Join(cwd, StateDirName) {
		t.Errorf("StateDir(\"\") = %s, want cwd based path", got)
	}
}

func TestToken(t *testing.T) {
	tmpDir := t.TempDir()

	token, err := LoadToken(tmpDir)
	if err != nil {
		t.Fatalf("LoadToken on missing file: %v", err)
	}
	if token != "" {
		t.Errorf("expected empty token, got %q", token)
	}

	if err := SaveToken(tmpDir, "s3cret"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	info, err := os.Stat(TokenPath(tmpDir))
	if err != nil {
		t.Fatalf("token file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected permissions 0600, got %o", info.Mode().Perm())
	}

	token, err = LoadToken(tmpDir)
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "s3cret" {
		t.Errorf("expected s3cret, got %q", token)
	}
}

func TestOpenLogFile(t *testing.T) {
	tmpDir := t.TempDir()

	for _, line := range []string{"first\n", "second\n"} {
		f, err := OpenLogFile(tmpDir)
		if err != nil {
			t.Fatalf("OpenLogFile failed: %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	data, err := os.ReadFile(LogPath(tmpDir))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("expected appended content, got %q", data)
	}
}

func TestRemoveState(t *testing.T) {
	tmpDir := t.TempDir()

	if err := RemoveState(tmpDir); err != nil {
		t.Errorf("expected no error for missing file, got %v", err)
	}

	if err := validState().Write(tmpDir); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := RemoveState(tmpDir); err != nil {
		t.Fatalf("RemoveState failed: %v", err)
	}
	if _, err := LoadState(tmpDir); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("expected ErrStateNotFound after removal, got %v", err)
	}
}

func TestEnsureStateDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := EnsureStateDir(tmpDir); err != nil {
		t.Fatalf("EnsureStateDir failed: %v", err)
	}

	info, err := os.Stat(StateDir(tmpDir))
	if err != nil {
		t.Fatalf("state dir was not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("state dir is not a directory")
	}
	if mode := info.Mode().Perm(); mode != 0700 {
		t.Errorf("expected permissions 0700, got %o", mode)
	}
}

func TestCleanupStateDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := validState().Write(tmpDir); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := SaveToken(tmpDir, "tok"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	if err := os.WriteFile(LockPath(tmpDir), []byte("12345\n"), 0600); err != nil {
		t.Fatalf("creating lock file failed: %v", err)
	}

	if err := CleanupStateDir(tmpDir); err != nil {
		t.Fatalf("CleanupStateDir failed: %v", err)
	}

	for _, path := range []string{StatePath(tmpDir), LockPath(tmpDir), TokenPath(tmpDir)} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", filepath.Base(path))
		}
	}
	if _, err := os.Stat(StateDir(tmpDir)); err != nil {
		t.Error(".devlog directory should remain")
	}
}

func TestCleanupStateDir_KeepsLog(t *testing.T) {
	tmpDir := t.TempDir()
	f, err := OpenLogFile(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	if err := CleanupStateDir(tmpDir); err != nil {
		t.Fatalf("CleanupStateDir failed: %v", err)
	}
	if _, err := os.Stat(LogPath(tmpDir)); err != nil {
		t.Error("log file should be kept")
	}
}
