package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// buildBinary builds the devlog binary and returns its path
func buildBinary(t *testing.T) string {
	t.Helper()

	// Get project root (two directories up from test/integration)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	projectRoot := filepath.Join(wd, "..", "..")

	binary := filepath.Join(t.TempDir(), "devlog")

	cmd := exec.Command("go", "build", "-o", binary, "./cmd/devlog")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, output)
	}

	return binary
}

// setupProject creates a project directory with a devlog.yaml serving on port
func setupProject(t *testing.T, port int, extra string) string {
	t.Helper()

	dir := t.TempDir()
	config := fmt.Sprintf("api:\n  port: %d\n%s", port, extra)
	if err := os.WriteFile(filepath.Join(dir, "devlog.yaml"), []byte(config), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return dir
}

// startServe starts 'devlog serve' in dir
func startServe(t *testing.T, binary, dir string) *exec.Cmd {
	t.Helper()

	cmd := exec.Command(binary, "serve")
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start devlog: %v", err)
	}
	return cmd
}

// runCLI runs a client command in dir and returns its combined output
func runCLI(t *testing.T, binary, dir string, args ...string) (string, error) {
	t.Helper()

	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// waitForAPI waits for the API to be ready
func waitForAPI(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(addr + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("API did not become ready within %v", timeout)
}

// stateFile is the subset of the runtime state the tests read
type stateFile struct {
	PID       int    `json:"pid"`
	Port      int    `json:"port"`
	SessionID string `json:"session_id"`
}

// readState reads the runtime state of the server in dir
func readState(dir string) (stateFile, error) {
	var state stateFile
	data, err := os.ReadFile(filepath.Join(dir, ".devlog", "devlog.state"))
	if err != nil {
		return state, err
	}
	err = json.Unmarshal(data, &state)
	return state, err
}

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("timed out after %v: %s", timeout, msg)
}

// logsContain reports whether the console at addr has an entry containing text
func logsContain(addr, text string) bool {
	resp, err := http.Get(addr + "/api/v1/logs")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var result struct {
		Logs []struct {
			Message string `json:"message"`
		} `json:"logs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}
	for _, e := range result.Logs {
		if strings.Contains(e.Message, text) {
			return true
		}
	}
	return false
}

// killServe forcefully kills the devlog process
func killServe(cmd *exec.Cmd) {
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		cmd.Wait()
	}
}

// requireNoError fails the test if err is not nil
func requireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// skipShort skips the test if -short flag is provided
func skipShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
