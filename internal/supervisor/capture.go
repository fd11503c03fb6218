package supervisor

import (
	"context"
	"strings"
	"sync"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// tagPlaceholder in a capture command is replaced with the tag filter
const tagPlaceholder = "{tag}"

// CommandCapture runs a long-lived device log command such as
// "adb logcat -v threadtime" and streams its output lines
type CommandCapture struct {
	cmd    string
	env    map[string]string
	runner ProcessRunner

	mu      sync.Mutex
	process *ManagedProcess
}

// NewCommandCapture creates a capture running cmd
func NewCommandCapture(cmd string, env map[string]string, runner ProcessRunner) *CommandCapture {
	if cmd == "" {
		cmd = constants.DefaultLogcatCmd
	}
	return &CommandCapture{cmd: cmd, env: env, runner: runner}
}

// Command returns the command line that would run for tagFilter
func (c *CommandCapture) Command(tagFilter string) string {
	return strings.ReplaceAll(c.cmd, tagPlaceholder, tagFilter)
}

// Start launches the capture. Every stdout line is passed to onLine.
func (c *CommandCapture) Start(ctx context.Context, onLine func(string), tagFilter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.process != nil && c.process.State().IsRunning() {
		return domain.ErrProcessRunning
	}

	mp := NewManagedProcess(domain.ProcessConfig{
		Name: "logcat",
		Cmd:  c.Command(tagFilter),
		Env:  c.env,
	}, c.runner, onLine)
	if err := mp.Start(ctx); err != nil {
		return err
	}
	c.process = mp
	return nil
}

// Stop terminates the capture
func (c *CommandCapture) Stop(ctx context.Context) error {
	c.mu.Lock()
	mp := c.process
	c.mu.Unlock()

	if mp == nil {
		return domain.ErrProcessNotRunning
	}
	return mp.Stop(ctx)
}

// Done is closed once the capture process has exited
func (c *CommandCapture) Done() <-chan struct{} {
	c.mu.Lock()
	mp := c.process
	c.mu.Unlock()

	if mp == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return mp.Done()
}

// Info returns the capture process info
func (c *CommandCapture) Info() domain.ProcessInfo {
	c.mu.Lock()
	mp := c.process
	c.mu.Unlock()

	if mp == nil {
		return domain.ProcessInfo{Name: "logcat", State: domain.ProcessStateStopped, Cmd: c.cmd}
	}
	return mp.Info()
}
