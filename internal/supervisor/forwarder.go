package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// CommandForwarder sets up a device port forward with a one-shot command
// such as "adb forward tcp:L tcp:R"
type CommandForwarder struct {
	cmd    string
	env    map[string]string
	runner ProcessRunner

	mu      sync.Mutex
	running bool
	local   int
}

// NewCommandForwarder creates a forwarder running cmd, "adb" by default
func NewCommandForwarder(cmd string, env map[string]string, runner ProcessRunner) *CommandForwarder {
	if cmd == "" {
		cmd = constants.DefaultForwardCmd
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	return &CommandForwarder{cmd: cmd, env: env, runner: runner}
}

// Start creates the forward from localPort to the device's remotePort
func (f *CommandForwarder) Start(ctx context.Context, localPort, remotePort int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	args := fmt.Sprintf("forward tcp:%d tcp:%d", localPort, remotePort)
	if err := f.run(ctx, "forward", args); err != nil {
		return err
	}
	f.running = true
	f.local = localPort
	return nil
}

// Stop removes the forward
func (f *CommandForwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return domain.ErrProcessNotRunning
	}
	f.running = false
	return f.run(ctx, "forward-remove", fmt.Sprintf("forward --remove tcp:%d", f.local))
}

// Running reports whether a forward is in place
func (f *CommandForwarder) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// run executes one command to completion. Anything written to stdout is
// kept for the error message.
func (f *CommandForwarder) run(ctx context.Context, name, args string) error {
	var out []string
	var outMu sync.Mutex
	mp := NewManagedProcess(domain.ProcessConfig{
		Name: name,
		Cmd:  f.cmd + " " + args,
		Env:  f.env,
	}, f.runner, func(line string) {
		outMu.Lock()
		out = append(out, line)
		outMu.Unlock()
	})

	if err := mp.Start(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	code, err := mp.Wait(ctx)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer cancel()
		_ = mp.Stop(stopCtx)
		return fmt.Errorf("%s: %w", name, err)
	}
	if code != 0 {
		outMu.Lock()
		defer outMu.Unlock()
		msg := strings.TrimSpace(strings.Join(out, " "))
		if msg == "" {
			return fmt.Errorf("%s: %s exited with code %d", name, f.cmd, code)
		}
		return fmt.Errorf("%s: %s exited with code %d: %s", name, f.cmd, code, msg)
	}
	return nil
}
