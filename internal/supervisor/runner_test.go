package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charliek/devlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and returns canned processes
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	output   string
	waitErr  error
	startErr error
}

func (r *fakeRunner) Start(_ context.Context, config domain.ProcessConfig) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, config.Cmd)
	if r.startErr != nil {
		return nil, r.startErr
	}
	return &fakeProcess{stdout: strings.NewReader(r.output), waitErr: r.waitErr}, nil
}

func (r *fakeRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

type fakeProcess struct {
	stdout  io.Reader
	waitErr error
}

func (p *fakeProcess) PID() int                 { return 4242 }
func (p *fakeProcess) Wait() error              { return p.waitErr }
func (p *fakeProcess) Signal(_ os.Signal) error { return nil }
func (p *fakeProcess) Stdout() io.Reader        { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader        { return strings.NewReader("") }

func TestExecRunner_Start(t *testing.T) {
	runner := NewExecRunner()

	t.Run("starts simple command", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), domain.ProcessConfig{
			Name: "test",
			Cmd:  "echo hello",
		})

		require.NoError(t, err)
		assert.Greater(t, proc.PID(), 0)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Contains(t, string(output), "hello")

		assert.NoError(t, proc.Wait())
	})

	t.Run("passes environment", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), domain.ProcessConfig{
			Name: "test",
			Cmd:  "echo $ANDROID_SERIAL",
			Env:  map[string]string{"ANDROID_SERIAL": "emulator-5554"},
		})

		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Contains(t, string(output), "emulator-5554")

		proc.Wait()
	})

	t.Run("captures stderr", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), domain.ProcessConfig{
			Name: "test",
			Cmd:  "echo error >&2",
		})

		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stderr())
		require.NoError(t, err)
		assert.Contains(t, string(output), "error")

		proc.Wait()
	})

	t.Run("can be signaled", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), domain.ProcessConfig{
			Name: "test",
			Cmd:  "sleep 30",
		})

		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)

		assert.NoError(t, proc.Signal(sigterm))

		done := make(chan error, 1)
		go func() {
			done <- proc.Wait()
		}()

		select {
		case err := <-done:
			assert.Equal(t, -15, exitCode(err))
		case <-time.After(2 * time.Second):
			t.Fatal("process did not exit after signal")
		}
	})

	t.Run("command exits with error code", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), domain.ProcessConfig{
			Name: "test",
			Cmd:  "exit 42",
		})

		require.NoError(t, err)

		err = proc.Wait()
		assert.Error(t, err)
		assert.Equal(t, 42, exitCode(err))
	})

	t.Run("context cancellation does not kill process", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		proc, err := runner.Start(ctx, domain.ProcessConfig{
			Name: "test",
			Cmd:  "sleep 30",
		})

		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)

		cancel()

		done := make(chan error, 1)
		go func() {
			done <- proc.Wait()
		}()

		select {
		case <-done:
			t.Fatal("process should not be killed by context cancellation alone")
		case <-time.After(200 * time.Millisecond):
		}

		proc.Signal(sigterm)
		<-done
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("not an exit error")))
}
