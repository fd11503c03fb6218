package supervisor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// SupervisorConfig holds configuration for the supervisor
type SupervisorConfig struct {
	ForwardCmd      string
	ForwardEnv      map[string]string
	CaptureCmd      string
	CaptureEnv      map[string]string
	ShutdownTimeout time.Duration
}

// DefaultSupervisorConfig returns default configuration
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ForwardCmd:      constants.DefaultForwardCmd,
		CaptureCmd:      constants.DefaultLogcatCmd,
		ShutdownTimeout: constants.DefaultShutdownTimeout,
	}
}

// Supervisor owns the collaborator processes of one session
type Supervisor struct {
	config    SupervisorConfig
	forwarder *CommandForwarder
	capture   *CommandCapture
}

// New creates a supervisor. A nil runner runs real commands.
func New(config SupervisorConfig, runner ProcessRunner) *Supervisor {
	if runner == nil {
		runner = NewExecRunner()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	return &Supervisor{
		config:    config,
		forwarder: NewCommandForwarder(config.ForwardCmd, config.ForwardEnv, runner),
		capture:   NewCommandCapture(config.CaptureCmd, config.CaptureEnv, runner),
	}
}

// Forwarder returns the port forward collaborator
func (s *Supervisor) Forwarder() *CommandForwarder {
	return s.forwarder
}

// Capture returns the device log capture collaborator
func (s *Supervisor) Capture() *CommandCapture {
	return s.capture
}

// Processes returns the state of every collaborator
func (s *Supervisor) Processes() []domain.ProcessInfo {
	forward := domain.ProcessInfo{
		Name:  "forward",
		State: domain.ProcessStateStopped,
		Cmd:   s.forwarder.cmd,
	}
	if s.forwarder.Running() {
		forward.State = domain.ProcessStateRunning
	}
	return []domain.ProcessInfo{forward, s.capture.Info()}
}

// Shutdown stops the capture and removes the port forward
func (s *Supervisor) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.capture.Stop(ctx); err != nil && !errors.Is(err, domain.ErrProcessNotRunning) {
		errs = append(errs, err)
	}
	if s.forwarder.Running() {
		if err := s.forwarder.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		log.Printf("supervisor: shutdown errors: %v", errs)
	}
	return errors.Join(errs...)
}
