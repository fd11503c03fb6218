package supervisor

import (
	"bufio"
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// outputDrainTimeout is the maximum time to wait for output readers to finish
// after a process exits. This allows grandchild processes to complete their
// final writes before we stop reading.
const outputDrainTimeout = 5 * time.Second

// LineFunc receives one line of process output
type LineFunc func(line string)

// ManagedProcess handles the lifecycle of a single collaborator process.
// Stdout lines go to the output callback; stderr lines are logged.
type ManagedProcess struct {
	mu sync.RWMutex

	config domain.ProcessConfig
	runner ProcessRunner
	output LineFunc

	state     domain.ProcessState
	process   Process
	startedAt time.Time
	exitCode  int

	// Context for the current process instance
	cancel context.CancelFunc

	// Channel to signal when process exits
	done     chan struct{}
	doneOnce sync.Once

	// outputWg tracks completion of output reader goroutines
	outputWg sync.WaitGroup
}

// NewManagedProcess creates a new managed process. output may be nil.
func NewManagedProcess(config domain.ProcessConfig, runner ProcessRunner, output LineFunc) *ManagedProcess {
	if runner == nil {
		runner = NewExecRunner()
	}
	done := make(chan struct{})
	close(done)
	return &ManagedProcess{
		config: config,
		runner: runner,
		output: output,
		state:  domain.ProcessStateStopped,
		done:   done,
	}
}

// Name returns the process name
func (p *ManagedProcess) Name() string {
	return p.config.Name
}

// Info returns the current process info
func (p *ManagedProcess) Info() domain.ProcessInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	info := domain.ProcessInfo{
		Name:      p.config.Name,
		State:     p.state,
		StartedAt: p.startedAt,
		ExitCode:  p.exitCode,
		Cmd:       p.config.Cmd,
	}
	if p.process != nil {
		info.PID = p.process.PID()
	}
	return info
}

// State returns the current state
func (p *ManagedProcess) State() domain.ProcessState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Done returns a channel closed when the current process instance exits
func (p *ManagedProcess) Done() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.done
}

// Start starts the process
func (p *ManagedProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.ProcessStateRunning || p.state == domain.ProcessStateStarting {
		return domain.ErrProcessRunning
	}

	p.state = domain.ProcessStateStarting

	processCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.doneOnce = sync.Once{}

	proc, err := p.runner.Start(processCtx, p.config)
	if err != nil {
		p.state = domain.ProcessStateCrashed
		p.cancel = nil
		cancel()
		p.closeDone()
		return err
	}

	p.process = proc
	p.startedAt = time.Now()
	p.exitCode = 0
	p.state = domain.ProcessStateRunning

	p.outputWg.Add(2)
	go func() {
		defer p.outputWg.Done()
		p.readOutput(proc.Stdout(), p.output)
	}()
	go func() {
		defer p.outputWg.Done()
		p.readOutput(proc.Stderr(), func(line string) {
			log.Printf("[%s] %s", p.config.Name, line)
		})
	}()

	go p.monitor(proc)

	return nil
}

// Stop sends SIGTERM and waits for the process to exit, escalating to
// SIGKILL when ctx expires
func (p *ManagedProcess) Stop(ctx context.Context) error {
	p.mu.Lock()

	if p.state == domain.ProcessStateStopped || p.state == domain.ProcessStateCrashed {
		p.mu.Unlock()
		return domain.ErrProcessNotRunning
	}

	if p.state == domain.ProcessStateStopping {
		done := p.done
		p.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.state = domain.ProcessStateStopping
	proc := p.process
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if proc == nil {
		return nil
	}

	if err := proc.Signal(sigterm); err != nil {
		log.Printf("[%s] SIGTERM failed (process may have already exited): %v", p.config.Name, err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[%s] sending SIGKILL (graceful shutdown timed out)", p.config.Name)
		if err := proc.Signal(sigkill); err != nil {
			log.Printf("[%s] SIGKILL failed: %v", p.config.Name, err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	if cancel != nil {
		cancel()
	}

	return nil
}

// Wait blocks until the current process instance exits and returns its
// exit code
func (p *ManagedProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.Done():
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode, nil
}

// monitor watches for process exit
func (p *ManagedProcess) monitor(proc Process) {
	err := proc.Wait()

	// Grandchildren may hold the pipes open; don't wait for them forever
	outputDone := make(chan struct{})
	go func() {
		p.outputWg.Wait()
		close(outputDone)
	}()

	select {
	case <-outputDone:
	case <-time.After(outputDrainTimeout):
		log.Printf("[%s] output capture timed out (some lines may be missing)", p.config.Name)
	}

	code := exitCode(err)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.exitCode = code
	if p.state == domain.ProcessStateStopping || code == 0 {
		p.state = domain.ProcessStateStopped
		log.Printf("[%s] stopped (rc=%d)", p.config.Name, code)
	} else {
		p.state = domain.ProcessStateCrashed
		log.Printf("[%s] exited unexpectedly (rc=%d)", p.config.Name, code)
	}

	p.process = nil
	p.closeDone()
}

// readOutput reads lines from a stream until it closes
func (p *ManagedProcess) readOutput(r io.Reader, fn LineFunc) {
	if r == nil {
		return
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, constants.ScannerBufferSize), constants.ScannerMaxBufferSize)

	for scanner.Scan() {
		if fn != nil {
			fn(scanner.Text())
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("[%s] output reader error: %v", p.config.Name, err)
	}
}

// closeDone safely closes the done channel using sync.Once to prevent double-close panic
func (p *ManagedProcess) closeDone() {
	p.doneOnce.Do(func() {
		close(p.done)
	})
}
