// Package ingest turns the three transports into log entries and feeds
// them to the store through a single-writer pipeline.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charliek/devlog/internal/domain"
)

// Source is a stream of log entries that can be started and stopped
type Source interface {
	Name() string
	Origin() domain.Origin
	Start(ctx context.Context) error
	Stop() error
	Status() domain.SourceStatus
}

// PortForwarder exposes a device port on the local machine
type PortForwarder interface {
	Start(ctx context.Context, localPort, remotePort int) error
	Stop(ctx context.Context) error
	Running() bool
}

// LogCapture runs the device log capture. onLine is called for every line
// of output; Done is closed once the capture has exited.
type LogCapture interface {
	Start(ctx context.Context, onLine func(string), tagFilter string) error
	Stop(ctx context.Context) error
	Done() <-chan struct{}
}

// lifecycle tracks the idle -> running -> stopped state shared by sources
type lifecycle struct {
	mu     sync.Mutex
	status domain.SourceStatus
}

func newLifecycle(name string, origin domain.Origin) *lifecycle {
	return &lifecycle{status: domain.SourceStatus{
		Name:   name,
		Origin: origin,
		State:  domain.SourceStateIdle,
	}}
}

// begin moves to running. A running source cannot be started twice.
func (l *lifecycle) begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status.State == domain.SourceStateRunning {
		return fmt.Errorf("%w: %s", domain.ErrSourceRunning, l.status.Name)
	}
	l.status.State = domain.SourceStateRunning
	l.status.StartedAt = time.Now()
	l.status.StoppedAt = time.Time{}
	l.status.LastError = ""
	return nil
}

// end moves to stopped and records err. It reports whether the source
// was running.
func (l *lifecycle) end(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	wasRunning := l.status.State == domain.SourceStateRunning
	l.status.State = domain.SourceStateStopped
	if wasRunning {
		l.status.StoppedAt = time.Now()
	}
	if err != nil {
		l.status.LastError = err.Error()
	}
	return wasRunning
}

func (l *lifecycle) running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status.State == domain.SourceStateRunning
}

func (l *lifecycle) count() {
	l.mu.Lock()
	l.status.Entries++
	l.mu.Unlock()
}

func (l *lifecycle) snapshot() domain.SourceStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}
