package ingest

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// Sink accepts completed log entries
type Sink interface {
	Submit(entry domain.LogEntry) error
}

// Appender is the store side of the pipeline
type Appender interface {
	Append(entry domain.LogEntry) (domain.LogEntry, error)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(domain.LogEntry) error

// Submit implements Sink
func (f SinkFunc) Submit(entry domain.LogEntry) error { return f(entry) }

type request struct {
	entry   domain.LogEntry
	barrier chan struct{}
}

// PipelineStats counts pipeline traffic
type PipelineStats struct {
	Submitted int64 `json:"submitted"`
	Applied   int64 `json:"applied"`
	Failed    int64 `json:"failed"`
}

// Pipeline serializes entries from every ingestor into the store. All
// appends happen on one goroutine in arrival order.
type Pipeline struct {
	store Appender
	in    chan request
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	applied   atomic.Int64
	failed    atomic.Int64
}

// NewPipeline creates a pipeline and starts its writer goroutine
func NewPipeline(store Appender, bufferSize int) *Pipeline {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultPipelineBuffer
	}
	p := &Pipeline{
		store: store,
		in:    make(chan request, bufferSize),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Submit validates entry and queues it. Invalid entries are rejected
// here so the caller sees the error.
func (p *Pipeline) Submit(entry domain.LogEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return domain.ErrPipelineClosed
	}

	p.submitted.Add(1)
	p.in <- request{entry: entry}
	return nil
}

// Flush waits until every entry submitted before the call is applied
func (p *Pipeline) Flush(ctx context.Context) error {
	barrier := make(chan struct{})

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		<-p.done
		return nil
	}
	select {
	case p.in <- request{barrier: barrier}:
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}
	p.mu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for queued ones to be applied
func (p *Pipeline) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.in)
	}
	p.mu.Unlock()
	<-p.done
}

// Stats returns traffic counters
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Submitted: p.submitted.Load(),
		Applied:   p.applied.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pipeline) run() {
	defer close(p.done)

	for req := range p.in {
		if req.barrier != nil {
			close(req.barrier)
			continue
		}
		if _, err := p.store.Append(req.entry); err != nil {
			p.failed.Add(1)
			log.Printf("pipeline: append failed: %v", err)
			continue
		}
		p.applied.Add(1)
	}
}
