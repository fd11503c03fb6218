package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/parser"
)

// ProcessLogIngestor feeds the output of a device log capture through a
// line reassembler
type ProcessLogIngestor struct {
	capture   LogCapture
	tagFilter string
	dialect   parser.Dialect
	sink      Sink
	state     *lifecycle

	ops   sync.Mutex // serializes Start and Stop
	mu    sync.Mutex // guards reasm
	reasm *parser.Reassembler
	done  chan struct{}
}

// NewProcessLogIngestor creates a device log ingestor. An empty tagFilter
// accepts every line.
func NewProcessLogIngestor(capture LogCapture, tagFilter string, dialect parser.Dialect, sink Sink) *ProcessLogIngestor {
	if dialect == nil {
		dialect = parser.LogcatDialect{}
	}
	return &ProcessLogIngestor{
		capture:   capture,
		tagFilter: tagFilter,
		dialect:   dialect,
		sink:      sink,
		state:     newLifecycle("logcat", domain.OriginDeviceLogStream),
	}
}

// Name returns the source name
func (p *ProcessLogIngestor) Name() string { return "logcat" }

// Origin returns the origin stamped on entries
func (p *ProcessLogIngestor) Origin() domain.Origin { return domain.OriginDeviceLogStream }

// Start launches the capture and begins reassembling its output
func (p *ProcessLogIngestor) Start(ctx context.Context) error {
	p.ops.Lock()
	defer p.ops.Unlock()

	if err := p.state.begin(); err != nil {
		return err
	}

	p.mu.Lock()
	p.reasm = parser.NewReassembler(p.dialect, domain.OriginDeviceLogStream)
	p.mu.Unlock()

	if err := p.capture.Start(ctx, p.onLine, p.tagFilter); err != nil {
		err = fmt.Errorf("failed to start log capture: %w", err)
		p.state.end(err)
		return err
	}

	done := make(chan struct{})
	p.done = done
	go p.wait(done)
	return nil
}

// Stop stops the capture and flushes the pending record
func (p *ProcessLogIngestor) Stop() error {
	p.ops.Lock()
	defer p.ops.Unlock()

	if !p.state.running() || p.done == nil {
		return fmt.Errorf("%w: logcat", domain.ErrSourceNotRunning)
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()
	if err := p.capture.Stop(ctx); err != nil {
		log.Printf("logcat: stop: %v", err)
	}
	<-p.done
	return nil
}

// Status returns the source status
func (p *ProcessLogIngestor) Status() domain.SourceStatus {
	return p.state.snapshot()
}

// wait flushes and stops once the capture exits, whether asked to or not
func (p *ProcessLogIngestor) wait(done chan struct{}) {
	defer close(done)
	<-p.capture.Done()

	p.mu.Lock()
	entry, ok := p.reasm.Flush()
	p.mu.Unlock()
	if ok {
		p.submit(entry)
	}

	p.state.end(nil)
	log.Printf("logcat: capture stopped")
}

// Accepts reports whether a raw line passes the tag filter. Logcat lines
// must carry exactly the filter tag; other lines must contain it. Logcat buffer
// separators never pass.
func (p *ProcessLogIngestor) Accepts(line string) bool {
	if strings.HasPrefix(line, "--------- beginning of") {
		return false
	}
	if p.tagFilter == "" {
		return true
	}
	if _, tag, _, ok := parser.SplitLogcat(line); ok {
		return strings.TrimSpace(tag) == p.tagFilter
	}
	return strings.Contains(line, p.tagFilter)
}

func (p *ProcessLogIngestor) onLine(line string) {
	if !p.Accepts(line) {
		return
	}

	p.mu.Lock()
	entry, ok := p.reasm.Feed(line)
	p.mu.Unlock()

	if ok {
		p.submit(entry)
	}
}

func (p *ProcessLogIngestor) submit(entry domain.LogEntry) {
	if err := p.sink.Submit(entry); err != nil {
		log.Printf("logcat: dropped entry: %v", err)
		return
	}
	p.state.count()
}
