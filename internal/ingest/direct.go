package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/parser"
)

// DirectIngestor receives complete records from an in-process callback
type DirectIngestor struct {
	sink      Sink
	state     *lifecycle
	transient atomic.Pointer[func() bool]
	now       func() time.Time
}

// NewDirectIngestor creates an in-process ingestor submitting to sink
func NewDirectIngestor(sink Sink) *DirectIngestor {
	return &DirectIngestor{
		sink:  sink,
		state: newLifecycle("direct", domain.OriginInProcess),
		now:   time.Now,
	}
}

// Name returns the source name
func (d *DirectIngestor) Name() string { return "direct" }

// Origin returns the origin stamped on entries
func (d *DirectIngestor) Origin() domain.Origin { return domain.OriginInProcess }

// Start begins accepting records
func (d *DirectIngestor) Start(_ context.Context) error {
	return d.state.begin()
}

// Stop stops accepting records
func (d *DirectIngestor) Stop() error {
	if !d.state.end(nil) {
		return fmt.Errorf("%w: direct", domain.ErrSourceNotRunning)
	}
	return nil
}

// Status returns the source status
func (d *DirectIngestor) Status() domain.SourceStatus {
	return d.state.snapshot()
}

// SetTransient installs the predicate deciding whether new entries belong
// to an active compile cycle
func (d *DirectIngestor) SetTransient(fn func() bool) {
	if fn == nil {
		d.transient.Store(nil)
		return
	}
	d.transient.Store(&fn)
}

// Log converts one callback invocation into an entry and submits it
func (d *DirectIngestor) Log(message, stackTrace string, severity domain.Severity) error {
	if !d.state.running() {
		return fmt.Errorf("%w: direct", domain.ErrSourceNotRunning)
	}

	frames, extra := parser.ParseStack(stackTrace)
	entry := domain.LogEntry{
		Timestamp:    d.now(),
		Severity:     severity,
		Message:      message,
		ExtraMessage: extra,
		Frames:       frames,
		Origin:       domain.OriginInProcess,
	}
	if fn := d.transient.Load(); fn != nil {
		entry.Transient = (*fn)()
	}

	if err := d.sink.Submit(entry); err != nil {
		return err
	}
	d.state.count()
	return nil
}
