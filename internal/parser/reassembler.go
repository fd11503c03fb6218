package parser

import (
	"strings"
	"time"

	"github.com/charliek/devlog/internal/domain"
)

// Reassembler regroups a stream of raw lines into multi-line records.
// A record is emitted when the next record starts or on Flush.
// A Reassembler is not safe for concurrent use; each stream owns one.
type Reassembler struct {
	dialect Dialect
	origin  domain.Origin
	now     func() time.Time

	current *domain.LogEntry
	extra   []string
}

// NewReassembler creates a reassembler for one stream
func NewReassembler(dialect Dialect, origin domain.Origin) *Reassembler {
	if dialect == nil {
		dialect = PlainDialect{}
	}
	return &Reassembler{
		dialect: dialect,
		origin:  origin,
		now:     time.Now,
	}
}

// Feed consumes one raw line. It returns the previous record when the
// line starts a new one.
func (r *Reassembler) Feed(raw string) (domain.LogEntry, bool) {
	line := r.dialect.Classify(raw)

	switch line.Kind {
	case LineStart:
		done, ok := r.finish()
		r.current = &domain.LogEntry{
			Timestamp: r.now(),
			Severity:  line.Severity,
			Message:   line.Text,
			Origin:    r.origin,
		}
		return done, ok

	case LineFrame:
		if r.current != nil {
			r.current.Frames = append(r.current.Frames, line.Frame)
		}

	case LineExtra:
		if r.current != nil {
			r.extra = append(r.extra, line.Text)
		}
	}
	return domain.LogEntry{}, false
}

// Flush emits the pending record, if any
func (r *Reassembler) Flush() (domain.LogEntry, bool) {
	return r.finish()
}

// Pending reports whether a record is open
func (r *Reassembler) Pending() bool {
	return r.current != nil
}

func (r *Reassembler) finish() (domain.LogEntry, bool) {
	if r.current == nil {
		return domain.LogEntry{}, false
	}
	entry := *r.current
	entry.ExtraMessage = strings.Join(r.extra, "\n")
	r.current = nil
	r.extra = nil
	return entry, true
}
