package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity is the level a log entry was reported with
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityError     Severity = "error"
	SeverityException Severity = "exception"
	SeverityAssert    Severity = "assert"
)

// String returns the string representation of Severity
func (s Severity) String() string {
	return string(s)
}

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityException, SeverityAssert:
		return true
	}
	return false
}

// Bucket folds Exception and Assert into Error. Counters and view
// visibility only distinguish info, warning and error.
func (s Severity) Bucket() Severity {
	switch s {
	case SeverityException, SeverityAssert:
		return SeverityError
	}
	return s
}

// ParseSeverity parses a severity name, accepting a few common aliases
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "log", "debug", "verbose":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error", "err":
		return SeverityError, nil
	case "exception":
		return SeverityException, nil
	case "assert", "fatal":
		return SeverityAssert, nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidEntry, s)
}

// Origin identifies the transport an entry arrived on
type Origin string

const (
	OriginInProcess       Origin = "in_process"
	OriginDeviceForward   Origin = "device_forward"
	OriginDeviceLogStream Origin = "device_log_stream"
	OriginLogFile         Origin = "log_file"
)

// String returns the string representation of Origin
func (o Origin) String() string {
	return string(o)
}

// Valid reports whether o is one of the known origins
func (o Origin) Valid() bool {
	switch o {
	case OriginInProcess, OriginDeviceForward, OriginDeviceLogStream, OriginLogFile:
		return true
	}
	return false
}

// StackFrame is one parsed line of a stack trace
type StackFrame struct {
	Raw      string `json:"raw"`
	Method   string `json:"method,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Line     int    `json:"line"`

	// SourceExcerpt is filled on demand for display and is empty otherwise
	SourceExcerpt string `json:"source_excerpt,omitempty"`
}

// Resolvable reports whether the frame points at a file and line
func (f StackFrame) Resolvable() bool {
	return f.FilePath != "" && f.Line > 0
}

// Location returns "path:line", or "" when the frame is unresolvable
func (f StackFrame) Location() string {
	if !f.Resolvable() {
		return ""
	}
	return f.FilePath + ":" + strconv.Itoa(f.Line)
}

// LogEntry is one structured diagnostic event
type LogEntry struct {
	Seq          uint64       `json:"seq"`
	Timestamp    time.Time    `json:"timestamp"`
	Severity     Severity     `json:"severity"`
	Message      string       `json:"message"`
	ExtraMessage string       `json:"extra_message,omitempty"`
	Frames       []StackFrame `json:"frames,omitempty"`
	Origin       Origin       `json:"origin"`

	// Transient marks entries created while a compile cycle is active.
	// They survive a clear and are reset when the cycle ends.
	Transient bool `json:"transient,omitempty"`

	// Selected is display state only and never part of identity
	Selected bool `json:"selected,omitempty"`
}

// Validate checks the fields the store depends on
func (e LogEntry) Validate() error {
	if !e.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidEntry, e.Severity)
	}
	if !e.Origin.Valid() {
		return fmt.Errorf("%w: unknown origin %q", ErrInvalidEntry, e.Origin)
	}
	return nil
}

// Fingerprint returns the deduplication key of the entry. Entries with the
// same severity, message and first frame location share a fingerprint.
func (e LogEntry) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(e.Severity))
	h.Write([]byte{0})
	h.Write([]byte(e.Message))
	h.Write([]byte{0})
	if len(e.Frames) > 0 {
		h.Write([]byte(e.Frames[0].FilePath))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.Itoa(e.Frames[0].Line)))
	} else {
		digest := sha256.Sum256([]byte(e.Message))
		h.Write(digest[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a deep copy of the entry
func (e LogEntry) Clone() LogEntry {
	c := e
	if e.Frames != nil {
		c.Frames = make([]StackFrame, len(e.Frames))
		copy(c.Frames, e.Frames)
	}
	return c
}

// FirstLocation returns the first resolvable frame, if any
func (e LogEntry) FirstLocation() (StackFrame, bool) {
	for _, f := range e.Frames {
		if f.Resolvable() {
			return f, true
		}
	}
	return StackFrame{}, false
}

// AggregateRecord tracks collapse state for one fingerprint
type AggregateRecord struct {
	Fingerprint    string   `json:"fingerprint"`
	Representative LogEntry `json:"representative"`
	Count          int      `json:"count"`
}

// Counts holds per-bucket entry counters
type Counts struct {
	Info    int `json:"info"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
}

// Total returns the sum of all buckets
func (c Counts) Total() int {
	return c.Info + c.Warning + c.Error
}

// Capped returns the counts clamped to max for display
func (c Counts) Capped(max int) Counts {
	if max <= 0 {
		return c
	}
	clamp := func(n int) int {
		if n > max {
			return max
		}
		return n
	}
	return Counts{Info: clamp(c.Info), Warning: clamp(c.Warning), Error: clamp(c.Error)}
}

// For returns the counter for the bucket of s
func (c Counts) For(s Severity) int {
	switch s.Bucket() {
	case SeverityInfo:
		return c.Info
	case SeverityWarning:
		return c.Warning
	case SeverityError:
		return c.Error
	}
	return 0
}
