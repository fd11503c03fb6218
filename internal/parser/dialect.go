package parser

import (
	"regexp"
	"strings"

	"github.com/charliek/devlog/internal/domain"
)

// LineKind classifies one raw line of a log stream
type LineKind int

const (
	// LineNoise is blank or unusable input
	LineNoise LineKind = iota
	// LineStart opens a new record
	LineStart
	// LineFrame is a stack frame belonging to the open record
	LineFrame
	// LineExtra is continuation text belonging to the open record
	LineExtra
)

// Line is the classification of one raw line
type Line struct {
	Kind     LineKind
	Severity domain.Severity
	Text     string
	Frame    domain.StackFrame
}

// Dialect recognises the line layout of one transport
type Dialect interface {
	Name() string
	Classify(raw string) Line
}

var (
	// Error: something / Warning: something / Log: something
	levelTagRe = regexp.MustCompile(`^(?i)(info|log|debug|warning|warn|error|assert|fatal)\s*:\s?(.*)$`)

	// Exception: boom / NullReferenceException: Object reference not set
	exceptionRe = regexp.MustCompile(`^(?:[A-Za-z_][\w.]*)?Exception(?::.*)?$`)

	assertRe = regexp.MustCompile(`^Assertion failed`)
)

// PlainDialect handles untagged text streams such as editor and player
// log files. A record starts on a severity or exception prefix.
type PlainDialect struct{}

// Name returns the dialect name
func (PlainDialect) Name() string { return "plain" }

// Classify implements Dialect
func (PlainDialect) Classify(raw string) Line {
	return classifyPayload(raw)
}

func classifyPayload(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Line{Kind: LineNoise}
	}

	if exceptionRe.MatchString(trimmed) {
		return Line{Kind: LineStart, Severity: domain.SeverityException, Text: trimmed}
	}
	if assertRe.MatchString(trimmed) {
		return Line{Kind: LineStart, Severity: domain.SeverityAssert, Text: trimmed}
	}
	if m := levelTagRe.FindStringSubmatch(trimmed); m != nil {
		sev, err := domain.ParseSeverity(m[1])
		if err == nil {
			return Line{Kind: LineStart, Severity: sev, Text: m[2]}
		}
	}

	if frame, ok := ParseFrame(raw); ok {
		return Line{Kind: LineFrame, Frame: frame}
	}
	return Line{Kind: LineExtra, Text: strings.TrimRight(raw, " \t\r")}
}

var (
	// 01-02 03:04:05.678  1234  5678 I Unity   : payload
	threadtimeRe = regexp.MustCompile(`^\d\d-\d\d\s+\d\d:\d\d:\d\d\.\d+\s+\d+\s+\d+\s+([VDIWEFA])\s+(.*?)\s*: ?(.*)$`)

	// I/Unity   ( 1234): payload
	briefRe = regexp.MustCompile(`^([VDIWEFA])/(.*?)\s*\(\s*\d+\): ?(.*)$`)
)

// LogcatDialect handles device system log output. The per-line header is
// stripped and its level letter supplies the severity.
type LogcatDialect struct{}

// Name returns the dialect name
func (LogcatDialect) Name() string { return "logcat" }

// Classify implements Dialect. Lines without a recognised header fall
// back to the plain rules.
func (LogcatDialect) Classify(raw string) Line {
	level, _, payload, ok := SplitLogcat(raw)
	if !ok {
		return classifyPayload(raw)
	}
	if strings.TrimSpace(payload) == "" {
		return Line{Kind: LineNoise}
	}

	if frame, ok := ParseFrame(payload); ok {
		return Line{Kind: LineFrame, Frame: frame}
	}
	if filenameTrailerRe.MatchString(strings.TrimSpace(payload)) {
		return Line{Kind: LineExtra, Text: strings.TrimSpace(payload)}
	}

	line := classifyPayload(payload)
	if line.Kind == LineStart && line.Severity == domain.SeverityException {
		return line
	}
	return Line{Kind: LineStart, Severity: logcatSeverity(level), Text: strings.TrimSpace(payload)}
}

// SplitLogcat splits a logcat line into level letter, tag and payload
func SplitLogcat(raw string) (level byte, tag string, payload string, ok bool) {
	raw = strings.TrimRight(raw, "\r")
	if m := threadtimeRe.FindStringSubmatch(raw); m != nil {
		return m[1][0], m[2], m[3], true
	}
	if m := briefRe.FindStringSubmatch(raw); m != nil {
		return m[1][0], m[2], m[3], true
	}
	return 0, "", "", false
}

func logcatSeverity(level byte) domain.Severity {
	switch level {
	case 'W':
		return domain.SeverityWarning
	case 'E':
		return domain.SeverityError
	case 'F', 'A':
		return domain.SeverityAssert
	default:
		return domain.SeverityInfo
	}
}

// DialectFor returns the dialect registered under name
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case "", "plain":
		return PlainDialect{}, true
	case "logcat":
		return LogcatDialect{}, true
	}
	return nil, false
}
