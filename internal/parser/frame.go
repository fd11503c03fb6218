// Package parser turns raw log text into structured entries. It knows the
// stack frame formats reported by the runtime, the per-transport line
// dialects, and how to regroup a line stream into multi-line records.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charliek/devlog/internal/domain"
)

var (
	// Foo:Bar () (at Assets/Foo.cs:12)
	unityAtRe = regexp.MustCompile(`^(.*?)\s*\(at (.+):(\d+)\)$`)

	// at Foo.Bar () [0x00000] in /path/Foo.cs:12
	monoInRe = regexp.MustCompile(`^(.*?)\s+(?:\[0x[0-9a-fA-F]+\]\s+)?in\s+(.+):(\d+)$`)

	// at com.foo.Bar.baz(Bar.java:12)
	parenLocRe = regexp.MustCompile(`^(.*?)\(([^()\s]+):(\d+)\)$`)

	// at Foo.cs:12
	bareLocRe = regexp.MustCompile(`^([^\s()]+):(\d+)$`)

	// UnityEngine.Debug:Log(Object)
	unityCallRe = regexp.MustCompile("^[A-Za-z_][\\w.<>`+,\\[\\]]*:[\\w.<>`|]+\\s*\\(.*\\)$")

	// (Filename: ./Runtime/Export/Debug.bindings.h Line: 35)
	filenameTrailerRe = regexp.MustCompile(`^\(Filename: .* Line: -?\d+\)$`)
)

// ParseFrame parses a single stack frame line. It returns false when the
// line is not in any recognised frame format.
func ParseFrame(line string) (domain.StackFrame, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return domain.StackFrame{}, false
	}

	if rest, ok := strings.CutPrefix(trimmed, "at "); ok {
		rest = strings.TrimSpace(rest)
		frame := domain.StackFrame{Raw: line}
		switch {
		case monoInRe.MatchString(rest):
			m := monoInRe.FindStringSubmatch(rest)
			frame.Method = strings.TrimSpace(m[1])
			setLocation(&frame, m[2], m[3])
		case parenLocRe.MatchString(rest):
			m := parenLocRe.FindStringSubmatch(rest)
			frame.Method = strings.TrimSpace(m[1])
			setLocation(&frame, m[2], m[3])
		case bareLocRe.MatchString(rest):
			m := bareLocRe.FindStringSubmatch(rest)
			setLocation(&frame, m[1], m[2])
		default:
			frame.Method = rest
		}
		return frame, true
	}

	if m := unityAtRe.FindStringSubmatch(trimmed); m != nil {
		frame := domain.StackFrame{Raw: line, Method: strings.TrimSpace(m[1])}
		setLocation(&frame, m[2], m[3])
		return frame, true
	}

	if unityCallRe.MatchString(trimmed) {
		return domain.StackFrame{Raw: line, Method: trimmed}, true
	}

	return domain.StackFrame{}, false
}

// ParseStack splits a whole stack trace blob into frames. Lines that are
// not frames are returned joined as extra text so nothing is lost.
func ParseStack(text string) ([]domain.StackFrame, string) {
	var frames []domain.StackFrame
	var extra []string
	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if frame, ok := ParseFrame(line); ok {
			frames = append(frames, frame)
			continue
		}
		extra = append(extra, line)
	}
	return frames, strings.Join(extra, "\n")
}

// NormalizePath converts a reported path to use / separators
func NormalizePath(path string) string {
	return strings.ReplaceAll(strings.TrimSpace(path), `\`, "/")
}

func setLocation(frame *domain.StackFrame, path, line string) {
	path = NormalizePath(path)
	// <filename unknown> and <hash>:0 style placeholders carry no location
	if strings.HasPrefix(path, "<") {
		return
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return
	}
	frame.FilePath = path
	frame.Line = n
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
