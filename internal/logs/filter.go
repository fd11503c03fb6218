package logs

import (
	"regexp"
	"strings"
	"sync"

	"github.com/charliek/devlog/internal/domain"
)

// MaxPatternLength is the longest search text compiled as a regular
// expression. Longer text is matched literally.
const MaxPatternLength = 256

// Matcher applies search text to entry messages. The text is tried as a
// case-sensitive pattern first and retried with both sides lower-cased.
// Text that does not compile is matched as a literal substring with the
// same two passes.
type Matcher struct {
	text  string
	lower string
	regex *regexp.Regexp
	lowRe *regexp.Regexp
}

// NewMatcher creates a matcher for search text
func NewMatcher(text string) *Matcher {
	m := &Matcher{text: text, lower: strings.ToLower(text)}
	if text == "" || len(text) > MaxPatternLength {
		return m
	}

	re, err := regexp.Compile(text)
	if err != nil {
		return m
	}
	m.regex = re

	// Lower-casing can break escapes such as \P{Lu}; the literal lower
	// pass covers that case.
	if low, err := regexp.Compile(m.lower); err == nil {
		m.lowRe = low
	}
	return m
}

// IsLiteral reports whether the search text is matched as plain text
func (m *Matcher) IsLiteral() bool {
	return m.regex == nil
}

// Match reports whether message passes the search
func (m *Matcher) Match(message string) bool {
	if m.text == "" {
		return true
	}

	if m.regex != nil {
		if m.regex.MatchString(message) {
			return true
		}
		lowered := strings.ToLower(message)
		if m.lowRe != nil {
			return m.lowRe.MatchString(lowered)
		}
		return strings.Contains(lowered, m.lower)
	}

	if strings.Contains(message, m.text) {
		return true
	}
	return strings.Contains(strings.ToLower(message), m.lower)
}

// Filter applies a ViewSpec to log entries
type Filter struct {
	view    domain.ViewSpec
	matcher *Matcher
}

// NewFilter creates a new filter from a ViewSpec
func NewFilter(view domain.ViewSpec) *Filter {
	return &Filter{view: view, matcher: NewMatcher(view.SearchText)}
}

// Matches returns true if the entry passes type and text filtering
func (f *Filter) Matches(entry domain.LogEntry) bool {
	if !f.view.ShowsSeverity(entry.Severity) {
		return false
	}
	return f.matcher.Match(entry.Message)
}

// FilterStats counts how the engine answered Resolve calls
type FilterStats struct {
	FullScans        int `json:"full_scans"`
	IncrementalScans int `json:"incremental_scans"`
}

// FilterEngine resolves a view against a store, caching the result for
// the last view it was asked for. A repeated view only scans entries
// appended since the previous call.
type FilterEngine struct {
	store *Store

	mu     sync.Mutex
	cached bool
	view   domain.ViewSpec
	filter *Filter
	gen    uint64
	last   uint64
	result []domain.LogEntry
	stats  FilterStats
}

// NewFilterEngine creates a filter engine over store
func NewFilterEngine(store *Store) *FilterEngine {
	return &FilterEngine{store: store}
}

// Resolve returns the ordered entries visible under view. The primary
// sequence is used unless view.Collapse selects the collapsed one.
// forceRefresh discards the cache.
func (f *FilterEngine) Resolve(view domain.ViewSpec, forceRefresh bool) []domain.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	full := forceRefresh || !f.cached || view != f.view || s.generation != f.gen
	after := f.last
	if full {
		f.filter = NewFilter(view)
		f.result = nil
		after = 0
		f.stats.FullScans++
	} else if s.seq != f.last {
		f.stats.IncrementalScans++
	}

	if full || s.seq != f.last {
		s.eachLocked(view.Collapse, after, func(e *domain.LogEntry) {
			if f.filter.Matches(*e) {
				f.result = append(f.result, e.Clone())
			}
		})
	}

	f.cached = true
	f.view = view
	f.gen = s.generation
	f.last = s.seq

	out := make([]domain.LogEntry, len(f.result))
	for i, e := range f.result {
		out[i] = e.Clone()
	}
	return out
}

// Stats returns scan statistics
func (f *FilterEngine) Stats() FilterStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// FilterEntries filters a slice of log entries
func FilterEntries(entries []domain.LogEntry, view domain.ViewSpec) []domain.LogEntry {
	f := NewFilter(view)
	result := make([]domain.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if f.Matches(entry) {
			result = append(result, entry)
		}
	}
	return result
}

// LimitLast returns at most the last limit entries and the total before limiting
func LimitLast(entries []domain.LogEntry, limit int) ([]domain.LogEntry, int) {
	total := len(entries)
	if limit > 0 && total > limit {
		entries = entries[total-limit:]
	}
	return entries, total
}
