package logs

import (
	"strings"
	"testing"

	"github.com/charliek/devlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSevEntry(severity domain.Severity, message string) domain.LogEntry {
	e := makeEntry(message)
	e.Severity = severity
	return e
}

func TestMatcher(t *testing.T) {
	tests := []struct {
		name    string
		search  string
		message string
		want    bool
	}{
		{"empty search matches", "", "anything", true},
		{"exact case", "Foo", "Foo failed", true},
		{"lower-cased retry", "Foo", "foo error", true},
		{"upper message", "foo", "FOO ERROR", true},
		{"regex", "err(or)?\\s+\\d+", "error 42", true},
		{"regex retry", "ERR\\d", "err5", true},
		{"no match", "bar", "foo error", false},
		{"invalid regex literal", "[boom", "got [boom here", true},
		{"invalid regex literal retry", "[BOOM", "got [boom here", true},
		{"invalid regex no match", "[boom", "boom", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewMatcher(tt.search).Match(tt.message))
		})
	}
}

func TestMatcher_LongPatternIsLiteral(t *testing.T) {
	long := strings.Repeat("a", MaxPatternLength+1)
	m := NewMatcher(long)

	assert.True(t, m.IsLiteral())
	assert.True(t, m.Match("x"+long))
	assert.False(t, NewMatcher("a+").IsLiteral())
}

func TestFilter_MatchesSeverity(t *testing.T) {
	f := NewFilter(domain.ViewSpec{ShowError: true})

	assert.True(t, f.Matches(makeSevEntry(domain.SeverityError, "x")))
	assert.True(t, f.Matches(makeSevEntry(domain.SeverityException, "x")))
	assert.True(t, f.Matches(makeSevEntry(domain.SeverityAssert, "x")))
	assert.False(t, f.Matches(makeSevEntry(domain.SeverityWarning, "x")))
	assert.False(t, f.Matches(makeSevEntry(domain.SeverityInfo, "x")))
}

func TestFilterEntries(t *testing.T) {
	entries := []domain.LogEntry{
		makeSevEntry(domain.SeverityInfo, "loading"),
		makeSevEntry(domain.SeverityWarning, "slow frame"),
		makeSevEntry(domain.SeverityError, "Frame dropped"),
	}

	view := domain.DefaultViewSpec()
	view.SearchText = "frame"
	got := FilterEntries(entries, view)

	require.Len(t, got, 2)
	assert.Equal(t, "slow frame", got[0].Message)
	assert.Equal(t, "Frame dropped", got[1].Message)
}

func TestLimitLast(t *testing.T) {
	entries := []domain.LogEntry{makeEntry("1"), makeEntry("2"), makeEntry("3")}

	got, total := LimitLast(entries, 2)
	assert.Equal(t, 3, total)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Message)

	got, total = LimitLast(entries, 0)
	assert.Equal(t, 3, total)
	assert.Len(t, got, 3)
}

func TestFilterEngine_SearchFallback(t *testing.T) {
	s := NewStore(DefaultStoreConfig())
	_, err := s.Append(makeSevEntry(domain.SeverityError, "foo error"))
	require.NoError(t, err)

	view := domain.DefaultViewSpec()
	view.SearchText = "Foo"

	got := NewFilterEngine(s).Resolve(view, false)
	require.Len(t, got, 1)
	assert.Equal(t, "foo error", got[0].Message)
}

func TestFilterEngine_Idempotent(t *testing.T) {
	s := NewStore(DefaultStoreConfig())
	for _, m := range []string{"a", "b", "c"} {
		_, err := s.Append(makeEntry(m))
		require.NoError(t, err)
	}

	e := NewFilterEngine(s)
	view := domain.DefaultViewSpec()

	first := e.Resolve(view, false)
	second := e.Resolve(view, false)
	forced := e.Resolve(view, true)

	assert.Equal(t, first, second)
	assert.Equal(t, first, forced)
	assert.Equal(t, FilterStats{FullScans: 2}, e.Stats())
}

func TestFilterEngine_IncrementalAppend(t *testing.T) {
	s := NewStore(DefaultStoreConfig())
	e := NewFilterEngine(s)
	view := domain.ViewSpec{ShowError: true}

	_, _ = s.Append(makeSevEntry(domain.SeverityError, "first"))
	assert.Len(t, e.Resolve(view, false), 1)

	_, _ = s.Append(makeSevEntry(domain.SeverityInfo, "hidden"))
	_, _ = s.Append(makeSevEntry(domain.SeverityException, "second"))

	got := e.Resolve(view, false)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[1].Message)
	assert.Equal(t, FilterStats{FullScans: 1, IncrementalScans: 1}, e.Stats())

	// A fresh engine scanning everything must agree
	assert.Equal(t, got, NewFilterEngine(s).Resolve(view, false))
}

func TestFilterEngine_ViewChangeRescans(t *testing.T) {
	s := NewStore(DefaultStoreConfig())
	_, _ = s.Append(makeSevEntry(domain.SeverityInfo, "info"))
	_, _ = s.Append(makeSevEntry(domain.SeverityWarning, "warn"))

	e := NewFilterEngine(s)
	assert.Len(t, e.Resolve(domain.DefaultViewSpec(), false), 2)
	assert.Len(t, e.Resolve(domain.ViewSpec{ShowWarning: true}, false), 1)
	assert.Equal(t, 2, e.Stats().FullScans)
}

func TestFilterEngine_Collapse(t *testing.T) {
	s := NewStore(DefaultStoreConfig())
	for i := 0; i < 3; i++ {
		_, _ = s.Append(makeSevEntry(domain.SeverityError, "dup"))
	}
	_, _ = s.Append(makeSevEntry(domain.SeverityError, "other"))

	e := NewFilterEngine(s)
	view := domain.DefaultViewSpec()
	view.Collapse = true

	got := e.Resolve(view, false)
	require.Len(t, got, 2)
	assert.Equal(t, "dup", got[0].Message)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, 3, s.LogCountForEntry(got[0]))

	_, _ = s.Append(makeSevEntry(domain.SeverityError, "third"))
	got = e.Resolve(view, false)
	require.Len(t, got, 3)
	assert.Equal(t, "third", got[2].Message)
}

func TestFilterEngine_ClearInvalidatesCache(t *testing.T) {
	s := NewStore(DefaultStoreConfig())
	_, _ = s.Append(makeEntry("a"))

	e := NewFilterEngine(s)
	view := domain.DefaultViewSpec()
	assert.Len(t, e.Resolve(view, false), 1)

	s.Clear()
	assert.Empty(t, e.Resolve(view, false))
	assert.Equal(t, 2, e.Stats().FullScans)
}

func TestFilterEngine_ResultIsCopy(t *testing.T) {
	s := NewStore(DefaultStoreConfig())
	entry := makeSevEntry(domain.SeverityError, "x")
	entry.Frames = []domain.StackFrame{{FilePath: "a.cs", Line: 1}}
	_, _ = s.Append(entry)

	e := NewFilterEngine(s)
	got := e.Resolve(domain.DefaultViewSpec(), false)
	got[0].Frames[0].SourceExcerpt = "changed"
	got[0].Message = "changed"

	again := e.Resolve(domain.DefaultViewSpec(), false)
	assert.Equal(t, "x", again[0].Message)
	assert.Empty(t, again[0].Frames[0].SourceExcerpt)
}

func TestFilterEngine_RestoreRescans(t *testing.T) {
	s := NewStore(DefaultStoreConfig())
	_, _ = s.Append(makeEntry("a"))

	e := NewFilterEngine(s)
	e.Resolve(domain.DefaultViewSpec(), false)

	other := NewStore(DefaultStoreConfig())
	_, _ = other.Append(makeEntry("b"))
	_, _ = other.Append(makeEntry("c"))
	require.NoError(t, s.Restore(other.Snapshot()))

	got := e.Resolve(domain.DefaultViewSpec(), false)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Message)
	assert.Equal(t, 2, e.Stats().FullScans)
}
