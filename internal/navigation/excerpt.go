package navigation

import (
	"strconv"
	"strings"

	"github.com/charliek/devlog/internal/constants"
)

const tabWidth = 4

// ExcerptLine is one line of source in an excerpt
type ExcerptLine struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Target bool   `json:"target,omitempty"`
}

// Excerpt is a bounded window of source around a frame's line
type Excerpt struct {
	Path            string        `json:"path"`
	Lines           []ExcerptLine `json:"lines"`
	TruncatedBefore bool          `json:"truncated_before,omitempty"`
	TruncatedAfter  bool          `json:"truncated_after,omitempty"`
}

// buildExcerpt takes half of context lines before the target line and
// half after it. line is 1-based.
func buildExcerpt(lines []string, line, context int) Excerpt {
	target := line - 1
	first := max(target-context/2, 0)
	last := min(target+context/2+1, len(lines))

	ex := Excerpt{
		TruncatedBefore: first != 0,
		TruncatedAfter:  last != len(lines),
	}
	for i := first; i < last; i++ {
		ex.Lines = append(ex.Lines, ExcerptLine{
			Number: i + 1,
			Text:   strings.ReplaceAll(lines[i], "\t", strings.Repeat(" ", tabWidth)),
			Target: i == target,
		})
	}
	return ex
}

// String renders the excerpt as plain text. The target line is marked
// with '>' and cut-off ends with an ellipsis line.
func (e Excerpt) String() string {
	return e.Render(func(s string) string { return s })
}

// Render renders the excerpt, passing the target line through highlight
func (e Excerpt) Render(highlight func(string) string) string {
	width := 0
	if n := len(e.Lines); n > 0 {
		width = len(strconv.Itoa(e.Lines[n-1].Number))
	}

	var b strings.Builder
	if e.TruncatedBefore {
		b.WriteString(constants.ExcerptEllipsis)
		b.WriteByte('\n')
	}
	for _, l := range e.Lines {
		marker := "  "
		if l.Target {
			marker = "> "
		}
		num := strconv.Itoa(l.Number)
		text := marker + strings.Repeat(" ", width-len(num)) + num + " | " + l.Text
		if l.Target {
			text = highlight(text)
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	if e.TruncatedAfter {
		b.WriteString(constants.ExcerptEllipsis)
		b.WriteByte('\n')
	}
	return b.String()
}
