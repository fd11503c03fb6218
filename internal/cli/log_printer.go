package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charliek/devlog/internal/api"
	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// LogPrinter handles consistent log formatting for terminal output
type LogPrinter struct {
	out io.Writer
	// frames prints the stack trace below each entry
	frames bool
	// count prints the collapse count after the message
	count bool
}

// NewLogPrinter creates a new LogPrinter writing to out
func NewLogPrinter(out io.Writer, frames bool) *LogPrinter {
	return &LogPrinter{out: out, frames: frames}
}

// PrintEntry prints a log entry
func (lp *LogPrinter) PrintEntry(entry domain.LogEntry) {
	lines := make([]string, len(entry.Frames))
	for i, f := range entry.Frames {
		lines[i] = f.Raw
	}
	lp.print(entry.Timestamp, string(entry.Severity), entry.Message, 0, lines)
}

// PrintAPIEntry prints an API log entry response
func (lp *LogPrinter) PrintAPIEntry(entry api.LogEntryResponse) {
	ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	lines := make([]string, len(entry.Frames))
	for i, f := range entry.Frames {
		lines[i] = f.Raw
	}
	lp.print(ts, entry.Severity, entry.Message, entry.Count, lines)
}

func (lp *LogPrinter) print(ts time.Time, severity, message string, count int, frames []string) {
	color := constants.SeverityColors[severity]
	line := fmt.Sprintf("%s%s%s %s%-9s%s | %s",
		constants.ColorDim, ts.Format("15:04:05"), constants.ColorReset,
		color, severity, constants.ColorReset,
		message)
	if lp.count && count > 1 {
		line += fmt.Sprintf(" (x%d)", count)
	}
	fmt.Fprintln(lp.out, line)

	if !lp.frames {
		return
	}
	for _, f := range frames {
		fmt.Fprintf(lp.out, "%s    %s%s\n", constants.ColorDim, strings.TrimSpace(f), constants.ColorReset)
	}
}
