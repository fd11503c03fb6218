package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/logs"
	"github.com/charliek/devlog/internal/session"
)

// Mode represents the current TUI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeDetail
	ModeHelp
)

// Model is the bubbletea model for a viewer running in the server process
type Model struct {
	BaseModel

	// current returns the live session. It is called on every refresh so
	// the viewer follows reloads.
	current func() *session.Session
}

// NewModel creates a new TUI model over the session returned by current
func NewModel(current func() *session.Session) Model {
	m := Model{
		BaseModel: newBaseModel(HelpConfig{}),
		current:   current,
	}
	m.refresh()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// LogEntryMsg is sent when a new log entry arrives
type LogEntryMsg domain.LogEntry

// ViewMsg carries a resolved view. View is the spec it was resolved for
// so that late responses for an older view can be dropped.
type ViewMsg struct {
	View   domain.ViewSpec
	Rows   []Row
	Counts domain.Counts
}

// SourcesMsg carries source and collaborator state
type SourcesMsg struct {
	Sources   []domain.SourceStatus
	Processes []domain.ProcessInfo
	Compiling bool
	SessionID string
}

// DetailMsg is sent when an opened entry has been resolved
type DetailMsg Detail

// TickMsg is sent periodically
type TickMsg time.Time

// ActionResultMsg is sent when an operator action completes
type ActionResultMsg struct {
	Action string
	Err    error
}

// ActionResultClearMsg is sent to clear the action result after a delay
type ActionResultClearMsg struct{}

// actionResultClearDelay is how long to show an action result
const actionResultClearDelay = 3 * time.Second

// actionResultClearCmd returns a command that clears the action result after a delay
func actionResultClearCmd() tea.Cmd {
	return tea.Tick(actionResultClearDelay, func(t time.Time) tea.Msg {
		return ActionResultClearMsg{}
	})
}

// tickCmd returns a command that ticks periodically
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refresh resolves the current view against the session
func (m *Model) refresh() {
	sess := m.current()

	entries, _ := logs.LimitLast(sess.Resolve(m.view, false), constants.MaxLogLines)
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{Entry: e}
		if m.view.Collapse {
			rows[i].Count = sess.LogCountFor(e.Fingerprint())
		}
	}
	_, display := sess.Counts()
	m.applyView(ViewMsg{View: m.view, Rows: rows, Counts: display})

	m.sources = sess.Sources()
	m.processes = sess.Processes()
	m.compiling = sess.Compiling()
	m.sessionID = sess.ID()
}

// detailFromSession converts a session entry detail for display
func detailFromSession(d session.EntryDetail) Detail {
	detail := Detail{
		Entry:  d.Entry,
		Count:  d.Count,
		Frames: make([]FrameView, len(d.Frames)),
	}
	for i, f := range d.Frames {
		detail.Frames[i] = FrameView{
			Raw:       f.Raw,
			Location:  f.StackFrame.Location(),
			LocalPath: f.Location.Path,
			Available: f.Location.Available,
			Excerpt:   f.SourceExcerpt,
		}
	}
	return detail
}
