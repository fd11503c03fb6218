package tui

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/devlog/internal/api"
	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// errStreamClosed is reported when the server ends the log stream
var errStreamClosed = errors.New("log stream connection closed")

// ClientModel is the bubbletea model for TUI client mode (connected via API)
type ClientModel struct {
	BaseModel

	// Dependencies
	client TUIClient

	// fetching is set while a view request is in flight; dirty records
	// entries that arrived meanwhile
	fetching bool
	dirty    bool

	// Connection state
	connectionError error // Last API connection error, nil if connected
}

// NewClientModel creates a new TUI model for client mode
func NewClientModel(client TUIClient) ClientModel {
	return ClientModel{
		BaseModel: newBaseModel(HelpConfig{
			TitleSuffix: "(Client Mode)",
			QuitMessage: "Quit (server continues running)",
		}),
		client: client,
	}
}

// ClientErrorMsg is sent when an API error occurs
type ClientErrorMsg struct {
	Err error
}

// Init initializes the model
func (m ClientModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchView(),
		m.fetchSources(),
		tickCmd(),
	)
}

// fetchView returns a command that resolves the current view on the server
func (m ClientModel) fetchView() tea.Cmd {
	view := m.view
	return func() tea.Msg {
		resp, err := m.client.GetLogs(domain.LogParams{View: view, Limit: constants.MaxLogLines})
		if err != nil {
			return ClientErrorMsg{Err: err}
		}
		return ViewMsg{View: view, Rows: rowsFromResponse(resp), Counts: resp.DisplayCounts}
	}
}

// fetchSources returns a command that fetches source and session state
func (m ClientModel) fetchSources() tea.Cmd {
	return func() tea.Msg {
		status, err := m.client.GetStatus()
		if err != nil {
			return ClientErrorMsg{Err: err}
		}
		resp, err := m.client.GetSources()
		if err != nil {
			return ClientErrorMsg{Err: err}
		}

		msg := SourcesMsg{
			Sources:   make([]domain.SourceStatus, len(resp.Sources)),
			Processes: make([]domain.ProcessInfo, len(resp.Processes)),
			Compiling: status.Compiling,
			SessionID: status.SessionID,
		}
		for i, s := range resp.Sources {
			msg.Sources[i] = domain.SourceStatus{
				Name:      s.Name,
				Origin:    domain.Origin(s.Origin),
				State:     domain.SourceState(s.State),
				Entries:   s.Entries,
				LastError: s.LastError,
			}
		}
		for i, p := range resp.Processes {
			msg.Processes[i] = domain.ProcessInfo{
				Name:     p.Name,
				State:    domain.ProcessState(p.Status),
				PID:      p.PID,
				ExitCode: p.ExitCode,
				Cmd:      p.Cmd,
			}
		}
		return msg
	}
}

// requestView fetches the view unless a fetch is already in flight
func (m *ClientModel) requestView() tea.Cmd {
	if m.fetching {
		m.dirty = true
		return nil
	}
	m.fetching = true
	m.dirty = false
	return m.fetchView()
}

// Update handles messages
func (m ClientModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
		m.updateViewport()

	case LogEntryMsg:
		cmds = append(cmds, m.requestView())

	case ViewMsg:
		m.fetching = false
		m.connectionError = nil
		if msg.View == m.view {
			m.applyView(msg)
		} else {
			m.dirty = true
		}
		if m.dirty {
			cmds = append(cmds, m.requestView())
		}

	case SourcesMsg:
		m.sources = msg.Sources
		m.processes = msg.Processes
		m.compiling = msg.Compiling
		m.sessionID = msg.SessionID
		m.connectionError = nil

	case DetailMsg:
		m.openDetail(Detail(msg))

	case ClientErrorMsg:
		// No reconnection is attempted; the tick keeps polling and the
		// error clears on the next successful response
		m.fetching = false
		m.connectionError = msg.Err

	case ActionResultMsg:
		m.setActionResult(msg)
		cmds = append(cmds, actionResultClearCmd(), m.requestView())

	case ActionResultClearMsg:
		m.clearActionResult()

	case TickMsg:
		cmds = append(cmds, m.requestView(), m.fetchSources(), tickCmd())
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes keyboard input
func (m ClientModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle mode-specific keys first
	switch m.mode {
	case ModeSearch:
		changed, cmd := m.BaseModel.handleSearchKey(msg)
		if changed {
			return m, tea.Batch(cmd, m.requestView())
		}
		return m, cmd
	case ModeDetail:
		m.BaseModel.handleDetailKey(msg)
		return m, nil
	case ModeHelp:
		m.BaseModel.handleHelpKey(msg)
		return m, nil
	}

	// Normal mode keys
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "enter":
		row, ok := m.selectedRow()
		if !ok {
			return m, nil
		}
		seq := row.Entry.Seq
		return m, func() tea.Msg {
			resp, err := m.client.GetLog(seq)
			if err != nil {
				return ActionResultMsg{Action: "Open", Err: err}
			}
			if err := m.client.SelectLog(seq, true); err != nil {
				return ActionResultMsg{Action: "Select", Err: err}
			}
			return DetailMsg(detailFromResponse(resp))
		}

	case "C":
		return m, func() tea.Msg {
			kept, err := m.client.ClearLogs()
			if err != nil {
				return ActionResultMsg{Action: "Clear", Err: err}
			}
			return ActionResultMsg{Action: fmt.Sprintf("Cleared (%d kept)", kept)}
		}
	}

	// Handle common navigation keys
	if handled, changed := m.BaseModel.handleNavigationKey(msg); handled && changed {
		return m, m.requestView()
	}

	return m, nil
}

// View renders the TUI
func (m ClientModel) View() string {
	if !m.ready {
		return "Connecting to devlog..."
	}

	switch m.mode {
	case ModeHelp:
		return m.BaseModel.helpView()
	case ModeDetail:
		return m.BaseModel.detailView()
	default:
		statusInfo := "Connected via API"
		if m.connectionError != nil {
			statusInfo = "Connection error: " + truncateError(m.connectionError, maxErrorDisplayLen)
		} else if s := m.actionStatus(); s != "" {
			statusInfo = s
		}
		return m.BaseModel.mainView(statusInfo)
	}
}

// rowsFromResponse converts a logs response to console rows
func rowsFromResponse(resp *api.LogsResponse) []Row {
	rows := make([]Row, len(resp.Logs))
	for i, e := range resp.Logs {
		rows[i] = Row{Entry: entryFromResponse(e), Count: e.Count}
	}
	return rows
}

// entryFromResponse converts an API entry back to a domain entry. A
// malformed timestamp is left zero.
func entryFromResponse(r api.LogEntryResponse) domain.LogEntry {
	ts, _ := time.Parse(time.RFC3339Nano, r.Timestamp)
	entry := domain.LogEntry{
		Seq:          r.Seq,
		Timestamp:    ts,
		Severity:     domain.Severity(r.Severity),
		Message:      r.Message,
		ExtraMessage: r.ExtraMessage,
		Origin:       domain.Origin(r.Origin),
		Transient:    r.Transient,
		Selected:     r.Selected,
	}
	if len(r.Frames) > 0 {
		entry.Frames = make([]domain.StackFrame, len(r.Frames))
		for i, f := range r.Frames {
			entry.Frames[i] = domain.StackFrame{
				Raw:           f.Raw,
				Method:        f.Method,
				FilePath:      f.File,
				Line:          f.Line,
				SourceExcerpt: f.SourceExcerpt,
			}
		}
	}
	return entry
}

// detailFromResponse converts an entry detail response for display
func detailFromResponse(resp *api.LogDetailResponse) Detail {
	detail := Detail{
		Entry:  entryFromResponse(resp.LogEntryResponse),
		Count:  resp.Count,
		Frames: make([]FrameView, len(resp.Frames)),
	}
	for i, f := range resp.Frames {
		detail.Frames[i] = FrameView{
			Raw:       f.Raw,
			Location:  detail.Entry.Frames[i].Location(),
			LocalPath: f.LocalPath,
			Available: f.Available,
			Excerpt:   f.SourceExcerpt,
		}
	}
	return detail
}
