package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
		m.updateViewport()

	case LogEntryMsg:
		m.refresh()

	case TickMsg:
		m.refresh()
		cmds = append(cmds, tickCmd())

	case ActionResultMsg:
		m.setActionResult(msg)
		cmds = append(cmds, actionResultClearCmd())

	case ActionResultClearMsg:
		m.clearActionResult()
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle mode-specific keys first
	switch m.mode {
	case ModeSearch:
		changed, cmd := m.BaseModel.handleSearchKey(msg)
		if changed {
			m.refresh()
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
		sess := m.current()
		detail, err := sess.Entry(row.Entry.Seq)
		if err != nil {
			m.setActionResult(ActionResultMsg{Action: "Open", Err: err})
			return m, actionResultClearCmd()
		}
		if err := sess.SetSelected(row.Entry.Seq, true); err != nil {
			m.setActionResult(ActionResultMsg{Action: "Select", Err: err})
		}
		m.openDetail(detailFromSession(detail))
		return m, nil

	case "C":
		kept := m.current().Clear()
		m.refresh()
		m.setActionResult(ActionResultMsg{Action: fmt.Sprintf("Cleared (%d kept)", kept)})
		return m, actionResultClearCmd()
	}

	// Handle common navigation keys
	if handled, changed := m.BaseModel.handleNavigationKey(msg); handled {
		if changed {
			m.refresh()
		}
	}

	return m, nil
}
