package tui

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeHelp:
		return m.BaseModel.helpView()
	case ModeDetail:
		return m.BaseModel.detailView()
	default:
		return m.BaseModel.mainView(m.actionStatus())
	}
}
