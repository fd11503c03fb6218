package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/charliek/devlog/internal/domain"
)

// Colors
var (
	// Severity colors
	infoColor      = lipgloss.Color("252") // Light gray
	warningColor   = lipgloss.Color("11")  // Yellow
	errorColor     = lipgloss.Color("9")   // Red
	exceptionColor = lipgloss.Color("196") // Bright red
	assertColor    = lipgloss.Color("13")  // Magenta

	// Source state colors
	runningColor = lipgloss.Color("10") // Green
	stoppedColor = lipgloss.Color("8")  // Gray
	crashedColor = lipgloss.Color("9")  // Red
	pendingColor = lipgloss.Color("11") // Yellow

	// UI colors
	headerBg   = lipgloss.Color("235")
	statusBg   = lipgloss.Color("236")
	helpBg     = lipgloss.Color("234")
	selectedBg = lipgloss.Color("24")
	dimColor   = lipgloss.Color("8")
)

// Styles
var (
	severityStyles = map[domain.Severity]lipgloss.Style{
		domain.SeverityInfo:      lipgloss.NewStyle().Foreground(infoColor),
		domain.SeverityWarning:   lipgloss.NewStyle().Foreground(warningColor),
		domain.SeverityError:     lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		domain.SeverityException: lipgloss.NewStyle().Foreground(exceptionColor).Bold(true),
		domain.SeverityAssert:    lipgloss.NewStyle().Foreground(assertColor).Bold(true),
	}

	runningStyle = lipgloss.NewStyle().
			Foreground(runningColor).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(stoppedColor)

	crashedStyle = lipgloss.NewStyle().
			Foreground(crashedColor).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(pendingColor)

	// Header style
	headerStyle = lipgloss.NewStyle().
			Background(headerBg).
			Padding(0, 1).
			MarginBottom(1)

	// Status bar style
	statusStyle = lipgloss.NewStyle().
			Background(statusBg).
			Padding(0, 1)

	// Help and detail overlay style
	helpStyle = lipgloss.NewStyle().
			Background(helpBg).
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	// Cursor row
	selectedStyle = lipgloss.NewStyle().
			Background(selectedBg)

	// Collapsed count badge
	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("240")).
			Padding(0, 1)

	// Dim style for timestamps and hidden toggles
	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	// Excerpt target line
	targetStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)
)

// severityStyle returns the style for a severity
func severityStyle(s domain.Severity) lipgloss.Style {
	if style, ok := severityStyles[s]; ok {
		return style
	}
	return severityStyles[domain.SeverityInfo]
}

// sourceStyle returns style based on source state
func sourceStyle(state domain.SourceState) lipgloss.Style {
	switch state {
	case domain.SourceStateRunning:
		return runningStyle
	case domain.SourceStateIdle:
		return pendingStyle
	default:
		return stoppedStyle
	}
}

// processStyle returns style based on collaborator process state
func processStyle(state domain.ProcessState) lipgloss.Style {
	switch state {
	case domain.ProcessStateRunning:
		return runningStyle
	case domain.ProcessStateCrashed:
		return crashedStyle
	case domain.ProcessStateStarting, domain.ProcessStateStopping:
		return pendingStyle
	default:
		return stoppedStyle
	}
}
