package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/charliek/devlog/internal/domain"
)

// maxErrorDisplayLen is the maximum length of error messages in the status bar
const maxErrorDisplayLen = 60

// HelpConfig configures the help view for different modes
type HelpConfig struct {
	// TitleSuffix is appended to the help title (e.g., "(Client Mode)")
	TitleSuffix string
	// QuitMessage describes what happens on quit
	QuitMessage string
}

// Row is one line of the console. Count is the number of identical
// entries when the view is collapsed and 0 otherwise.
type Row struct {
	Entry domain.LogEntry
	Count int
}

// FrameView is a stack frame as the detail pane shows it
type FrameView struct {
	Raw       string
	Location  string
	LocalPath string
	Available bool
	Excerpt   string
}

// Detail is an opened entry with its frames resolved
type Detail struct {
	Entry  domain.LogEntry
	Count  int
	Frames []FrameView
}

// BaseModel contains shared fields for both Model and ClientModel
type BaseModel struct {
	// State
	rows      []Row
	counts    domain.Counts
	compiling bool
	sessionID string
	sources   []domain.SourceStatus
	processes []domain.ProcessInfo
	detail    *Detail

	// view is what the console resolves; cursor indexes rows
	view   domain.ViewSpec
	cursor int

	// UI components
	viewport  viewport.Model
	textInput textinput.Model

	mode       Mode
	followMode bool

	// Last action result for feedback
	lastAction    string
	lastActionErr error

	// Dimensions
	width  int
	height int
	ready  bool

	helpConfig HelpConfig
}

// newBaseModel creates a new BaseModel with the given help configuration
func newBaseModel(helpConfig HelpConfig) BaseModel {
	ti := textinput.New()
	ti.Placeholder = "Type to search..."
	ti.CharLimit = 100
	ti.Width = 40

	return BaseModel{
		rows:       make([]Row, 0),
		view:       domain.DefaultViewSpec(),
		textInput:  ti,
		mode:       ModeNormal,
		followMode: true,
		helpConfig: helpConfig,
	}
}

// handleWindowSize handles window resize messages
func (b *BaseModel) handleWindowSize(msg tea.WindowSizeMsg) {
	b.width = msg.Width
	b.height = msg.Height

	headerHeight := 4 // Counts and sources panel
	footerHeight := 2 // Status bar
	viewportHeight := msg.Height - headerHeight - footerHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !b.ready {
		b.viewport = viewport.New(msg.Width, viewportHeight)
		b.viewport.YPosition = headerHeight
		b.ready = true
	} else {
		b.viewport.Width = msg.Width
		b.viewport.Height = viewportHeight
	}
}

// applyView replaces the displayed rows. The cursor stays on the same
// entry when it is still visible and follows the tail in follow mode.
func (b *BaseModel) applyView(msg ViewMsg) {
	var seq uint64
	if row, ok := b.selectedRow(); ok {
		seq = row.Entry.Seq
	}

	b.rows = msg.Rows
	b.counts = msg.Counts

	switch {
	case b.followMode:
		b.cursor = len(b.rows) - 1
	case seq != 0:
		b.cursor = min(b.cursor, len(b.rows)-1)
		for i, row := range b.rows {
			if row.Entry.Seq == seq {
				b.cursor = i
				break
			}
		}
	default:
		b.cursor = min(b.cursor, len(b.rows)-1)
	}
	if b.cursor < 0 {
		b.cursor = 0
	}

	b.updateViewport()
}

// selectedRow returns the row under the cursor
func (b *BaseModel) selectedRow() (Row, bool) {
	if b.cursor < 0 || b.cursor >= len(b.rows) {
		return Row{}, false
	}
	return b.rows[b.cursor], true
}

// openDetail shows d in the detail pane
func (b *BaseModel) openDetail(d Detail) {
	b.detail = &d
	b.mode = ModeDetail
}

// setActionResult records the outcome shown in the status bar
func (b *BaseModel) setActionResult(msg ActionResultMsg) {
	b.lastAction = msg.Action
	b.lastActionErr = msg.Err
}

func (b *BaseModel) clearActionResult() {
	b.lastAction = ""
	b.lastActionErr = nil
}

// actionStatus renders the last action result
func (b *BaseModel) actionStatus() string {
	if b.lastAction == "" {
		return ""
	}
	if b.lastActionErr != nil {
		return b.lastAction + " failed: " + truncateError(b.lastActionErr, maxErrorDisplayLen)
	}
	return b.lastAction
}

// handleSearchKey handles keys in search mode. The search is applied as
// it is typed. It reports whether the view changed.
func (b *BaseModel) handleSearchKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch msg.String() {
	case "esc":
		b.mode = ModeNormal
		b.textInput.Blur()
		b.textInput.SetValue("")
		changed := b.view.SearchText != ""
		b.view.SearchText = ""
		return changed, nil

	case "enter":
		b.mode = ModeNormal
		b.textInput.Blur()
		return false, nil
	}

	var cmd tea.Cmd
	b.textInput, cmd = b.textInput.Update(msg)
	if value := b.textInput.Value(); value != b.view.SearchText {
		b.view.SearchText = value
		return true, cmd
	}
	return false, cmd
}

// handleHelpKey handles keys in help mode
func (b *BaseModel) handleHelpKey(msg tea.KeyMsg) {
	b.mode = ModeNormal
}

// handleDetailKey handles keys in detail mode
func (b *BaseModel) handleDetailKey(msg tea.KeyMsg) {
	switch msg.String() {
	case "esc", "enter", "q", "backspace":
		b.mode = ModeNormal
		b.detail = nil
	}
}

// handleNavigationKey handles the keys shared by both models. It reports
// whether the key was handled and whether the view changed.
func (b *BaseModel) handleNavigationKey(msg tea.KeyMsg) (bool, bool) {
	switch msg.String() {
	case "?":
		b.mode = ModeHelp
		return true, false

	case "/":
		b.mode = ModeSearch
		b.textInput.SetValue(b.view.SearchText)
		b.textInput.CursorEnd()
		b.textInput.Focus()
		return true, false

	case "1":
		b.view.ShowInfo = !b.view.ShowInfo
		return true, true

	case "2":
		b.view.ShowWarning = !b.view.ShowWarning
		return true, true

	case "3":
		b.view.ShowError = !b.view.ShowError
		return true, true

	case "c":
		b.view.Collapse = !b.view.Collapse
		return true, true

	case "esc":
		if b.view.SearchText == "" {
			return true, false
		}
		b.view.SearchText = ""
		return true, true

	case "up", "k":
		b.moveCursor(-1)
		return true, false

	case "down", "j":
		b.moveCursor(1)
		return true, false

	case "pgup":
		b.moveCursor(-b.pageSize())
		return true, false

	case "pgdown":
		b.moveCursor(b.pageSize())
		return true, false

	case "home", "g":
		b.moveCursor(-len(b.rows))
		return true, false

	case "end", "G":
		b.moveCursor(len(b.rows))
		return true, false

	case "F":
		b.followMode = !b.followMode
		if b.followMode {
			b.cursor = max(len(b.rows)-1, 0)
			b.updateViewport()
		}
		return true, false
	}

	return false, false
}

// moveCursor moves the cursor by delta rows. Reaching the last row
// resumes follow mode and leaving it pauses follow mode.
func (b *BaseModel) moveCursor(delta int) {
	last := len(b.rows) - 1
	b.cursor = max(min(b.cursor+delta, last), 0)
	b.followMode = b.cursor >= last
	b.updateViewport()
}

func (b *BaseModel) pageSize() int {
	if b.viewport.Height > 1 {
		return b.viewport.Height - 1
	}
	return 1
}

// updateViewport renders the rows and keeps the cursor in view
func (b *BaseModel) updateViewport() {
	lines := make([]string, len(b.rows))
	for i, row := range b.rows {
		lines[i] = formatRow(row, i == b.cursor)
	}
	b.viewport.SetContent(strings.Join(lines, "\n"))

	if !b.ready || b.viewport.Height <= 0 {
		return
	}
	switch {
	case b.cursor < b.viewport.YOffset:
		b.viewport.SetYOffset(b.cursor)
	case b.cursor >= b.viewport.YOffset+b.viewport.Height:
		b.viewport.SetYOffset(b.cursor - b.viewport.Height + 1)
	}
}

// formatRow formats a single console row
func formatRow(row Row, selected bool) string {
	marker := "  "
	if selected {
		marker = selectedStyle.Render(">") + " "
	}

	ts := dimStyle.Render(row.Entry.Timestamp.Format("15:04:05"))
	sev := severityStyle(row.Entry.Severity).Render(fmt.Sprintf("%-9s", row.Entry.Severity))
	line := fmt.Sprintf("%s%s %s %s", marker, ts, sev, firstLine(row.Entry.Message))
	if row.Count > 1 {
		line += " " + countStyle.Render(strconv.Itoa(row.Count))
	}
	return line
}

// countsPanel renders the severity toggles and source states
func (b *BaseModel) countsPanel() string {
	toggle := func(key string, s domain.Severity, label string, shown bool) string {
		text := fmt.Sprintf("%s:%s %d", key, label, b.counts.For(s))
		if !shown {
			return dimStyle.Render(text)
		}
		return severityStyle(s).Render(text)
	}

	items := []string{
		toggle("1", domain.SeverityInfo, "Info", b.view.ShowInfo),
		toggle("2", domain.SeverityWarning, "Warn", b.view.ShowWarning),
		toggle("3", domain.SeverityError, "Error", b.view.ShowError),
	}
	if b.view.Collapse {
		items = append(items, "[Collapse]")
	}
	if b.compiling {
		items = append(items, pendingStyle.Render("[Compiling]"))
	}

	for _, s := range b.sources {
		items = append(items, sourceStyle(s.State).Render(s.Name))
	}
	for _, p := range b.processes {
		items = append(items, processStyle(p.State).Render(p.Name+":"+p.State.String()))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(items, "  "))
	return headerStyle.Render(header)
}

// statusBar renders the bottom status bar
func (b *BaseModel) statusBar(extraInfo string) string {
	var left string
	switch {
	case b.mode == ModeSearch:
		left = "Search: " + b.textInput.View()
	case b.view.SearchText != "":
		left = fmt.Sprintf("Search: %s (ESC to clear)", b.view.SearchText)
	default:
		left = "? for help"
		if extraInfo != "" {
			left += " | " + extraInfo
		}
	}

	followIndicator := "[FOLLOW]"
	if !b.followMode {
		followIndicator = "[PAUSED]"
	}
	position := 0
	if len(b.rows) > 0 {
		position = b.cursor + 1
	}
	right := fmt.Sprintf("%s %d/%d rows", followIndicator, position, len(b.rows))

	leftWidth := b.width - len(right) - 4
	if leftWidth < 0 {
		leftWidth = 0
	}

	leftPart := statusStyle.Width(leftWidth).Render(left)
	rightPart := statusStyle.Render(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftPart, "  ", rightPart)
}

// mainView renders the main TUI layout
func (b *BaseModel) mainView(extraStatusInfo string) string {
	var sb strings.Builder
	sb.WriteString(b.countsPanel())
	sb.WriteString("\n")
	sb.WriteString(b.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(b.statusBar(extraStatusInfo))
	return sb.String()
}

// detailView renders the opened entry with its stack trace and the
// source excerpt of the first frame that has one
func (b *BaseModel) detailView() string {
	if b.detail == nil {
		return ""
	}
	d := b.detail

	var sb strings.Builder
	title := fmt.Sprintf("#%d %s", d.Entry.Seq, d.Entry.Severity)
	if d.Count > 1 {
		title += fmt.Sprintf(" (x%d)", d.Count)
	}
	sb.WriteString(severityStyle(d.Entry.Severity).Render(title))
	sb.WriteString("  " + dimStyle.Render(d.Entry.Timestamp.Format("2006-01-02 15:04:05.000")+" "+d.Entry.Origin.String()))
	sb.WriteString("\n\n")
	sb.WriteString(d.Entry.Message)
	sb.WriteString("\n")
	if d.Entry.ExtraMessage != "" {
		sb.WriteString(d.Entry.ExtraMessage)
		sb.WriteString("\n")
	}

	excerpt := ""
	if len(d.Frames) > 0 {
		sb.WriteString("\nStack trace:\n")
		for _, f := range d.Frames {
			sb.WriteString("  " + f.Raw + "\n")
			if f.Available {
				sb.WriteString(dimStyle.Render("    -> "+f.LocalPath) + "\n")
			}
			if excerpt == "" && f.Excerpt != "" {
				excerpt = f.Excerpt
			}
		}
	}

	if excerpt != "" {
		sb.WriteString("\n")
		for _, line := range strings.Split(strings.TrimRight(excerpt, "\n"), "\n") {
			if strings.HasPrefix(line, ">") {
				sb.WriteString(targetStyle.Render(line) + "\n")
			} else {
				sb.WriteString(dimStyle.Render(line) + "\n")
			}
		}
	}

	sb.WriteString("\nPress ESC to close")
	return helpStyle.Render(sb.String())
}

// helpView renders the help overlay
func (b *BaseModel) helpView() string {
	title := "devlog - Log Console"
	if b.helpConfig.TitleSuffix != "" {
		title += " " + b.helpConfig.TitleSuffix
	}

	quitMsg := "Quit"
	if b.helpConfig.QuitMessage != "" {
		quitMsg = b.helpConfig.QuitMessage
	}

	help := fmt.Sprintf(`
%s

Navigation:
  j/↓        Next entry
  k/↑        Previous entry (pauses auto-follow)
  g/Home     First entry (pauses auto-follow)
  G/End      Last entry (resumes auto-follow)
  PgUp/PgDn  Page up/down
  F          Toggle auto-follow mode
  Enter      Open entry details and source

View:
  1/2/3      Toggle info/warning/error
  c          Toggle collapse
  /          Search messages
  ESC        Clear search

Other:
  C          Clear the console
  ?          Toggle help
  q/Ctrl+C   %s

Press any key to close help...
`, title, quitMsg)

	return helpStyle.Render(help)
}

// firstLine returns s up to its first newline
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncateError truncates an error message to maxLen characters
func truncateError(err error, maxLen int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen-3] + "..."
	}
	return msg
}
