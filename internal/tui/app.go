package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/devlog/internal/api"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/session"
)

// reloadPollInterval is how often the log forwarder checks for a
// replacement session after the current one closed
const reloadPollInterval = 100 * time.Millisecond

// Run starts the TUI over the session returned by current. It returns when
// the operator quits or ctx is done.
func Run(ctx context.Context, current func() *session.Session) error {
	model := NewModel(current)
	p := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go forwardLogs(ctx, p, current)
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}

// forwardLogs forwards appended entries to the TUI program. When the
// session closes it waits for the replacement and subscribes again.
// It exits when the context is cancelled.
func forwardLogs(ctx context.Context, p *tea.Program, current func() *session.Session) {
	for {
		sess := current()
		id, ch := sess.Subscribe(nil)
		closed := pump(ctx, p, ch)
		sess.Unsubscribe(id)
		if !closed || !awaitReplacement(ctx, sess, current) {
			return
		}
	}
}

// pump sends entries from ch until it closes (true) or ctx is done (false)
func pump(ctx context.Context, p *tea.Program, ch <-chan domain.LogEntry) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case entry, ok := <-ch:
			if !ok {
				return true
			}
			p.Send(LogEntryMsg(entry))
		}
	}
}

// awaitReplacement waits until current returns a session other than old
func awaitReplacement(ctx context.Context, old *session.Session, current func() *session.Session) bool {
	ticker := time.NewTicker(reloadPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if current() != old {
				return true
			}
		}
	}
}

// TUIClient is the interface for TUI client mode API interactions.
// It consolidates all API operations needed by the TUI client.
type TUIClient interface {
	GetStatus() (*api.StatusResponse, error)
	GetLogs(params domain.LogParams) (*api.LogsResponse, error)
	GetLog(seq uint64) (*api.LogDetailResponse, error)
	SelectLog(seq uint64, selected bool) error
	ClearLogs() (int, error)
	GetSources() (*api.SourceListResponse, error)
	StreamLogsChannel(ctx context.Context, params domain.LogParams) (<-chan api.LogEntryResponse, error)
}

// RunClient starts the TUI application in client mode (connected via API)
func RunClient(ctx context.Context, client TUIClient) error {
	model := NewClientModel(client)
	p := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// New entries only trigger a refetch, so the stream carries every severity
	go forwardClientLogs(ctx, p, client)

	_, err := p.Run()
	return err
}

// forwardClientLogs streams log entries from the API and sends them to the TUI program.
// It exits when the context is cancelled or the channel is closed.
func forwardClientLogs(ctx context.Context, p *tea.Program, client TUIClient) {
	ch, err := client.StreamLogsChannel(ctx, domain.LogParams{View: domain.DefaultViewSpec()})
	if err != nil {
		p.Send(ClientErrorMsg{Err: err})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				if ctx.Err() == nil {
					p.Send(ClientErrorMsg{Err: errStreamClosed})
				}
				return
			}
			p.Send(LogEntryMsg(entryFromResponse(entry)))
		}
	}
}
