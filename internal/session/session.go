// Package session wires one log store to its filter engine, ingest pipeline,
// sources and source navigation. A Session is the unit the API, the CLI
// and the terminal viewer operate on.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/charliek/devlog/internal/config"
	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/ingest"
	"github.com/charliek/devlog/internal/logs"
	"github.com/charliek/devlog/internal/navigation"
	"github.com/charliek/devlog/internal/parser"
	"github.com/charliek/devlog/internal/supervisor"
)

// Options holds the collaborators a session may be given in place of the
// real ones
type Options struct {
	Runner supervisor.ProcessRunner
	Reader navigation.FileReader
}

// Session owns every component of one viewing session
type Session struct {
	id        string
	config    *config.Config
	startedAt time.Time

	store      *logs.Store
	engine     *logs.FilterEngine
	pipeline   *ingest.Pipeline
	resolver   *navigation.Resolver
	supervisor *supervisor.Supervisor
	direct     *ingest.DirectIngestor

	mu      sync.RWMutex
	sources map[string]ingest.Source
	order   []string

	compiling atomic.Bool
	closed    atomic.Bool
}

// FrameDetail is a stack frame with its local location
type FrameDetail struct {
	domain.StackFrame
	Location navigation.Location `json:"location"`
}

// EntryDetail is everything the display layer shows for a selected entry
type EntryDetail struct {
	Entry  domain.LogEntry `json:"entry"`
	Count  int             `json:"count"`
	Frames []FrameDetail   `json:"frames"`
}

// New creates a session from cfg. Sources are created but not started.
func New(cfg *config.Config, opts Options) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	forwardEnv, err := cfg.ForwardEnv()
	if err != nil {
		return nil, fmt.Errorf("forward environment: %w", err)
	}
	logcatEnv, err := cfg.LogcatEnv()
	if err != nil {
		return nil, fmt.Errorf("logcat environment: %w", err)
	}

	store := logs.NewStore(logs.StoreConfig{
		DisplayCap:         cfg.Store.DisplayCap,
		MaxEntries:         cfg.Store.MaxEntries,
		SubscriptionBuffer: constants.DefaultSubscriptionBuffer,
	})
	pipeline := ingest.NewPipeline(store, constants.DefaultPipelineBuffer)

	s := &Session{
		id:        uuid.NewString(),
		config:    cfg,
		startedAt: time.Now(),
		store:     store,
		engine:    logs.NewFilterEngine(store),
		pipeline:  pipeline,
		resolver:  navigation.NewResolver(cfg.ResolvePath(cfg.ProjectDir), opts.Reader),
		supervisor: supervisor.New(supervisor.SupervisorConfig{
			ForwardCmd:      cfg.Forward.Cmd,
			ForwardEnv:      forwardEnv,
			CaptureCmd:      cfg.Logcat.Cmd,
			CaptureEnv:      logcatEnv,
			ShutdownTimeout: constants.DefaultShutdownTimeout,
		}, opts.Runner),
		sources: make(map[string]ingest.Source),
	}

	s.direct = ingest.NewDirectIngestor(pipeline)
	s.direct.SetTransient(s.compiling.Load)
	s.addSource(s.direct)

	if cfg.Forward.Enabled {
		s.addSource(ingest.NewSocketIngestor(ingest.SocketConfig{
			Host:       cfg.Forward.Host,
			LocalPort:  cfg.Forward.LocalPort,
			RemotePort: cfg.Forward.RemotePort,
		}, s.supervisor.Forwarder(), pipeline))
	}

	if cfg.Logcat.Enabled {
		dialect, _ := parser.DialectFor(cfg.Logcat.Dialect)
		s.addSource(ingest.NewProcessLogIngestor(s.supervisor.Capture(), cfg.Logcat.Tag(), dialect, pipeline))
	}

	for _, f := range cfg.Files {
		dialect, _ := parser.DialectFor(f.Dialect)
		s.addSource(ingest.NewLogFileIngestor(ingest.FileConfig{
			Pattern: cfg.ResolvePath(f.Path),
			Follow:  f.Follow,
			Dialect: dialect,
		}, pipeline))
	}

	return s, nil
}

func (s *Session) addSource(src ingest.Source) {
	s.sources[src.Name()] = src
	s.order = append(s.order, src.Name())
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// StartedAt returns when the session was created
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Config returns the configuration the session was built from
func (s *Session) Config() *config.Config { return s.config }

// Store returns the session's log store
func (s *Session) Store() *logs.Store { return s.store }

// Start starts every configured source. A source that fails to start is
// logged and left stopped; the rest still run.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrShutdownInProgress
	}

	for _, src := range s.orderedSources() {
		if err := src.Start(ctx); err != nil {
			log.Printf("session: source %s did not start: %v", src.Name(), err)
		}
	}
	return nil
}

// Close stops every source, drains the pipeline and shuts down the
// collaborator processes
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, src := range s.orderedSources() {
		if src.Status().State != domain.SourceStateRunning {
			continue
		}
		if err := src.Stop(); err != nil && !errors.Is(err, domain.ErrSourceNotRunning) {
			log.Printf("session: stopping %s: %v", src.Name(), err)
		}
	}

	s.pipeline.Close()
	err := s.supervisor.Shutdown(ctx)
	s.store.Close()
	return err
}

func (s *Session) orderedSources() []ingest.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Source, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.sources[name])
	}
	return out
}

// Log records an entry from the in-process hook
func (s *Session) Log(message, stackTrace string, severity domain.Severity) error {
	return s.direct.Log(message, stackTrace, severity)
}

// Flush waits until every submitted entry is in the store
func (s *Session) Flush(ctx context.Context) error {
	return s.pipeline.Flush(ctx)
}

// BeginCompile marks entries logged from now on as transient
func (s *Session) BeginCompile() {
	s.compiling.Store(true)
}

// EndCompile ends the compile cycle. Entries logged during it become
// ordinary entries. Returns the number of entries changed.
func (s *Session) EndCompile(ctx context.Context) (int, error) {
	s.compiling.Store(false)
	if err := s.pipeline.Flush(ctx); err != nil {
		return 0, err
	}
	return s.store.ResetTransient(), nil
}

// Compiling reports whether a compile cycle is active
func (s *Session) Compiling() bool {
	return s.compiling.Load()
}

// Resolve returns the entries visible under view
func (s *Session) Resolve(view domain.ViewSpec, refresh bool) []domain.LogEntry {
	return s.engine.Resolve(view, refresh)
}

// Clear removes entries, keeping transient errors of an active compile
// cycle. Returns the number of entries kept.
func (s *Session) Clear() int {
	return s.store.Clear()
}

// Counts returns the internal counters and their display values
func (s *Session) Counts() (domain.Counts, domain.Counts) {
	return s.store.Counts(), s.store.DisplayCounts()
}

// LogCountFor returns the number of entries sharing fingerprint
func (s *Session) LogCountFor(fingerprint string) int {
	return s.store.LogCountFor(fingerprint)
}

// Entry returns an entry with its aggregate count, frame locations and
// source excerpts
func (s *Session) Entry(seq uint64) (EntryDetail, error) {
	entry, err := s.store.Entry(seq)
	if err != nil {
		return EntryDetail{}, err
	}

	s.resolver.Annotate(&entry)
	detail := EntryDetail{
		Entry:  entry,
		Count:  s.store.LogCountForEntry(entry),
		Frames: make([]FrameDetail, len(entry.Frames)),
	}
	for i, f := range entry.Frames {
		detail.Frames[i] = FrameDetail{StackFrame: f, Location: s.resolver.Locate(f)}
	}
	return detail, nil
}

// Excerpt returns the source excerpt for one frame of an entry
func (s *Session) Excerpt(seq uint64, frame int) (navigation.Excerpt, error) {
	entry, err := s.store.Entry(seq)
	if err != nil {
		return navigation.Excerpt{}, err
	}
	if frame < 0 || frame >= len(entry.Frames) {
		return navigation.Excerpt{}, fmt.Errorf("%w: entry %d has no frame %d", domain.ErrEntryNotFound, seq, frame)
	}
	ex, ok := s.resolver.Excerpt(entry.Frames[frame])
	if !ok {
		return navigation.Excerpt{}, fmt.Errorf("%w: source for %s", domain.ErrEntryNotFound, entry.Frames[frame].Location())
	}
	return ex, nil
}

// Locate resolves a frame against the project directory
func (s *Session) Locate(frame domain.StackFrame) navigation.Location {
	return s.resolver.Locate(frame)
}

// SetSelected marks the entry the operator has selected
func (s *Session) SetSelected(seq uint64, selected bool) error {
	return s.store.SetSelected(seq, selected)
}

// Subscribe returns a live feed of appended entries matching view
func (s *Session) Subscribe(view *domain.ViewSpec) (string, <-chan domain.LogEntry) {
	return s.store.Subscribe(view)
}

// Unsubscribe ends a live feed
func (s *Session) Unsubscribe(id string) {
	s.store.Unsubscribe(id)
}

// Sources returns the status of every source in configuration order
func (s *Session) Sources() []domain.SourceStatus {
	srcs := s.orderedSources()
	out := make([]domain.SourceStatus, len(srcs))
	for i, src := range srcs {
		out[i] = src.Status()
	}
	return out
}

// Processes returns the state of the collaborator processes
func (s *Session) Processes() []domain.ProcessInfo {
	return s.supervisor.Processes()
}

// PipelineStats returns ingest traffic counters
func (s *Session) PipelineStats() ingest.PipelineStats {
	return s.pipeline.Stats()
}

// FilterStats returns filter engine scan counters
func (s *Session) FilterStats() logs.FilterStats {
	return s.engine.Stats()
}

func (s *Session) source(name string) (ingest.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, name)
	}
	return src, nil
}

// StartSource starts one source by name
func (s *Session) StartSource(ctx context.Context, name string) error {
	if s.closed.Load() {
		return domain.ErrShutdownInProgress
	}
	src, err := s.source(name)
	if err != nil {
		return err
	}
	return src.Start(ctx)
}

// StopSource stops one source by name. Buffered records are flushed.
func (s *Session) StopSource(name string) error {
	src, err := s.source(name)
	if err != nil {
		return err
	}
	return src.Stop()
}

// Snapshot returns the encoded store contents
func (s *Session) Snapshot(ctx context.Context) ([]byte, error) {
	if err := s.pipeline.Flush(ctx); err != nil {
		return nil, err
	}
	return logs.EncodeSnapshot(s.store.Snapshot())
}

// Restore replaces the store contents with an encoded snapshot
func (s *Session) Restore(data []byte) error {
	snap, err := logs.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	if err := s.store.Restore(snap); err != nil {
		return err
	}
	s.resolver.Reset()
	return nil
}

// Reload replaces old with a session built from cfg, carrying the log
// contents and compile state across. old is closed even when the new
// session fails to restore.
func Reload(ctx context.Context, old *Session, cfg *config.Config, opts Options) (*Session, error) {
	next, err := New(cfg, opts)
	if err != nil {
		return nil, err
	}

	// Closing first drains the old pipeline so nothing in flight is lost
	if err := old.Close(ctx); err != nil {
		log.Printf("session: closing previous session: %v", err)
	}
	data, err := old.Snapshot(ctx)
	if err != nil {
		_ = next.Close(ctx)
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	if err := next.Restore(data); err != nil {
		_ = next.Close(ctx)
		return nil, fmt.Errorf("restore: %w", err)
	}
	next.compiling.Store(old.Compiling())

	if err := next.Start(ctx); err != nil {
		return nil, err
	}
	log.Printf("session: reloaded %s as %s (%d entries)", old.ID(), next.ID(), next.store.Len())
	return next, nil
}
