package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/parser"
	"github.com/charliek/devlog/internal/wire"
)

// SocketConfig describes the forwarded device connection
type SocketConfig struct {
	Host        string
	LocalPort   int
	RemotePort  int
	DialTimeout time.Duration
}

// SocketIngestor reads framed records from a forwarded TCP connection
type SocketIngestor struct {
	config    SocketConfig
	forwarder PortForwarder
	sink      Sink
	state     *lifecycle
	dial      func(ctx context.Context, network, address string) (net.Conn, error)

	ops  sync.Mutex // serializes Start and Stop
	mu   sync.Mutex
	conn net.Conn
	done chan struct{}
}

// NewSocketIngestor creates a socket ingestor. forwarder may be nil when
// the port is already reachable.
func NewSocketIngestor(config SocketConfig, forwarder PortForwarder, sink Sink) *SocketIngestor {
	if config.Host == "" {
		config.Host = constants.DefaultForwardHost
	}
	if config.LocalPort == 0 {
		config.LocalPort = constants.DefaultForwardPort
	}
	if config.RemotePort == 0 {
		config.RemotePort = config.LocalPort
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = constants.DefaultDialTimeout
	}

	dialer := &net.Dialer{Timeout: config.DialTimeout}
	return &SocketIngestor{
		config:    config,
		forwarder: forwarder,
		sink:      sink,
		state:     newLifecycle("socket", domain.OriginDeviceForward),
		dial:      dialer.DialContext,
	}
}

// Name returns the source name
func (s *SocketIngestor) Name() string { return "socket" }

// Origin returns the origin stamped on entries
func (s *SocketIngestor) Origin() domain.Origin { return domain.OriginDeviceForward }

// Address returns the local address dialed
func (s *SocketIngestor) Address() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.LocalPort))
}

// Start sets up the port forward, connects and starts reading
func (s *SocketIngestor) Start(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	if err := s.state.begin(); err != nil {
		return err
	}

	if s.forwarder != nil {
		if err := s.forwarder.Start(ctx, s.config.LocalPort, s.config.RemotePort); err != nil {
			err = fmt.Errorf("port forward failed: %w", err)
			s.state.end(err)
			return err
		}
	}

	conn, err := s.dial(ctx, "tcp", s.Address())
	if err != nil {
		err = fmt.Errorf("failed to connect to %s: %w", s.Address(), err)
		s.stopForwarder()
		s.state.end(err)
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.done = done
	s.mu.Unlock()

	log.Printf("socket: connected to %s", s.Address())
	go s.read(conn, done)
	return nil
}

// Stop closes the connection and waits for the reader to finish.
// Records already received are submitted first.
func (s *SocketIngestor) Stop() error {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	conn, done := s.conn, s.done
	s.mu.Unlock()

	if conn == nil {
		if s.state.end(nil) {
			return nil
		}
		return fmt.Errorf("%w: socket", domain.ErrSourceNotRunning)
	}

	_ = conn.Close()
	<-done
	return nil
}

// Status returns the source status
func (s *SocketIngestor) Status() domain.SourceStatus {
	return s.state.snapshot()
}

func (s *SocketIngestor) read(conn net.Conn, done chan struct{}) {
	defer close(done)

	dec := wire.NewDecoder(conn)
	var readErr error
	for {
		rec, err := dec.Decode()
		if err == nil {
			if !rec.IsKeepalive() {
				s.submit(rec)
			}
			continue
		}

		// Whatever arrived of an unfinished record is kept, however the
		// connection ended
		if rec.Message != "" {
			s.submit(rec)
		}
		if !isDisconnect(err) {
			readErr = err
		}
		break
	}

	_ = conn.Close()
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	s.stopForwarder()

	s.state.end(readErr)
	if readErr != nil {
		log.Printf("socket: stopped: %v", readErr)
	} else {
		log.Printf("socket: disconnected from %s", s.Address())
	}
}

// isDisconnect reports whether err is an ordinary end of the connection
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func (s *SocketIngestor) submit(rec wire.Record) {
	if err := s.sink.Submit(RecordEntry(rec, domain.OriginDeviceForward)); err != nil {
		log.Printf("socket: dropped record: %v", err)
		return
	}
	s.state.count()
}

func (s *SocketIngestor) stopForwarder() {
	if s.forwarder == nil || !s.forwarder.Running() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()
	if err := s.forwarder.Stop(ctx); err != nil {
		log.Printf("socket: failed to remove port forward: %v", err)
	}
}

// RecordEntry converts a wire record to a log entry. Records without a
// known type take their severity from the message prefix, defaulting to
// info.
func RecordEntry(rec wire.Record, origin domain.Origin) domain.LogEntry {
	severity, err := domain.ParseSeverity(rec.Type)
	if err != nil {
		severity = domain.SeverityInfo
		if line := (parser.PlainDialect{}).Classify(rec.Message); line.Kind == parser.LineStart {
			severity = line.Severity
		}
	}

	frames, extra := parser.ParseStack(rec.Stack)
	entry := domain.LogEntry{
		Timestamp:    rec.Time,
		Severity:     severity,
		Message:      rec.Message,
		ExtraMessage: extra,
		Frames:       frames,
		Origin:       origin,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return entry
}
