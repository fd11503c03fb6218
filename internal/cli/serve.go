package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/charliek/devlog/internal/api"
	"github.com/charliek/devlog/internal/config"
	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/daemon"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/session"
	"github.com/charliek/devlog/internal/tui"
)

// Serve command flags
var (
	servePort int
	serveTUI  bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the log console",
	Long: `Run the log console for the project in the working directory.

Starts every configured source and the HTTP API. Entries are printed to
the terminal, or shown in the interactive viewer with --tui.

Send SIGHUP to reload the configuration without losing history.

Examples:
  devlog serve              # Print entries to the terminal
  devlog serve --tui        # Interactive viewer
  devlog serve --port 6000  # Override the API port`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "API port (overrides config)")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Run the interactive viewer")
}

// generateToken generates a cryptographically secure random token
func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// isLocalhost checks if the host is a localhost address
func isLocalhost(host string) bool {
	return host == "" || host == "127.0.0.1" || host == "localhost" || host == "::1"
}

// isAuthRequired determines if authentication should be enabled based on config
func isAuthRequired(cfg *config.Config) bool {
	// Explicit config takes precedence
	if cfg.API.Auth != nil {
		return *cfg.API.Auth
	}
	// Auto-determine: auth required unless binding to localhost only
	return !isLocalhost(cfg.API.Host)
}

// loadServeConfig loads the configuration and applies command line overrides
func loadServeConfig() (*config.Config, string, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort < 0 || servePort > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", servePort)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	// Refuse to start twice for the same project
	if err := daemon.CleanupStaleFiles(cwd); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return fmt.Errorf("%w (use 'devlog stop' first)", err)
		}
		return fmt.Errorf("cleaning up stale files: %w", err)
	}
	if err := daemon.EnsureStateDir(cwd); err != nil {
		return err
	}
	lock, err := daemon.AcquireLock(cwd)
	if err != nil {
		return err
	}
	defer lock.Release()

	cfg, cfgFile, err := loadServeConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// In TUI mode the terminal belongs to the viewer, so operational and
	// access logs go to the log file
	var accessLog io.Writer
	if serveTUI {
		logFile, err := daemon.OpenLogFile(cwd)
		if err != nil {
			return err
		}
		defer logFile.Close()
		log.SetOutput(logFile)
		defer log.SetOutput(os.Stderr)
		accessLog = logFile
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sess, err := session.New(cfg, session.Options{})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	var current atomic.Pointer[session.Session]
	current.Store(sess)

	// Create shutdown channel
	shutdownCh := make(chan struct{})
	var shutdownOnce sync.Once
	shutdownFn := func() {
		shutdownOnce.Do(func() { close(shutdownCh) })
	}

	// Determine if authentication is required
	authEnabled := isAuthRequired(cfg)
	var token string

	// Generate authentication token only if auth is enabled
	if authEnabled {
		token, err = generateToken()
		if err != nil {
			return fmt.Errorf("generating auth token: %w", err)
		}
		if err := daemon.SaveToken(cwd, token); err != nil {
			return fmt.Errorf("saving auth token: %w", err)
		}
	} else if !isLocalhost(cfg.API.Host) {
		// Warning: auth explicitly disabled on non-localhost
		fmt.Fprintf(os.Stderr, "WARNING: Auth disabled while binding to all interfaces (%s)\n", cfg.API.Host)
		fmt.Fprintf(os.Stderr, "         Any network client can read and clear this console.\n")
	}

	// Create API handlers and server
	handlers := api.NewHandlers(sess, cfgFile, shutdownFn)
	apiServer := api.NewServer(api.ServerConfig{
		Host:        cfg.API.Host,
		Port:        cfg.API.Port,
		AuthEnabled: authEnabled,
		Token:       token,
		AccessLog:   accessLog,
	}, handlers)

	if cfgFile != "" {
		fmt.Printf("Starting devlog with config: %s\n", cfgFile)
	} else {
		fmt.Println("Starting devlog with default config")
	}
	scope := "local only"
	if !isLocalhost(cfg.API.Host) {
		scope = "network accessible"
	}
	authInfo := "no auth"
	if authEnabled {
		authInfo = "auth enabled"
	}
	fmt.Printf("API server: http://%s (%s, %s)\n", apiServer.Addr(), scope, authInfo)
	if authEnabled {
		fmt.Printf("Auth token saved to: %s\n", daemon.TokenPath(cwd))
	}

	// Start API server in background
	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	state := &daemon.State{
		PID:         os.Getpid(),
		Port:        cfg.API.Port,
		Host:        cfg.API.Host,
		StartedAt:   time.Now(),
		ConfigFile:  cfgFile,
		SessionID:   sess.ID(),
		AuthEnabled: authEnabled,
	}
	if err := state.Write(cwd); err != nil {
		log.Printf("Warning: failed to write state file: %v", err)
	}
	defer daemon.RemoveState(cwd)

	// reload rebuilds the session from the configuration file, keeping
	// the history. The API keeps its original address.
	reload := func() {
		next, _, err := loadServeConfig()
		if err != nil {
			log.Printf("Reload failed: %v", err)
			return
		}
		sess, err := session.Reload(ctx, current.Load(), next, session.Options{})
		if err != nil {
			log.Printf("Reload failed: %v", err)
			return
		}
		current.Store(sess)
		handlers.SetSession(sess)

		state.SessionID = sess.ID()
		if err := state.Write(cwd); err != nil {
			log.Printf("Warning: failed to write state file: %v", err)
		}
	}

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// wait blocks until a shutdown is requested, handling reloads
	wait := func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					log.Printf("Received %s, reloading configuration", sig)
					reload()
					continue
				}
				log.Printf("Received %s, shutting down...", sig)
			case <-shutdownCh:
				log.Printf("Shutdown requested via API...")
			case err := <-serverErr:
				log.Printf("API server error: %v", err)
			case <-ctx.Done():
			}
			return
		}
	}

	// Handle TUI vs terminal output
	if serveTUI {
		go func() {
			wait()
			cancel()
		}()
		// Run TUI - it blocks until quit or shutdown
		if err := tui.Run(ctx, current.Load); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
		cancel()
	} else {
		go printLogs(ctx, current.Load, NewLogPrinter(os.Stdout, verbose))
		wait()
		cancel()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer shutdownCancel()

	// Stop API server
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping API server: %v", err)
	}

	// Close the session, stopping sources and collaborator processes
	if err := current.Load().Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing session: %v\n", err)
	}

	fmt.Println("Shutdown complete")
	return nil
}

// printLogs prints appended entries to the terminal. When the session
// closes for a reload it follows the replacement.
func printLogs(ctx context.Context, current func() *session.Session, printer *LogPrinter) {
	for {
		sess := current()
		id, ch := sess.Subscribe(nil)
		closed := drain(ctx, ch, printer.PrintEntry)
		sess.Unsubscribe(id)
		if !closed || !awaitReplacement(ctx, sess, current) {
			return
		}
	}
}

// drain calls fn for entries from ch until it closes (true) or ctx is
// done (false)
func drain(ctx context.Context, ch <-chan domain.LogEntry, fn func(domain.LogEntry)) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case entry, ok := <-ch:
			if !ok {
				return true
			}
			fn(entry)
		}
	}
}

// awaitReplacement waits until current returns a session other than old
func awaitReplacement(ctx context.Context, old *session.Session, current func() *session.Session) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
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
