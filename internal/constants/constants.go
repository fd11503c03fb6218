// Package constants provides shared configuration values used across devlog.
package constants

import "time"

// Configuration file defaults
const (
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "devlog.yaml"

	// DefaultAPIHost is the default host for the API server
	DefaultAPIHost = "127.0.0.1"

	// DefaultAPIPort is the default port for the API server
	DefaultAPIPort = 5566

	// DefaultAPIAddress is the default API address for client connections
	DefaultAPIAddress = "http://127.0.0.1:5566"

	// DefaultForwardHost is where the forwarded device port is reachable
	DefaultForwardHost = "127.0.0.1"

	// DefaultForwardPort is used for both ends of the port forward when unset
	DefaultForwardPort = 12345

	// DefaultForwardCmd is the port-forward tool
	DefaultForwardCmd = "adb"

	// DefaultLogcatCmd captures the device system log
	DefaultLogcatCmd = "adb logcat -v threadtime"

	// DefaultTagFilter restricts device log lines to application output
	DefaultTagFilter = "Unity"
)

// Timeout and duration defaults
const (
	// DefaultRequestTimeout is the default timeout for API requests
	DefaultRequestTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultDialTimeout bounds connecting to the forwarded port
	DefaultDialTimeout = 5 * time.Second

	// StreamHeartbeatInterval is how often an idle log stream sends a comment
	StreamHeartbeatInterval = 15 * time.Second
)

// Store and view configuration
const (
	// DefaultDisplayCap caps the severity counters shown to the operator.
	// Internal counters are never capped.
	DefaultDisplayCap = 999

	// DefaultMaxEntries of 0 keeps the full session history
	DefaultMaxEntries = 0

	// MaxLogLines is the maximum number of entries the API returns per request
	MaxLogLines = 10000

	// ExcerptContextLines is the number of source lines shown around a frame
	ExcerptContextLines = 8

	// ExcerptEllipsis marks a truncated source excerpt
	ExcerptEllipsis = "........"
)

// Buffer sizes
const (
	// DefaultPipelineBuffer is the queue depth between ingestors and the store
	DefaultPipelineBuffer = 1024

	// DefaultSubscriptionBuffer is the default size for subscription buffers
	DefaultSubscriptionBuffer = 100

	// ScannerBufferSize is the initial buffer size for log line scanning
	ScannerBufferSize = 64 * 1024 // 64KB

	// ScannerMaxBufferSize is the maximum buffer size for log line scanning
	ScannerMaxBufferSize = 1024 * 1024 // 1MB

	// MaxFrameSize is the largest socket record payload accepted
	MaxFrameSize = 1024 * 1024 // 1MB
)

// ANSI color codes for terminal output
var (
	// SeverityColors are the colors used for severities in terminal output
	SeverityColors = map[string]string{
		"info":      "\033[37m", // white
		"warning":   "\033[33m", // yellow
		"error":     "\033[31m", // red
		"exception": "\033[91m", // bright red
		"assert":    "\033[35m", // magenta
	}

	// ColorReset resets the terminal color
	ColorReset = "\033[0m"

	// ColorDim is used for timestamps and stack frames
	ColorDim = "\033[90m"
)
