package config

import (
	"fmt"
	"strings"

	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/parser"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors
func Validate(config *Config) error {
	var errs []string

	if config.API.Port < 0 || config.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port: must be between 0 and 65535, got %d", config.API.Port))
	}

	if config.Store.DisplayCap < 0 {
		errs = append(errs, "store.display_cap: must be non-negative")
	}
	if config.Store.MaxEntries < 0 {
		errs = append(errs, "store.max_entries: must be non-negative")
	}

	if config.Forward.Enabled {
		if !validPort(config.Forward.LocalPort) {
			errs = append(errs, fmt.Sprintf("forward.local_port: must be between 1 and 65535, got %d", config.Forward.LocalPort))
		}
		if !validPort(config.Forward.RemotePort) {
			errs = append(errs, fmt.Sprintf("forward.remote_port: must be between 1 and 65535, got %d", config.Forward.RemotePort))
		}
	}

	if config.Logcat.Enabled {
		if strings.TrimSpace(config.Logcat.Cmd) == "" {
			errs = append(errs, "logcat.cmd: command is required")
		}
		if _, ok := parser.DialectFor(config.Logcat.Dialect); !ok {
			errs = append(errs, fmt.Sprintf("logcat.dialect: unknown dialect %q", config.Logcat.Dialect))
		}
	}

	for i, f := range config.Files {
		if f.Path == "" {
			errs = append(errs, fmt.Sprintf("files[%d].path: path is required", i))
		}
		if _, ok := parser.DialectFor(f.Dialect); !ok {
			errs = append(errs, fmt.Sprintf("files[%d].dialect: unknown dialect %q", i, f.Dialect))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

// ValidateSourceName checks if a source name given on the command line
// or in a request is usable
func ValidateSourceName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "source name cannot be empty"}
	}
	if strings.ContainsAny(name, " \t\n") {
		return &ValidationError{Field: "name", Message: "source name cannot contain whitespace"}
	}
	return nil
}
