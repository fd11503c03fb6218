package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level devlog configuration
type Config struct {
	API        APIConfig     `yaml:"api"`
	ProjectDir string        `yaml:"project_dir"`
	EnvFile    string        `yaml:"env_file"`
	Store      StoreConfig   `yaml:"store"`
	Forward    ForwardConfig `yaml:"forward"`
	Logcat     LogcatConfig  `yaml:"logcat"`
	Files      []FileConfig  `yaml:"files"`

	// Dir is the directory of the loaded config file. Relative paths are
	// resolved against it.
	Dir string `yaml:"-"`
}

// APIConfig defines the HTTP API configuration
type APIConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	Auth *bool  `yaml:"auth,omitempty"` // nil = auto-determine based on host
}

// StoreConfig bounds the log store
type StoreConfig struct {
	DisplayCap int `yaml:"display_cap"`
	MaxEntries int `yaml:"max_entries"`
}

// ForwardConfig defines the forwarded device socket source
type ForwardConfig struct {
	Enabled    bool              `yaml:"enabled"`
	Host       string            `yaml:"host"`
	LocalPort  int               `yaml:"local_port"`
	RemotePort int               `yaml:"remote_port"`
	Cmd        string            `yaml:"cmd"`
	Env        map[string]string `yaml:"env"`
	EnvFile    string            `yaml:"env_file"`
}

// LogcatConfig defines the device log stream source
type LogcatConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Cmd       string            `yaml:"cmd"`
	TagFilter *string           `yaml:"tag_filter"` // nil = default tag, "" = every line
	Dialect   string            `yaml:"dialect"`
	Env       map[string]string `yaml:"env"`
	EnvFile   string            `yaml:"env_file"`
}

// Tag returns the effective tag filter
func (l LogcatConfig) Tag() string {
	if l.TagFilter == nil {
		return constants.DefaultTagFilter
	}
	return *l.TagFilter
}

// FileConfig is a saved or live log file source. It can be written as a
// plain path or in the expanded form.
type FileConfig struct {
	Path    string `yaml:"path"`
	Follow  bool   `yaml:"follow"`
	Dialect string `yaml:"dialect"`
}

// rawConfig is used for initial YAML parsing to handle the flexible file format
type rawConfig struct {
	API        APIConfig     `yaml:"api"`
	ProjectDir string        `yaml:"project_dir"`
	EnvFile    string        `yaml:"env_file"`
	Store      StoreConfig   `yaml:"store"`
	Forward    ForwardConfig `yaml:"forward"`
	Logcat     LogcatConfig  `yaml:"logcat"`
	Files      []interface{} `yaml:"files"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg, _ := Parse(nil)
	return cfg
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}

	// Check file permissions for security
	if err := CheckFilePermissions(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		cfg.Dir = abs
	}
	return cfg, nil
}

// Parse parses configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	config := &Config{
		API:        raw.API,
		ProjectDir: raw.ProjectDir,
		EnvFile:    raw.EnvFile,
		Store:      raw.Store,
		Forward:    raw.Forward,
		Logcat:     raw.Logcat,
	}

	// Apply defaults
	if config.API.Port == 0 {
		config.API.Port = constants.DefaultAPIPort
	}
	if config.API.Host == "" {
		config.API.Host = constants.DefaultAPIHost
	}
	if config.ProjectDir == "" {
		config.ProjectDir = "."
	}
	if config.Store.DisplayCap == 0 {
		config.Store.DisplayCap = constants.DefaultDisplayCap
	}
	if config.Forward.Host == "" {
		config.Forward.Host = constants.DefaultForwardHost
	}
	if config.Forward.LocalPort == 0 {
		config.Forward.LocalPort = constants.DefaultForwardPort
	}
	if config.Forward.RemotePort == 0 {
		config.Forward.RemotePort = config.Forward.LocalPort
	}
	if config.Forward.Cmd == "" {
		config.Forward.Cmd = constants.DefaultForwardCmd
	}
	if config.Logcat.Cmd == "" {
		config.Logcat.Cmd = constants.DefaultLogcatCmd
	}
	if config.Logcat.Dialect == "" {
		config.Logcat.Dialect = "logcat"
	}

	// Parse files (can be a path string or expanded form)
	for i, value := range raw.Files {
		file, err := parseFileConfig(value)
		if err != nil {
			return nil, fmt.Errorf("files[%d]: %w", i, err)
		}
		config.Files = append(config.Files, file)
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// parseFileConfig handles both simple and expanded file definitions
func parseFileConfig(value interface{}) (FileConfig, error) {
	switch v := value.(type) {
	case string:
		// Simple form: - Editor.log
		return FileConfig{Path: v}, nil
	case map[string]interface{}:
		// Expanded form: re-marshal and unmarshal to struct
		data, err := yaml.Marshal(v)
		if err != nil {
			return FileConfig{}, fmt.Errorf("marshaling file config: %w", err)
		}
		var file FileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return FileConfig{}, fmt.Errorf("unmarshaling file config: %w", err)
		}
		return file, nil
	default:
		return FileConfig{}, fmt.Errorf("invalid file configuration type: %T", value)
	}
}

// ResolvePath resolves a path from the config file against its directory
func (c *Config) ResolvePath(path string) string {
	return resolvePath(path, c.Dir)
}

// ForwardEnv returns the environment for the port forward command
func (c *Config) ForwardEnv() (map[string]string, error) {
	return LoadCommandEnv(c.EnvFile, c.Forward.EnvFile, c.Forward.Env, c.Dir)
}

// LogcatEnv returns the environment for the device log command
func (c *Config) LogcatEnv() (map[string]string, error) {
	return LoadCommandEnv(c.EnvFile, c.Logcat.EnvFile, c.Logcat.Env, c.Dir)
}
