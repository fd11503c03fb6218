package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charliek/devlog/internal/config"
	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/daemon"
	"github.com/spf13/cobra"
)

// Version is set during build
var Version = "dev"

// Global flags
var (
	configPath string
	apiAddr    string
	verbose    bool
)

// clientAnnotation marks commands that talk to a running server
var clientAnnotation = map[string]string{"client": "true"}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "devlog",
	Short: "A log console for game development",
	Long: `devlog collects diagnostic output from a running game and presents it
as a filterable console. It supports:
  - In-process, forwarded device socket, device log stream and log file sources
  - Severity toggles, search and collapse of identical entries
  - Stack trace navigation to project source files
  - Interactive TUI and an HTTP API for other viewers`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// For client commands, try to discover API address if not explicitly set
		if cmd.Annotations["client"] == "true" && !cmd.Flags().Changed("addr") {
			apiAddr = discoverAPIAddress()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "devlog version %s\n", Version)
	},
}

func init() {
	// Persistent flags available to all subcommands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: devlog.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", constants.DefaultAPIAddress, "API address for client commands")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Set version template
	rootCmd.SetVersionTemplate("devlog version {{.Version}}\n")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration named by --config. Without the flag
// the standard file names are searched and defaults are used when none
// exists. It returns the config and the path it was read from.
func loadConfig() (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, configPath, nil
	}

	path, err := config.FindConfigFile()
	if err != nil {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// loadAPIAddrFromConfig attempts to read the API address from the config file.
// Returns empty string if config doesn't exist or can't be read.
func loadAPIAddrFromConfig() string {
	cfg, path, err := loadConfig()
	if err != nil || path == "" {
		return "" // Config doesn't exist or is invalid, use default
	}

	host := cfg.API.Host
	if host == "" {
		host = constants.DefaultAPIHost
	}
	port := cfg.API.Port
	if port == 0 {
		port = constants.DefaultAPIPort
	}

	return fmt.Sprintf("http://%s:%d", host, port)
}

// discoverAPIAddress attempts to discover the API address.
// Priority:
// 1. State file (.devlog/devlog.state) of a running server
// 2. Config file (devlog.yaml) - for configured port
// 3. Default address
func discoverAPIAddress() string {
	// First, try the state of a running instance
	if cwd, err := os.Getwd(); err == nil {
		state, err := daemon.GetRunningState(cwd)
		if err == nil {
			return state.Addr()
		}
		if verbose && !errors.Is(err, daemon.ErrNotRunning) {
			fmt.Fprintf(os.Stderr, "Ignoring state file: %v\n", err)
		}
	}

	// Fall back to config file
	if addr := loadAPIAddrFromConfig(); addr != "" {
		return addr
	}

	// Fall back to default
	return constants.DefaultAPIAddress
}
