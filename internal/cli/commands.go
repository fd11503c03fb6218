package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/charliek/devlog/internal/api"
	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
	"github.com/charliek/devlog/internal/tui"
)

// Client command flags
var (
	statusJSON bool

	logsFollow   bool
	logsJSON     bool
	logsLines    int
	logsInfo     bool
	logsWarning  bool
	logsError    bool
	logsCollapse bool
	logsSearch   string

	sendSeverity string
	sendStack    string
)

var statusCmd = &cobra.Command{
	Use:         "status",
	Short:       "Show console status and sources",
	Args:        cobra.NoArgs,
	Annotations: clientAnnotation,
	RunE:        runStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show console entries",
	Long: `Show console entries matching a view.

Without severity flags every severity is shown. Passing any of --info,
--warning or --error shows only those.

Examples:
  devlog logs                    # Last entries
  devlog logs -f --error         # Follow errors
  devlog logs --collapse         # Identical entries once, with counts
  devlog logs --search timeout   # Case-insensitive message search`,
	Args:        cobra.NoArgs,
	Annotations: clientAnnotation,
	RunE:        runLogs,
}

var clearCmd = &cobra.Command{
	Use:         "clear",
	Short:       "Clear the console",
	Args:        cobra.NoArgs,
	Annotations: clientAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		kept, err := NewClient(apiAddr).ClearLogs()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared (%d entries kept)\n", kept)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:         "send <message>",
	Short:       "Log a message through the in-process hook",
	Args:        cobra.MinimumNArgs(1),
	Annotations: clientAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		severity, err := domain.ParseSeverity(sendSeverity)
		if err != nil {
			return err
		}
		return NewClient(apiAddr).SendLog(api.IngestRequest{
			Message:    strings.Join(args, " "),
			StackTrace: sendStack,
			Severity:   string(severity),
		})
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Mark the start or end of a compile cycle",
	Long: `Mark the start or end of a compile cycle.

Entries logged during a compile cycle are transient. Clearing the console
keeps transient errors until the cycle ends.`,
}

var compileBeginCmd = &cobra.Command{
	Use:         "begin",
	Short:       "Start a compile cycle",
	Args:        cobra.NoArgs,
	Annotations: clientAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewClient(apiAddr).BeginCompile(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Compile started")
		return nil
	},
}

var compileEndCmd = &cobra.Command{
	Use:         "end",
	Short:       "End the compile cycle",
	Args:        cobra.NoArgs,
	Annotations: clientAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := NewClient(apiAddr).EndCompile()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Compile ended (%d transient entries)\n", n)
		return nil
	},
}

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Start or stop a source",
}

var sourceStartCmd = &cobra.Command{
	Use:         "start <name>",
	Short:       "Start a source",
	Args:        cobra.ExactArgs(1),
	Annotations: clientAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewClient(apiAddr).StartSource(args[0]); err != nil {
			return fmt.Errorf("failed to start %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started source: %s\n", args[0])
		return nil
	},
}

var sourceStopCmd = &cobra.Command{
	Use:         "stop <name>",
	Short:       "Stop a source",
	Args:        cobra.ExactArgs(1),
	Annotations: clientAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewClient(apiAddr).StopSource(args[0]); err != nil {
			return fmt.Errorf("failed to stop %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped source: %s\n", args[0])
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:         "stop",
	Short:       "Stop the running server",
	Args:        cobra.NoArgs,
	Annotations: clientAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewClient(apiAddr).Shutdown(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Shutdown initiated")
		return nil
	},
}

var attachCmd = &cobra.Command{
	Use:         "attach",
	Short:       "Open the interactive viewer on a running server",
	Args:        cobra.NoArgs,
	Annotations: clientAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(apiAddr)

		// Verify connection
		if _, err := client.GetStatus(); err != nil {
			return fmt.Errorf("%w\nIs devlog running? Try 'devlog serve' first", err)
		}

		// Run TUI in client mode
		return tui.RunClient(cmd.Context(), client)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Stream new entries")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Output as JSON")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of entries to show")
	logsCmd.Flags().BoolVar(&logsInfo, "info", false, "Show info entries")
	logsCmd.Flags().BoolVar(&logsWarning, "warning", false, "Show warning entries")
	logsCmd.Flags().BoolVar(&logsError, "error", false, "Show error, exception and assert entries")
	logsCmd.Flags().BoolVar(&logsCollapse, "collapse", false, "Show identical entries once")
	logsCmd.Flags().StringVar(&logsSearch, "search", "", "Only show entries whose message contains text")

	sendCmd.Flags().StringVarP(&sendSeverity, "severity", "s", "info", "Severity (info, warning, error, exception, assert)")
	sendCmd.Flags().StringVar(&sendStack, "stack", "", "Stack trace text")

	compileCmd.AddCommand(compileBeginCmd, compileEndCmd)
	sourceCmd.AddCommand(sourceStartCmd, sourceStopCmd)

	rootCmd.AddCommand(statusCmd, logsCmd, clearCmd, sendCmd, compileCmd, sourceCmd, stopCmd, attachCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := NewClient(apiAddr)
	out := cmd.OutOrStdout()

	// Get status
	status, err := client.GetStatus()
	if err != nil {
		return fmt.Errorf("%w\nIs devlog running? Try 'devlog serve' first", err)
	}

	// Get sources
	sources, err := client.GetSources()
	if err != nil {
		return err
	}

	if statusJSON {
		output := map[string]interface{}{
			"status":    status,
			"sources":   sources.Sources,
			"processes": sources.Processes,
		}
		if err := json.NewEncoder(out).Encode(output); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to encode output: %v\n", err)
		}
		return nil
	}

	// Print status
	fmt.Fprintf(out, "Status:    %s\n", status.Status)
	fmt.Fprintf(out, "Session:   %s\n", status.SessionID)
	fmt.Fprintf(out, "Uptime:    %s\n", formatDuration(time.Duration(status.UptimeSeconds)*time.Second))
	if status.ConfigFile != "" {
		fmt.Fprintf(out, "Config:    %s\n", status.ConfigFile)
	}
	compiling := ""
	if status.Compiling {
		compiling = " (compiling)"
	}
	fmt.Fprintf(out, "Entries:   %d%s\n", status.Entries, compiling)
	fmt.Fprintf(out, "Counts:    info %d, warning %d, error %d\n",
		status.DisplayCounts.Info, status.DisplayCounts.Warning, status.DisplayCounts.Error)
	fmt.Fprintln(out)

	// Print sources table
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tORIGIN\tSTATE\tENTRIES\tUPTIME\tERROR")
	fmt.Fprintln(w, "------\t------\t-----\t-------\t------\t-----")
	for _, s := range sources.Sources {
		uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.Name, s.Origin, s.State, s.Entries, uptime, s.LastError)
	}
	w.Flush()

	if len(sources.Processes) == 0 {
		return nil
	}

	// Print collaborator processes table
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROCESS\tSTATUS\tPID\tUPTIME\tEXIT\tCOMMAND")
	fmt.Fprintln(w, "-------\t------\t---\t------\t----\t-------")
	for _, p := range sources.Processes {
		uptime := formatDuration(time.Duration(p.UptimeSeconds) * time.Second)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
			p.Name, p.Status, p.PID, uptime, p.ExitCode, p.Cmd)
	}
	w.Flush()

	return nil
}

// logsView builds the view from the logs command flags
func logsView() domain.ViewSpec {
	view := domain.DefaultViewSpec()
	if logsInfo || logsWarning || logsError {
		view.ShowInfo = logsInfo
		view.ShowWarning = logsWarning
		view.ShowError = logsError
	}
	view.Collapse = logsCollapse
	view.SearchText = logsSearch
	return view
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsLines < 1 || logsLines > constants.MaxLogLines {
		return fmt.Errorf("invalid lines value %d (must be 1-%d)", logsLines, constants.MaxLogLines)
	}

	params := domain.LogParams{View: logsView(), Limit: logsLines}
	client := NewClient(apiAddr)
	out := cmd.OutOrStdout()
	printer := NewLogPrinter(out, verbose)
	printer.count = params.View.Collapse

	if logsFollow {
		// Stream logs
		return client.StreamLogs(cmd.Context(), params, func(entry api.LogEntryResponse) {
			if logsJSON {
				if err := json.NewEncoder(out).Encode(entry); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to encode log entry: %v\n", err)
				}
				return
			}
			printer.PrintAPIEntry(entry)
		})
	}

	// Get logs
	logs, err := client.GetLogs(params)
	if err != nil {
		return err
	}

	if logsJSON {
		if err := json.NewEncoder(out).Encode(logs); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to encode logs: %v\n", err)
		}
		return nil
	}

	for _, entry := range logs.Logs {
		printer.PrintAPIEntry(entry)
	}
	if logs.FilteredCount < logs.TotalCount {
		fmt.Fprintf(out, "\n(showing %d of %d entries)\n", logs.FilteredCount, logs.TotalCount)
	}
	return nil
}

// formatDuration formats a duration nicely
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
