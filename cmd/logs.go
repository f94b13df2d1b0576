package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/host"
)

func NewLogsCommand() *cobra.Command {
	var lines int

	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Stream shell logs and engine output in real-time",
		Long: `Stream shell logs and evaluation engine output in real-time.

Press Ctrl+C to exit. DEBUG records are hidden unless -v is given.

Examples:
  evalshell logs              # Stream INFO and above
  evalshell logs -v           # Include DEBUG records
  evalshell logs -F restart   # Only lines containing "restart"
  evalshell logs -L 50        # Show 50 history lines on connect`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			noColor, _ := cmd.Flags().GetBool("no-color")
			out := &logFilter{
				w:         cmd.OutOrStdout(),
				showDebug: core.Config.Verbose > 0,
				filter:    filter,
				noColor:   noColor,
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			done := make(chan error, 1)
			go func() {
				done <- host.StreamLogs(core.Config.SocketPath(), lines, out)
			}()

			select {
			case <-sigChan:
				fmt.Fprintln(cmd.OutOrStdout(), "\nDisconnected from evalshell logs.")
			case err := <-done:
				var opErr *net.OpError
				if errors.As(err, &opErr) && opErr.Op == "dial" {
					return fmt.Errorf("evalshell is not running: %w", err)
				}
				out.Flush()
				fmt.Fprintln(cmd.OutOrStdout(), "Shell closed the log stream.")
			}
			return nil
		},
	}

	logsCmd.Flags().StringP("filter", "F", "", "Only show lines containing this keyword")
	logsCmd.Flags().Bool("no-color", false, "Disable colored output")
	logsCmd.Flags().IntVarP(&lines, "lines", "L", 20, "Number of history lines to show on connect")

	return logsCmd
}

// logFilter is a writer that passes through whole log lines that survive
// the level and keyword filters
type logFilter struct {
	w         io.Writer
	showDebug bool
	filter    string
	noColor   bool
	partial   []byte
}

func (f *logFilter) Write(p []byte) (int, error) {
	f.partial = append(f.partial, p...)
	for {
		i := bytes.IndexByte(f.partial, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := string(f.partial[:i+1])
		f.partial = f.partial[i+1:]
		if err := f.emit(line); err != nil {
			return len(p), err
		}
	}
}

// Flush writes a trailing line that never got its newline
func (f *logFilter) Flush() error {
	if len(f.partial) == 0 {
		return nil
	}
	line := string(f.partial)
	f.partial = nil
	return f.emit(line)
}

func (f *logFilter) emit(line string) error {
	if !keepLogLine(line, f.showDebug, f.filter) {
		return nil
	}
	if f.noColor {
		line = stripANSI(line)
	}
	_, err := io.WriteString(f.w, line)
	return err
}

func keepLogLine(line string, showDebug bool, filter string) bool {
	if !showDebug && isDebugLog(line) {
		return false
	}
	if filter != "" && !strings.Contains(strings.ToLower(stripANSI(line)), strings.ToLower(filter)) {
		return false
	}
	return true
}

// isDebugLog checks if a log line is a DEBUG level record
func isDebugLog(line string) bool {
	stripped := stripANSI(line)
	return strings.Contains(stripped, " DBG ")
}

// stripANSI removes ANSI escape codes from a string
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if s[i] == 'm' {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}
