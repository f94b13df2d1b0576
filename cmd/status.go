package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/host"
)

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the shell and evaluation engine status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := host.SendCommand(core.Config.SocketPath(), "STATUS")
			if err != nil {
				slog.Warn("evalshell is not running")
				return nil
			}

			var status host.StatusData
			if err := response.DecodeData(&status); err != nil {
				return fmt.Errorf("failed to decode status: %w", err)
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				formatStatus(cmd.OutOrStdout(), status, time.Now())
			case "json":
				jsonBytes, _ := json.MarshalIndent(status, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}

// formatStatus renders status for humans, ages relative to now
func formatStatus(w io.Writer, status host.StatusData, now time.Time) {
	age := ""
	if started, err := time.Parse(time.RFC3339, status.StartTime); err == nil {
		age = fmt.Sprintf(", Age: %s", now.Sub(started).Round(time.Second))
	}
	fmt.Fprintf(w, "Shell (PID: %d%s)\n", status.Pid, age)

	if status.Port == 0 {
		fmt.Fprintln(w, "  Port:     not allocated")
	} else {
		fmt.Fprintf(w, "  Port:     %d\n", status.Port)
	}
	if status.ShutdownRequested {
		fmt.Fprintln(w, "  Shutdown: requested")
	}

	engine := status.Engine
	if engine == nil {
		fmt.Fprintln(w, "Engine: not started")
		return
	}

	fmt.Fprintf(w, "Engine: %s\n", engine.State)
	if engine.Pid > 0 {
		line := fmt.Sprintf("  PID:      %d", engine.Pid)
		if !engine.StartTime.IsZero() {
			line += fmt.Sprintf(" (up %s)", now.Sub(engine.StartTime).Round(time.Second))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  Launches: %d (restarts: %d)\n", engine.Launches, engine.Restarts)

	if m := status.Metrics; m != nil {
		listening := "no"
		if m.Listening {
			listening = "yes"
		}
		fmt.Fprintf(w, "  Memory:   %s\n", formatBytes(m.RSS))
		fmt.Fprintf(w, "  CPU:      %.1f%%\n", m.CPUPercent)
		fmt.Fprintf(w, "  Listening on port: %s\n", listening)
	}

	if exit := engine.LastExit; exit != nil {
		line := fmt.Sprintf("  Last exit: PID %d, code %d", exit.Pid, exit.Code)
		if exit.Signal != "" {
			line += ", signal " + exit.Signal
		}
		if !exit.Time.IsZero() {
			line += fmt.Sprintf(" (%s ago)", now.Sub(exit.Time).Round(time.Second))
		}
		fmt.Fprintln(w, line)
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
