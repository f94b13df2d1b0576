package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/host"
)

func NewCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Signal that the window has closed",
		Long: `Signal the running shell that the window has closed.

The shell stops restarting the evaluation engine, stops the running engine
and exits.`,
		Aliases: []string{"stop", "quit"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			socketPath := core.Config.SocketPath()

			response, err := host.SendCommand(socketPath, "WINDOW_CLOSED")
			if err != nil {
				slog.Warn("evalshell is not running")
				return
			}
			response.LogMessages()

			// Engine gets StopTimeout before SIGKILL, then the shell exits
			maxWait := core.Config.Backend.StopTimeout + 5*time.Second
			pollInterval := 100 * time.Millisecond

			for elapsed := time.Duration(0); elapsed < maxWait; elapsed += pollInterval {
				time.Sleep(pollInterval)
				if _, err := host.SendCommand(socketPath, "VERSION"); err != nil {
					slog.Debug("Shell shutdown confirmed")
					return
				}
			}

			slog.Warn("Shell did not exit within timeout, but the close was sent")
		},
	}
}
