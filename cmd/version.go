package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/host"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Show version of both the client and the running shell (if any)`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.ErrOrStderr()
			clientVersion := core.Version
			clientFormatted := core.FormatVersion(clientVersion)
			fmt.Fprintf(out, "Client version: %s\n", clientFormatted)

			response, err := host.SendCommand(core.Config.SocketPath(), "VERSION")
			if err != nil {
				fmt.Fprintln(out, "Shell: not running")
				return
			}

			dataMap, ok := response.Data.(map[string]any)
			if !ok {
				return
			}
			if version, ok := dataMap["version"].(string); ok {
				shellFormatted := core.FormatVersion(version)
				fmt.Fprintf(out, "Shell version: %s\n", shellFormatted)
				if clientVersion != version {
					slog.Warn(fmt.Sprintf("Version mismatch! Client %s and shell %s versions differ.", clientFormatted, shellFormatted))
				}
			}
		},
	}
}
