package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/host"
)

func NewPortCommand() *cobra.Command {
	var wait time.Duration

	portCmd := &cobra.Command{
		Use:   "port",
		Short: "Print the evaluation engine port",
		Long: `Print the port allocated for the evaluation engine.

Prints 0 while the port has not been allocated yet. With --wait, polls the
shell until a port is available or the timeout expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			socketPath := core.Config.SocketPath()

			if wait <= 0 {
				port, err := host.QueryPort(socketPath)
				if err != nil {
					return fmt.Errorf("evalshell is not running: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), port)
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			port, err := host.WaitForPort(ctx, socketPath, 100*time.Millisecond)
			if err != nil {
				return fmt.Errorf("no evaluation engine port within %s: %w", wait, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), port)
			return nil
		},
	}
	portCmd.Flags().DurationVarP(&wait, "wait", "w", 0, "wait up to this long for the port to be allocated")

	return portCmd
}
