package cmd

import (
	"github.com/spf13/cobra"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/host"
)

func NewRunCommand() *cobra.Command {
	var monitorPID int

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the shell and supervise the evaluation engine",
		Long: `Run the shell in the foreground.

The shell allocates a free port for the evaluation engine, starts the engine
with that port in its environment and restarts it whenever it exits, until
the window closes. The window closing is signalled by 'evalshell close',
SIGINT/SIGTERM, or the exit of the process given with --monitor-pid.

Engine output is written to stdout, shell logs to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("monitor-pid") {
				core.Config.UI.MonitorPID = monitorPID
			}
			return host.New(core.Config).Run()
		},
	}
	runCmd.Flags().IntVar(&monitorPID, "monitor-pid", 0, "treat the exit of this process as the window closing")

	return runCmd
}
