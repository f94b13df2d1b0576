package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "evalshell",
		Short: "evalshell - evaluation engine host for Data-Forge Notebook",
		Long: `evalshell - evaluation engine host for Data-Forge Notebook

Allocates a local port for the evaluation engine, keeps the engine running
on that port and answers the UI's port query until the window closes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.InitializeConfig(configPath, verbose)
			if err != nil {
				return err
			}
			setupClientLogging(cfg.Verbose)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewRunCommand(),
		NewPortCommand(),
		NewCloseCommand(),
		NewStatusCommand(),
		NewLogsCommand(),
		NewHistoryCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}

// setupClientLogging configures slog for commands talking to a running shell
func setupClientLogging(verbose int) {
	level := slog.LevelInfo
	if verbose > 0 {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})))
}
