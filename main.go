package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/data-forge-notebook/data-forge-notebook/cmd"
)

func main() {
	os.Args = withDefaultCommand(os.Args)

	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withDefaultCommand inserts "run" when no command is named, as when the
// desktop launcher starts the shell with only flags
func withDefaultCommand(args []string) []string {
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case arg == "-h" || arg == "--help":
			return args
		case arg == "--config-path" || arg == "--monitor-pid":
			i++ // value
		case strings.HasPrefix(arg, "-"):
		default:
			return args
		}
	}
	return slices.Concat([]string{args[0], "run"}, rest)
}
