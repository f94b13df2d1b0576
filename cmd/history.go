package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/db"
	"github.com/data-forge-notebook/data-forge-notebook/internal/host"
)

func NewHistoryCommand() *cobra.Command {
	var limit int
	var showRuns bool

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent shell and engine lifecycle events",
		Long: `Show recent lifecycle events from the journal: port allocation, engine
launches, exits and restarts, shutdown requests.

Asks the running shell, or reads the journal directly when no shell runs.
With --runs, lists past shell runs with their pid, port and lifetime.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showRuns {
				runs, err := loadRuns(limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					slog.Info("No runs recorded")
					return nil
				}
				formatRuns(cmd.OutOrStdout(), runs)
				return nil
			}

			entries, err := loadHistory(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				slog.Info("No events recorded")
				return nil
			}
			formatHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	historyCmd.Flags().BoolVar(&showRuns, "runs", false, "List shell runs instead of events")

	return historyCmd
}

func loadHistory(limit int) ([]host.HistoryEntry, error) {
	response, err := host.SendCommand(core.Config.SocketPath(), fmt.Sprintf("HISTORY %d", limit))
	if err == nil && !response.HasError() && response.Data != nil {
		var entries []host.HistoryEntry
		if err := response.DecodeData(&entries); err != nil {
			return nil, fmt.Errorf("failed to decode history: %w", err)
		}
		return entries, nil
	}

	if !core.ConfigExists(core.Config.DatabasePath()) {
		return nil, nil
	}
	database, err := db.Open(core.Config.DatabasePath())
	if err != nil {
		return nil, err
	}
	defer database.Close()

	events, err := database.GetRecentEvents(limit)
	if err != nil {
		return nil, err
	}
	entries := make([]host.HistoryEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, host.HistoryEntry{
			Time:    e.Timestamp.Format(time.RFC3339),
			RunID:   e.RunID,
			Event:   e.EventType,
			Details: e.Details,
		})
	}
	return entries, nil
}

// formatHistory prints entries oldest first
func formatHistory(w io.Writer, entries []host.HistoryEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		when := e.Time
		if t, err := time.Parse(time.RFC3339, e.Time); err == nil {
			when = t.Local().Format(time.DateTime)
		}
		runID := e.RunID
		if len(runID) > 8 {
			runID = runID[:8]
		}
		line := fmt.Sprintf("%s  %s  %-15s", when, runID, e.Event)
		if e.Details != "" {
			line += "  " + e.Details
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

// loadRuns reads past runs from the journal. The database is shared with a
// running shell through WAL, so no IPC round trip is needed.
func loadRuns(limit int) ([]db.Run, error) {
	if !core.ConfigExists(core.Config.DatabasePath()) {
		return nil, nil
	}
	database, err := db.Open(core.Config.DatabasePath())
	if err != nil {
		return nil, err
	}
	defer database.Close()

	return database.GetRecentRuns(limit)
}

// formatRuns prints runs oldest first
func formatRuns(w io.Writer, runs []db.Run) {
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		runID := r.RunID
		if len(runID) > 8 {
			runID = runID[:8]
		}
		port := "-"
		if r.Port != 0 {
			port = fmt.Sprintf("%d", r.Port)
		}
		lifetime := "running"
		if r.EndedAt != nil {
			lifetime = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s  %s  pid %-7d port %-5s  %s\n",
			r.StartedAt.Local().Format(time.DateTime), runID, r.Pid, port, lifetime)
	}
}
