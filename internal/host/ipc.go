package host

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
)

const defaultHistoryLines = 20

// HistoryEntry is one journalled event in a HISTORY response
type HistoryEntry struct {
	Time    string `json:"time"`
	RunID   string `json:"run_id"`
	Event   string `json:"event"`
	Details string `json:"details,omitempty"`
}

func (h *Host) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Info("Error accepting connection", "error", err)
			}
			return
		}
		go h.handleConnection(conn)
	}
}

// handleConnection reads one command line and writes one JSON response,
// except LOGS which streams until the client goes away
func (h *Host) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) == 0 {
		return
	}
	command, args := parts[0], parts[1:]

	// The UI polls these, keep them out of the log
	if command != "GET_EVAL_ENGINE_SERVER_PORT" && command != "VERSION" {
		slog.Debug("Executing command", "command", command, "args", args)
	}

	var response Response
	switch command {
	case "GET_EVAL_ENGINE_SERVER_PORT":
		response = h.getPort()
	case "WINDOW_CLOSED":
		response = h.windowClosed()
	case "STATUS":
		response = h.getStatus()
	case "LOGS":
		h.handleLogs(conn, parseCount(args, defaultHistoryLines))
		return
	case "HISTORY":
		response = h.getHistory(parseCount(args, defaultHistoryLines))
	case "VERSION":
		response = h.getVersion()
	default:
		response.AddMessage(fmt.Sprintf("Unknown command: %s", command), "ERROR")
	}

	conn.Write([]byte(response.ToJSON()))
}

// getPort answers the UI's port query; 0 means not yet allocated
func (h *Host) getPort() Response {
	response := Response{}
	port := h.port.Get()
	if port == 0 {
		response.AddMessage("Evaluation engine port not allocated yet", "WARN")
	} else {
		response.AddMessage("OK", "INFO")
	}
	response.AddData(PortData{Port: port})
	return response
}

func (h *Host) windowClosed() Response {
	response := Response{}
	if h.RequestShutdown("window closed") {
		response.AddMessage("Stopping evaluation engine...", "INFO")
	} else {
		response.AddMessage("Shutdown already requested", "WARN")
	}
	return response
}

func (h *Host) getStatus() Response {
	response := Response{}
	data := StatusData{
		RunID:             h.runID,
		Pid:               os.Getpid(),
		Port:              h.port.Get(),
		StartTime:         h.startTime.Format(time.RFC3339),
		ShutdownRequested: h.shutdown.IsShutdownRequested(),
	}

	sup := h.currentSupervisor()
	if sup == nil {
		response.AddMessage("Evaluation engine not started", "WARN")
		response.AddData(data)
		return response
	}

	st := sup.Snapshot()
	data.Engine = &st
	if st.Pid > 0 {
		data.Metrics = collectMetrics(st.Pid, st.Port)
	}
	response.AddMessage("OK", "INFO")
	response.AddData(data)
	return response
}

func (h *Host) getHistory(limit int) Response {
	response := Response{}

	database := h.db()
	if database == nil {
		response.AddMessage("Event journal is not available", "WARN")
		return response
	}

	events, err := database.GetRecentEvents(limit)
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read event journal: %v", err), "ERROR")
		return response
	}

	entries := make([]HistoryEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, HistoryEntry{
			Time:    e.Timestamp.Format(time.RFC3339),
			RunID:   e.RunID,
			Event:   e.EventType,
			Details: e.Details,
		})
	}
	response.AddMessage("OK", "INFO")
	response.AddData(entries)
	return response
}

func (h *Host) getVersion() Response {
	response := Response{}
	response.AddMessage("OK", "INFO")
	response.AddData(map[string]any{
		"version": core.Version,
		"pid":     os.Getpid(),
		"run_id":  h.runID,
	})
	return response
}

// parseCount reads an optional positive count argument
func parseCount(args []string, fallback int) int {
	if len(args) == 0 {
		return fallback
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
