package host

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/data-forge-notebook/data-forge-notebook/internal/db"
	"github.com/data-forge-notebook/data-forge-notebook/internal/shutdown"
	"github.com/data-forge-notebook/data-forge-notebook/internal/supervisor"
)

// sendIPCCommand sends a command string to handleConnection via net.Pipe
// and reads back the JSON response.
func sendIPCCommand(t *testing.T, h *Host, command string) Response {
	t.Helper()

	clientConn, serverConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.handleConnection(serverConn)
	}()

	if _, err := clientConn.Write([]byte(command + "\n")); err != nil {
		t.Fatalf("failed to write command: %v", err)
	}

	data, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	clientConn.Close()
	<-done

	var resp Response
	if len(data) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("failed to parse response JSON %q: %v", string(data), err)
		}
	}
	return resp
}

func firstStatus(t *testing.T, resp Response) string {
	t.Helper()
	if len(resp.Messages) == 0 {
		t.Fatal("expected at least one message")
	}
	return resp.Messages[0].Status
}

func TestIPC_PortBeforeAllocation(t *testing.T) {
	quietLogger(t)
	h := newTestHost(t)

	resp := sendIPCCommand(t, h, "GET_EVAL_ENGINE_SERVER_PORT")

	if status := firstStatus(t, resp); status != "WARN" {
		t.Errorf("expected WARN before allocation, got %s", status)
	}
	var data PortData
	if err := resp.DecodeData(&data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if data.Port != 0 {
		t.Errorf("expected port 0 before allocation, got %d", data.Port)
	}
}

func TestIPC_PortAfterAllocation(t *testing.T) {
	quietLogger(t)
	h := newTestHost(t)
	h.allocate = func(start, end int) (int, error) { return 40007, nil }

	port, err := h.allocatePort()
	if err != nil {
		t.Fatalf("allocatePort failed: %v", err)
	}
	if port != 40007 {
		t.Fatalf("expected 40007, got %d", port)
	}

	for range 3 {
		resp := sendIPCCommand(t, h, "GET_EVAL_ENGINE_SERVER_PORT")
		if status := firstStatus(t, resp); status != "INFO" {
			t.Errorf("expected INFO after allocation, got %s", status)
		}
		var data PortData
		if err := resp.DecodeData(&data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
		if data.Port != 40007 {
			t.Errorf("expected port 40007, got %d", data.Port)
		}
	}
}

func TestIPC_WindowClosedIsIdempotent(t *testing.T) {
	quietLogger(t)
	h := newTestHost(t)

	first := sendIPCCommand(t, h, "WINDOW_CLOSED")
	if status := firstStatus(t, first); status != "INFO" {
		t.Errorf("expected INFO on first close, got %s", status)
	}
	if !h.shutdown.IsShutdownRequested() {
		t.Fatal("expected shutdown to be requested")
	}

	second := sendIPCCommand(t, h, "WINDOW_CLOSED")
	if status := firstStatus(t, second); status != "WARN" {
		t.Errorf("expected WARN on second close, got %s", status)
	}
	if !h.shutdown.IsShutdownRequested() {
		t.Error("expected shutdown to stay requested")
	}

	select {
	case <-h.shutdown.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestIPC_UnknownAndEmptyCommands(t *testing.T) {
	quietLogger(t)
	h := newTestHost(t)

	resp := sendIPCCommand(t, h, "FOOBAR")
	if status := firstStatus(t, resp); status != "ERROR" {
		t.Errorf("expected ERROR, got %s", status)
	}
	if resp.Messages[0].Message != "Unknown command: FOOBAR" {
		t.Errorf("unexpected message %q", resp.Messages[0].Message)
	}

	empty := sendIPCCommand(t, h, "   ")
	if len(empty.Messages) != 0 {
		t.Errorf("expected no response for an empty line, got %+v", empty)
	}
}

func TestIPC_StatusWithoutSupervisor(t *testing.T) {
	quietLogger(t)
	h := newTestHost(t)

	resp := sendIPCCommand(t, h, "STATUS")
	if status := firstStatus(t, resp); status != "WARN" {
		t.Errorf("expected WARN, got %s", status)
	}
	var data StatusData
	if err := resp.DecodeData(&data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if data.RunID != h.RunID() {
		t.Errorf("expected run id %q, got %q", h.RunID(), data.RunID)
	}
	if data.Pid != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), data.Pid)
	}
	if data.Engine != nil {
		t.Error("expected no engine status before launch")
	}
}

func TestIPC_StatusWithSupervisor(t *testing.T) {
	quietLogger(t)
	h := newTestHost(t)
	h.port.Set(40011)
	h.supervisor = supervisor.New(supervisor.LaunchTemplate{Executable: "/bin/true"}, 40011, shutdown.New(), nil)

	resp := sendIPCCommand(t, h, "STATUS")
	if status := firstStatus(t, resp); status != "INFO" {
		t.Errorf("expected INFO, got %s", status)
	}
	var data StatusData
	if err := resp.DecodeData(&data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if data.Port != 40011 {
		t.Errorf("expected port 40011, got %d", data.Port)
	}
	if data.Engine == nil || data.Engine.State != supervisor.StateIdle {
		t.Errorf("expected idle engine status, got %+v", data.Engine)
	}
	if data.Metrics != nil {
		t.Error("expected no metrics without a running engine")
	}
}

func TestIPC_History(t *testing.T) {
	quietLogger(t)
	h := newTestHost(t)

	resp := sendIPCCommand(t, h, "HISTORY")
	if status := firstStatus(t, resp); status != "WARN" {
		t.Errorf("expected WARN without a database, got %s", status)
	}

	database, err := db.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	h.database = database

	h.logEvent("port_allocated", "port 40000")
	h.logEvent("launch", "PID: 1")
	h.logEvent("exit", "PID: 1, exit code 1")

	resp = sendIPCCommand(t, h, "HISTORY 2")
	if status := firstStatus(t, resp); status != "INFO" {
		t.Fatalf("expected INFO, got %s", status)
	}
	var entries []HistoryEntry
	if err := resp.DecodeData(&entries); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Event != "exit" || entries[1].Event != "launch" {
		t.Errorf("expected newest first, got %+v", entries)
	}
	if entries[0].RunID != h.RunID() {
		t.Errorf("expected run id %q, got %q", h.RunID(), entries[0].RunID)
	}
}

func TestIPC_Version(t *testing.T) {
	quietLogger(t)
	h := newTestHost(t)

	resp := sendIPCCommand(t, h, "VERSION")
	if status := firstStatus(t, resp); status != "INFO" {
		t.Errorf("expected INFO, got %s", status)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %T", resp.Data)
	}
	if data["run_id"] != h.RunID() {
		t.Errorf("expected run id %q, got %v", h.RunID(), data["run_id"])
	}
	if _, ok := data["version"]; !ok {
		t.Error("expected version field")
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		args []string
		want int
	}{
		{nil, 20},
		{[]string{"5"}, 5},
		{[]string{"0"}, 20},
		{[]string{"-3"}, 20},
		{[]string{"many"}, 20},
	}
	for _, tt := range tests {
		if got := parseCount(tt.args, 20); got != tt.want {
			t.Errorf("parseCount(%v) = %d, want %d", tt.args, got, tt.want)
		}
	}
}
