package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/data-forge-notebook/data-forge-notebook/internal/host"
	"github.com/data-forge-notebook/data-forge-notebook/internal/supervisor"
)

func TestFormatStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		status  host.StatusData
		want    []string
		notWant []string
	}{
		{
			name: "before allocation",
			status: host.StatusData{
				Pid:       100,
				StartTime: now.Add(-5 * time.Second).Format(time.RFC3339),
			},
			want: []string{"Shell (PID: 100, Age: 5s)", "Port:     not allocated", "Engine: not started"},
		},
		{
			name: "running engine",
			status: host.StatusData{
				Pid:  100,
				Port: 40001,
				Engine: &supervisor.Status{
					State:     supervisor.StateRunning,
					Port:      40001,
					Launches:  3,
					Restarts:  2,
					Pid:       200,
					StartTime: now.Add(-time.Minute),
					LastExit: &supervisor.ExitInfo{
						Pid:  199,
						Code: 1,
						Time: now.Add(-61 * time.Second),
					},
				},
				Metrics: &host.EngineMetrics{RSS: 50 * 1024 * 1024, CPUPercent: 2.5, Listening: true},
			},
			want: []string{
				"Port:     40001",
				"Engine: running",
				"PID:      200 (up 1m0s)",
				"Launches: 3 (restarts: 2)",
				"Memory:   50.0 MiB",
				"CPU:      2.5%",
				"Listening on port: yes",
				"Last exit: PID 199, code 1 (1m1s ago)",
			},
			notWant: []string{"Shutdown: requested", "not allocated"},
		},
		{
			name: "shutting down",
			status: host.StatusData{
				Pid:               100,
				Port:              40001,
				ShutdownRequested: true,
				Engine: &supervisor.Status{
					State:    supervisor.StateTerminal,
					Launches: 1,
					LastExit: &supervisor.ExitInfo{Pid: 200, Code: -1, Signal: "SIGTERM"},
				},
			},
			want:    []string{"Shutdown: requested", "Engine: terminal", "Last exit: PID 200, code -1, signal SIGTERM"},
			notWant: []string{"Memory:", "PID:      "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatStatus(&buf, tt.status, now)
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(out, notWant) {
					t.Errorf("output unexpectedly contains %q:\n%s", notWant, out)
				}
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
