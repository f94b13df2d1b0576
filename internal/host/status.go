package host

import (
	"log/slog"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/data-forge-notebook/data-forge-notebook/internal/supervisor"
)

// PortData is the payload of GET_EVAL_ENGINE_SERVER_PORT
type PortData struct {
	Port int `json:"port"`
}

// StatusData is the payload of STATUS
type StatusData struct {
	RunID             string             `json:"run_id"`
	Pid               int                `json:"pid"`
	Port              int                `json:"port"`
	StartTime         string             `json:"start_time"`
	ShutdownRequested bool               `json:"shutdown_requested"`
	Engine            *supervisor.Status `json:"engine,omitempty"`
	Metrics           *EngineMetrics     `json:"metrics,omitempty"`
}

// EngineMetrics describes the running engine process
type EngineMetrics struct {
	RSS        uint64  `json:"rss"`
	CPUPercent float64 `json:"cpu_percent"`
	Listening  bool    `json:"listening"` // Engine has a LISTEN socket on the allocated port
}

// collectMetrics reads resource usage and listening state of pid. It returns
// nil when the process cannot be inspected.
func collectMetrics(pid, port int) *EngineMetrics {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		slog.Debug("Failed to inspect engine process", "pid", pid, "error", err)
		return nil
	}

	m := &EngineMetrics{}
	if mem, err := proc.MemoryInfo(); err == nil {
		m.RSS = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		m.CPUPercent = cpu
	}
	m.Listening = isListening(pid, port)
	return m
}

// isListening checks whether pid or one of its children listens on port
func isListening(pid, port int) bool {
	pids := []int32{int32(pid)}
	if proc, err := process.NewProcess(int32(pid)); err == nil {
		if children, err := proc.Children(); err == nil {
			for _, c := range children {
				pids = append(pids, c.Pid)
			}
		}
	}

	for _, p := range pids {
		conns, err := psnet.ConnectionsPid("tcp", p)
		if err != nil {
			slog.Debug("Failed to get connections for PID", "pid", p, "error", err)
			continue
		}
		for _, conn := range conns {
			if conn.Status == "LISTEN" && int(conn.Laddr.Port) == port {
				return true
			}
		}
	}
	return false
}
