package host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

const defaultUIPollInterval = 2 * time.Second

// UIMonitor watches the UI process and reports when it disappears, which the
// shell treats the same as the window closing
type UIMonitor struct {
	pid      int
	interval time.Duration
	onGone   func()
}

// NewUIMonitor creates a monitor for pid calling onGone once it is gone
func NewUIMonitor(pid int, interval time.Duration, onGone func()) *UIMonitor {
	if interval <= 0 {
		interval = defaultUIPollInterval
	}
	return &UIMonitor{pid: pid, interval: interval, onGone: onGone}
}

// Start polls in the background until ctx is cancelled or the process is gone
func (m *UIMonitor) Start(ctx context.Context) {
	slog.Info("Monitoring UI process", "pid", m.pid, "interval", m.interval)
	go m.poll(ctx)
}

func (m *UIMonitor) poll(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("UI monitor stopping")
			return
		case <-ticker.C:
			if processAlive(m.pid) {
				continue
			}
			slog.Info("UI process is gone", "pid", m.pid)
			m.onGone()
			return
		}
	}
}

// processAlive probes pid with signal 0; EPERM still means it exists
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
