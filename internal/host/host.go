// Package host runs the shell core. It allocates the evaluation engine port,
// keeps the engine running under a supervisor and serves the UI layer over a
// unix socket until the window closes.
package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/data-forge-notebook/data-forge-notebook/internal/core"
	"github.com/data-forge-notebook/data-forge-notebook/internal/db"
	"github.com/data-forge-notebook/data-forge-notebook/internal/portalloc"
	"github.com/data-forge-notebook/data-forge-notebook/internal/shutdown"
	"github.com/data-forge-notebook/data-forge-notebook/internal/supervisor"
)

// Host is one run of the shell
type Host struct {
	runID        string
	startTime    time.Time
	port         portalloc.Cell
	shutdown     *shutdown.Coordinator
	logBroadcast *LogBroadcaster
	allocate     func(start, end int) (int, error)
	stdout       io.Writer // Relayed engine output
	stderr       io.Writer // Shell log records

	mu         sync.RWMutex
	cfg        *core.Configuration
	database   *db.DB
	supervisor *supervisor.Supervisor

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a host for cfg. Nothing is started until Run.
func New(cfg *core.Configuration) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		runID:        uuid.NewString(),
		startTime:    time.Now(),
		shutdown:     shutdown.New(),
		logBroadcast: NewLogBroadcaster(cfg.Logs.HistorySize),
		allocate:     portalloc.Allocate,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		cfg:          cfg,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RunID identifies this run in the journal
func (h *Host) RunID() string {
	return h.runID
}

// Port returns the allocated engine port, or 0 before allocation
func (h *Host) Port() int {
	return h.port.Get()
}

// RequestShutdown is the window-close event. It reports whether this call
// was the one that requested shutdown.
func (h *Host) RequestShutdown(reason string) bool {
	if !h.shutdown.RequestShutdown() {
		slog.Debug("Shutdown already requested", "reason", reason)
		return false
	}
	slog.Info("Shutdown requested", "reason", reason)
	if err := h.logEvent("shutdown", reason); err != nil {
		slog.Error("Failed to log shutdown event", "error", err)
	}
	return true
}

// Run starts the shell and blocks until the engine has stopped after a
// window close, or until a fatal error: no free port, or an engine that
// cannot be spawned.
func (h *Host) Run() error {
	defer h.cancel()
	h.setupLogging()

	slog.Info("Starting evalshell",
		"version", core.FormatVersion(core.Version),
		"pid", os.Getpid(),
		"run_id", h.runID)

	h.openDatabase()
	defer h.closeDatabase()

	listener, err := h.listen()
	if err != nil {
		return err
	}
	socketPath := h.config().SocketPath()
	pidFilePath := h.config().PIDFilePath()
	if err := os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		slog.Warn("Failed to write PID file", "path", pidFilePath, "error", err)
	}
	defer os.Remove(pidFilePath)
	defer os.Remove(socketPath)
	defer listener.Close()

	slog.Info("Shell listening", "socket", socketPath)
	go h.acceptLoop(listener)

	h.handleSignals()
	if pid := h.config().UI.MonitorPID; pid > 0 {
		NewUIMonitor(pid, defaultUIPollInterval, func() {
			h.RequestShutdown(fmt.Sprintf("UI process %d exited", pid))
		}).Start(h.ctx)
	}

	port, err := h.allocatePort()
	if err != nil {
		return err
	}

	if err := h.preflight(); err != nil {
		return err
	}

	sup := supervisor.New(BuildLaunchTemplate(h.config().Backend), port, h.shutdown, h.outputSink())
	sup.SetEventLogger(h.logEvent)
	h.mu.Lock()
	h.supervisor = sup
	h.mu.Unlock()

	h.startConfigWatcher()

	return h.supervise(sup)
}

// supervise runs the supervisor and, once shutdown is requested, stops the
// engine so it does not outlive the shell
func (h *Host) supervise(sup *supervisor.Supervisor) error {
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run() }()

	select {
	case err := <-errCh:
		return h.finish(err)
	case <-h.shutdown.Done():
	}

	grace := h.config().Backend.StopTimeout
	for {
		if err := sup.Terminate(grace); err != nil {
			slog.Error("Failed to stop evaluation engine", "error", err)
		}
		select {
		case <-sup.Finished():
			return h.finish(<-errCh)
		case <-time.After(100 * time.Millisecond):
			// Run had not launched yet when Terminate looked
		}
	}
}

func (h *Host) finish(err error) error {
	if err != nil {
		slog.Error("Shell stopping on fatal error", "error", err)
		return err
	}
	slog.Info("Shell stopped")
	return nil
}

// allocatePort picks the engine port once for the whole run
func (h *Host) allocatePort() (int, error) {
	portCfg := h.config().Port
	port, err := h.allocate(portCfg.RangeStart, portCfg.RangeEnd)
	if err != nil {
		slog.Error("No port available for the evaluation engine",
			"range_start", portCfg.RangeStart,
			"range_end", portCfg.RangeEnd)
		h.logEvent("port_unavailable", err.Error())
		return 0, fmt.Errorf("failed to allocate evaluation engine port in [%d, %d): %w",
			portCfg.RangeStart, portCfg.RangeEnd, err)
	}
	if err := h.port.Set(port); err != nil {
		return 0, err
	}

	slog.Info("Allocated evaluation engine port", "port", port)
	if err := h.logEvent("port_allocated", fmt.Sprintf("port %d", port)); err != nil {
		slog.Error("Failed to log port allocation", "error", err)
	}
	if database := h.db(); database != nil {
		if err := database.SetRunPort(h.runID, port); err != nil {
			slog.Error("Failed to record run port", "error", err)
		}
	}
	return port, nil
}

// preflight runs the configured preflight command once; failure is fatal
func (h *Host) preflight() error {
	backend := h.config().Backend
	argv := backend.PreflightCommand()
	if len(argv) == 0 {
		return nil
	}

	slog.Info("Running preflight command", "command", strings.Join(argv, " "))
	output, err := supervisor.RunPreflight(argv, backend.EngineDirPath())
	if output != "" {
		slog.Info("Preflight output", "output", output)
	}
	if err != nil {
		slog.Error("Preflight command failed", "error", err)
		h.logEvent("spawn_failure", err.Error())
		return err
	}
	return nil
}

// listen creates the IPC socket, replacing a stale one left by a crashed run
func (h *Host) listen() (net.Listener, error) {
	cfg := h.config()
	if err := os.MkdirAll(cfg.ConfigPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	socketPath := cfg.SocketPath()

	listener, err := net.Listen("unix", socketPath)
	if err == nil {
		return listener, nil
	}
	if _, statErr := os.Stat(socketPath); statErr != nil {
		return nil, fmt.Errorf("could not create socket listener: %w", err)
	}

	if conn, dialErr := net.Dial("unix", socketPath); dialErr == nil {
		conn.Close()
		return nil, fmt.Errorf("evalshell is already running (socket %s)", socketPath)
	}

	slog.Info("Removing stale socket file", "path", socketPath)
	if err := os.Remove(socketPath); err != nil {
		return nil, fmt.Errorf("could not remove stale socket: %w", err)
	}
	listener, err = net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("could not create socket listener: %w", err)
	}
	return listener, nil
}

// handleSignals treats SIGINT and SIGTERM as the window closing
func (h *Host) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("Shutdown signal received", "signal", sig.String())
			h.RequestShutdown("signal " + sig.String())
		case <-h.ctx.Done():
		}
	}()
}

func (h *Host) startConfigWatcher() {
	configPath := h.config().ConfigFilePath()
	if !core.ConfigExists(configPath) {
		slog.Debug("No configuration file to watch", "path", configPath)
		return
	}
	if err := watchConfig(h.ctx, configPath, h.reloadConfig); err != nil {
		slog.Error("Failed to watch config file", "error", err, "path", configPath)
		return
	}
	slog.Info("Watching configuration file for changes", "file", configPath)
}

// reloadConfig re-reads the configuration file. Launch settings apply on the
// next engine launch; the allocated port stays.
func (h *Host) reloadConfig() {
	old := h.config()

	newCfg, err := core.LoadConfig(old.ConfigFilePath())
	if err != nil {
		slog.Error("Configuration file has errors, keeping previous configuration",
			"file", old.ConfigFilePath(),
			"error", err)
		return
	}
	if err := newCfg.ApplyEnvironment(); err != nil {
		slog.Error("Failed to apply environment overrides, keeping previous configuration", "error", err)
		return
	}
	newCfg.ConfigPath = old.ConfigPath
	newCfg.Verbose = old.Verbose

	if newCfg.Port != old.Port {
		slog.Warn("Port range changes take effect on the next run",
			"range_start", newCfg.Port.RangeStart,
			"range_end", newCfg.Port.RangeEnd)
	}

	h.mu.Lock()
	h.cfg = newCfg
	sup := h.supervisor
	h.mu.Unlock()

	if sup != nil {
		sup.SetTemplate(BuildLaunchTemplate(newCfg.Backend))
	}
	slog.Info("Configuration reloaded, launch settings apply on next engine launch")
	h.logEvent("config_reload", old.ConfigFilePath())
}

func (h *Host) openDatabase() {
	dbPath := h.config().DatabasePath()
	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", dbPath)
		return
	}
	slog.Debug("Database opened", "path", dbPath)

	if err := database.StartRun(h.runID, os.Getpid(), core.FormatVersion(core.Version)); err != nil {
		slog.Error("Failed to record run start", "error", err)
	}

	h.mu.Lock()
	h.database = database
	h.mu.Unlock()
}

func (h *Host) closeDatabase() {
	h.mu.Lock()
	database := h.database
	h.database = nil
	h.mu.Unlock()

	if database == nil {
		return
	}
	if err := database.EndRun(h.runID); err != nil {
		slog.Error("Failed to record run end", "error", err)
	}
	if err := database.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// logEvent journals a lifecycle event for this run; without a database it is a no-op
func (h *Host) logEvent(eventType, details string) error {
	database := h.db()
	if database == nil {
		return nil
	}
	return database.LogEvent(h.runID, eventType, details)
}

func (h *Host) config() *core.Configuration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *Host) db() *db.DB {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.database
}

func (h *Host) currentSupervisor() *supervisor.Supervisor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.supervisor
}
