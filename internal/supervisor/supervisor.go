// Package supervisor launches the evaluation engine on the allocated port,
// relays its output and relaunches it whenever it exits before shutdown has
// been requested.
//
// The lifecycle is one explicit loop:
//
//	Launching -> Running -> Exited -> Relaunching -> Launching ...
//	                                \-> Terminal (shutdown requested)
//
// Relaunching is immediate and unlimited. A backend that dies on every start
// therefore restarts in a tight loop; that is the documented policy, kept so
// the engine stays available whenever it can start at all.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ShutdownFlag is read after every backend exit to decide whether to relaunch
type ShutdownFlag interface {
	IsShutdownRequested() bool
}

// Supervisor owns the backend process for one shell run
type Supervisor struct {
	port     int
	shutdown ShutdownFlag
	sink     io.Writer

	mu       sync.RWMutex
	template LaunchTemplate
	state    State
	current  *Process
	launches int
	lastExit *ExitInfo
	logEvent func(eventType, details string) error // Callback to journal lifecycle events

	running  atomic.Bool
	finished chan struct{}
}

// New creates a supervisor that will launch t with port injected. Forwarded
// output is written to sink one line per event.
func New(t LaunchTemplate, port int, flag ShutdownFlag, sink io.Writer) *Supervisor {
	if sink == nil {
		sink = io.Discard
	}
	return &Supervisor{
		port:     port,
		shutdown: flag,
		sink:     sink,
		template: cloneTemplate(t),
		state:    StateIdle,
		finished: make(chan struct{}),
	}
}

// SetEventLogger sets the callback for journalling lifecycle events
func (s *Supervisor) SetEventLogger(logger func(eventType, details string) error) {
	s.mu.Lock()
	s.logEvent = logger
	s.mu.Unlock()
}

// SetTemplate replaces the launch template. It takes effect on the next
// launch; the port is never part of the template and does not change.
func (s *Supervisor) SetTemplate(t LaunchTemplate) {
	s.mu.Lock()
	s.template = cloneTemplate(t)
	s.mu.Unlock()
}

// Port returns the port injected into every launch
func (s *Supervisor) Port() int {
	return s.port
}

// Snapshot returns the current state
func (s *Supervisor) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:    s.state,
		Port:     s.port,
		Launches: s.launches,
	}
	if s.launches > 0 {
		st.Restarts = s.launches - 1
	}
	if s.current != nil {
		st.Pid = s.current.Pid
		st.StartTime = s.current.StartTime
	}
	if s.lastExit != nil {
		exit := *s.lastExit
		st.LastExit = &exit
	}
	return st
}

// Finished is closed when Run returns
func (s *Supervisor) Finished() <-chan struct{} {
	return s.finished
}

// Run launches the backend and supervises it until it exits after shutdown
// was requested, returning nil. A launch that fails to spawn returns an error
// wrapping ErrSpawnFailure; spawn failures are never retried.
func (s *Supervisor) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("supervisor is already running")
	}
	defer close(s.finished)

	// Every launch forks from this thread so the Linux parent-death signal
	// stays tied to it for as long as Run supervises
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		s.setState(StateLaunching)
		proc, err := s.launch()
		if err != nil {
			s.setState(StateTerminal)
			slog.Error("Failed to start evaluation engine", "error", err)
			s.journal("spawn_failure", err.Error())
			return err
		}

		s.setState(StateRunning)
		Relay(proc.events, s.sink, s.observe)
		exit := proc.reap()
		s.recordExit(exit)

		if s.shutdown.IsShutdownRequested() {
			slog.Info("Evaluation engine terminated.", exitAttrs(exit)...)
			s.journal("terminal", describeExit(exit))
			s.setState(StateTerminal)
			return nil
		}

		slog.Warn("Evaluation engine terminated unexpectedly.", exitAttrs(exit)...)
		s.journal("exit", describeExit(exit))

		s.setState(StateRelaunching)
		slog.Info("Restarting evaluation engine.", "port", s.port)
		s.journal("restart", fmt.Sprintf("port %d", s.port))
	}
}

// launch starts a fresh backend process from the current template
func (s *Supervisor) launch() (*Process, error) {
	s.mu.RLock()
	t := cloneTemplate(s.template)
	s.mu.RUnlock()

	slog.Info("Starting evaluation engine",
		"command", strings.Join(append([]string{t.Executable}, t.Args...), " "),
		"dir", t.Dir,
		"port", s.port)

	proc, err := startProcess(t, s.port)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = proc
	s.launches++
	launches := s.launches
	s.mu.Unlock()

	slog.Info("Evaluation engine started", "pid", proc.Pid, "port", s.port, "launch", launches)
	s.journal("launch", fmt.Sprintf("PID: %d, port: %d, launch: %d", proc.Pid, s.port, launches))
	return proc, nil
}

// observe flags fatal runtime errors as they pass through the relay
func (s *Supervisor) observe(ev OutputEvent) {
	if ev.Stream != Stderr || !IsFatalErrorLine(ev.Line) {
		return
	}
	slog.Error("Detected fatal error in evaluation engine", "line", ev.Line)
	s.journal("fatal_error", ev.Line)
}

func (s *Supervisor) recordExit(exit ExitInfo) {
	s.mu.Lock()
	s.state = StateExited
	s.current = nil
	s.lastExit = &exit
	s.mu.Unlock()
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) currentProcess() *Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Supervisor) journal(eventType, details string) {
	s.mu.RLock()
	logEvent := s.logEvent
	s.mu.RUnlock()

	if logEvent == nil {
		return
	}
	if err := logEvent(eventType, details); err != nil {
		slog.Error("Failed to log supervisor event", "event", eventType, "error", err)
	}
}

// Terminate stops the running backend with SIGTERM, escalating to SIGKILL
// after grace, and waits for Run to return. Request shutdown first, or the
// supervisor will simply relaunch the backend.
func (s *Supervisor) Terminate(grace time.Duration) error {
	if !s.running.Load() {
		return nil
	}

	// A relaunch that raced the shutdown request gets stopped on the next pass
	for range 3 {
		if proc := s.currentProcess(); proc != nil {
			slog.Info("Stopping evaluation engine", "pid", proc.Pid)
			if err := proc.stop(grace); err != nil {
				return err
			}
		}
		select {
		case <-s.finished:
			return nil
		case <-time.After(grace):
		}
	}
	return errors.New("supervisor did not stop after shutdown")
}

// RunPreflight runs argv once in dir and returns its combined output. A
// failure wraps ErrSpawnFailure.
func RunPreflight(argv []string, dir string) (string, error) {
	if len(argv) == 0 {
		return "", nil
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("%w: preflight %q: %w", ErrSpawnFailure, strings.Join(argv, " "), err)
	}
	return output, nil
}

func cloneTemplate(t LaunchTemplate) LaunchTemplate {
	c := t
	c.Args = slices.Clone(t.Args)
	if t.Environment != nil {
		c.Environment = maps.Clone(t.Environment)
	}
	return c
}

func exitAttrs(exit ExitInfo) []any {
	attrs := []any{"pid", exit.Pid, "code", exit.Code}
	if exit.Signal != "" {
		attrs = append(attrs, "signal", exit.Signal)
	}
	if exit.Error != "" {
		attrs = append(attrs, "error", exit.Error)
	}
	return attrs
}

func describeExit(exit ExitInfo) string {
	details := fmt.Sprintf("PID: %d, exit code %d", exit.Pid, exit.Code)
	if exit.Signal != "" {
		details += ", signal " + exit.Signal
	}
	if exit.Error != "" {
		details += ", error: " + exit.Error
	}
	return details
}
