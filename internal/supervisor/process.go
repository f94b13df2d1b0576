package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Process is one launch of the backend. A new Process replaces the previous
// one on every restart.
type Process struct {
	Executable  string
	Args        []string
	Dir         string
	Environment map[string]string
	Pid         int
	StartTime   time.Time

	cmd    *exec.Cmd
	events <-chan OutputEvent
	done   chan struct{}
}

// startProcess spawns the backend described by t with port injected into its
// environment
func startProcess(t LaunchTemplate, port int) (*Process, error) {
	env := BuildEnvironment(t, port)

	cmd := exec.Command(t.Executable, t.Args...)
	cmd.Dir = t.Dir
	cmd.Env = environ(os.Environ(), env)
	cmd.SysProcAttr = sysProcAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating stdout pipe: %w", ErrSpawnFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating stderr pipe: %w", ErrSpawnFailure, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailure, t.Executable, err)
	}

	return &Process{
		Executable:  t.Executable,
		Args:        slices.Clone(t.Args),
		Dir:         t.Dir,
		Environment: env,
		Pid:         cmd.Process.Pid,
		StartTime:   time.Now(),
		cmd:         cmd,
		events:      Merge(stdout, stderr),
		done:        make(chan struct{}),
	}, nil
}

// reap waits for the process after its output streams have closed. It must
// not be called before the events channel is drained.
func (p *Process) reap() ExitInfo {
	err := p.cmd.Wait()

	info := ExitInfo{Pid: p.Pid, Time: time.Now()}
	if ps := p.cmd.ProcessState; ps != nil {
		info.Code = ps.ExitCode()
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			info.Signal = unix.SignalName(ws.Signal())
		}
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		info.Error = err.Error()
	}

	close(p.done)
	return info
}

// signalGroup signals the backend's process group, falling back to the
// process itself
func signalGroup(pid int, sig syscall.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil {
		return unix.Kill(pid, sig)
	}
	return nil
}

// stop sends SIGTERM and escalates to SIGKILL after grace
func (p *Process) stop(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := signalGroup(p.Pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to signal backend pid %d: %w", p.Pid, err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	signalGroup(p.Pid, unix.SIGKILL)

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("backend pid %d did not exit after SIGKILL", p.Pid)
	}
}
