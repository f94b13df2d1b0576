package supervisor

import (
	"errors"
	"time"
)

// ErrSpawnFailure wraps errors from starting the backend executable
var ErrSpawnFailure = errors.New("failed to spawn backend")

// DefaultPortVariable is the environment variable the backend reads its port from
const DefaultPortVariable = "PORT"

// State is the supervisor's lifecycle state
type State string

const (
	StateIdle        State = "idle"
	StateLaunching   State = "launching"
	StateRunning     State = "running"
	StateExited      State = "exited"
	StateRelaunching State = "relaunching"
	StateTerminal    State = "terminal"
)

// Stream identifies the child stream an output event came from
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// OutputEvent is one line of child output
type OutputEvent struct {
	Stream Stream
	Line   string
}

// LaunchTemplate is everything needed to start the backend except the port,
// which the supervisor injects on every launch
type LaunchTemplate struct {
	Executable   string            // Runtime executable
	Args         []string          // Runtime arguments followed by the entry point
	Dir          string            // Working directory
	Environment  map[string]string // Extra environment variables
	PortVariable string            // Name of the variable carrying the port
}

// ExitInfo describes how a backend process ended
type ExitInfo struct {
	Pid    int       `json:"pid"`
	Code   int       `json:"code"`
	Signal string    `json:"signal,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// Status is a point-in-time view of the supervisor
type Status struct {
	State     State     `json:"state"`
	Port      int       `json:"port"`
	Launches  int       `json:"launches"`
	Restarts  int       `json:"restarts"`
	Pid       int       `json:"pid,omitempty"`
	StartTime time.Time `json:"start_time,omitzero"`
	LastExit  *ExitInfo `json:"last_exit,omitempty"`
}
