// Package portalloc picks the local TCP port the backend is told to listen on.
//
// The scan binds each candidate on loopback and releases it immediately, so
// another process may still claim the port before the backend binds it. That
// race surfaces as a backend startup failure and is not retried here.
package portalloc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

const (
	DefaultRangeStart = 40000
	DefaultRangeEnd   = 65535 // exclusive
)

var (
	// ErrNoPortAvailable means every port in the range failed to bind
	ErrNoPortAvailable = errors.New("no port available")

	// ErrInvalidRange means the range falls outside 1..65535
	ErrInvalidRange = errors.New("invalid port range")
)

// Prober reports whether a port can currently be bound
type Prober func(port int) bool

// IsAvailable tries to bind a TCP listener on 127.0.0.1:port and releases it
func IsAvailable(port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// Allocator scans a port range with a Prober
type Allocator struct {
	Probe Prober // nil means IsAvailable
}

// Allocate returns the first port in [start, end) that binds, scanning in
// ascending order
func (a Allocator) Allocate(start, end int) (int, error) {
	if start < 1 || end > 65536 || start > end {
		return 0, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}

	probe := a.Probe
	if probe == nil {
		probe = IsAvailable
	}

	for port := start; port < end; port++ {
		if probe(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w in [%d, %d)", ErrNoPortAvailable, start, end)
}

// Allocate scans [start, end) on loopback
func Allocate(start, end int) (int, error) {
	return Allocator{}.Allocate(start, end)
}
