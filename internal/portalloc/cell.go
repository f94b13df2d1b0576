package portalloc

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrAlreadySet is returned when a Cell is assigned a second time
var ErrAlreadySet = errors.New("port already allocated")

// Cell holds the allocated port for the lifetime of a run. It is written once
// and read from any goroutine; the zero value reads as 0, meaning not yet
// allocated.
type Cell struct {
	port atomic.Uint32
}

// Set stores port if no port has been stored yet
func (c *Cell) Set(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidRange, port)
	}
	if !c.port.CompareAndSwap(0, uint32(port)) {
		return fmt.Errorf("%w: %d", ErrAlreadySet, c.port.Load())
	}
	return nil
}

// Get returns the allocated port, or 0 before allocation
func (c *Cell) Get() int {
	return int(c.port.Load())
}
