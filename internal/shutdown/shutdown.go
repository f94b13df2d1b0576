// Package shutdown holds the one-shot flag that suppresses backend restarts
// once the shell window is closing.
package shutdown

import "sync/atomic"

// Coordinator is a monotonic shutdown flag. Once requested it never resets.
type Coordinator struct {
	requested atomic.Bool
	done      chan struct{}
}

// New creates a coordinator with the flag cleared
func New() *Coordinator {
	return &Coordinator{done: make(chan struct{})}
}

// RequestShutdown sets the flag. It reports whether this call was the one
// that set it; later calls are no-ops.
func (c *Coordinator) RequestShutdown() bool {
	if !c.requested.CompareAndSwap(false, true) {
		return false
	}
	close(c.done)
	return true
}

// IsShutdownRequested returns the current flag value
func (c *Coordinator) IsShutdownRequested() bool {
	return c.requested.Load()
}

// Done is closed when shutdown is first requested
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}
