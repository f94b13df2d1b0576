//go:build linux

package supervisor

import "syscall"

// sysProcAttr puts the backend in its own process group and asks the kernel
// to SIGTERM it if the shell dies first. Pdeathsig follows the forking OS
// thread rather than the process, so Run keeps its goroutine locked to one
// thread while it launches.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
