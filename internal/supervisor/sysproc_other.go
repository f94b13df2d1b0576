//go:build !linux

package supervisor

import "syscall"

// sysProcAttr puts the backend in its own process group. There is no parent
// death signal outside Linux; the shell terminates the backend on exit.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
