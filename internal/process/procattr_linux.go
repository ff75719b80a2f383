//go:build linux

package process

import "syscall"

// sysProcAttr makes the child a fresh session leader and asks the kernel to
// SIGKILL it should the daemon die first.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid:    true,
		Pdeathsig: syscall.SIGKILL,
	}
}
