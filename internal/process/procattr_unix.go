//go:build unix && !linux

package process

import "syscall"

// sysProcAttr makes the child a fresh session leader. Parent-death signals
// are a Linux facility; other platforms rely on the shutdown sequence.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
