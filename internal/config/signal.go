package config

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// signalsByName maps POSIX signal names (without the SIG prefix) onto their
// numbers. Names accepted in stopsignal; SIG-prefixed spellings also work.
var signalsByName = map[string]syscall.Signal{
	"HUP":    unix.SIGHUP,
	"INT":    unix.SIGINT,
	"QUIT":   unix.SIGQUIT,
	"ILL":    unix.SIGILL,
	"TRAP":   unix.SIGTRAP,
	"ABRT":   unix.SIGABRT,
	"BUS":    unix.SIGBUS,
	"FPE":    unix.SIGFPE,
	"KILL":   unix.SIGKILL,
	"USR1":   unix.SIGUSR1,
	"SEGV":   unix.SIGSEGV,
	"USR2":   unix.SIGUSR2,
	"PIPE":   unix.SIGPIPE,
	"ALRM":   unix.SIGALRM,
	"TERM":   unix.SIGTERM,
	"CHLD":   unix.SIGCHLD,
	"CONT":   unix.SIGCONT,
	"STOP":   unix.SIGSTOP,
	"TSTP":   unix.SIGTSTP,
	"TTIN":   unix.SIGTTIN,
	"TTOU":   unix.SIGTTOU,
	"URG":    unix.SIGURG,
	"XCPU":   unix.SIGXCPU,
	"XFSZ":   unix.SIGXFSZ,
	"VTALRM": unix.SIGVTALRM,
	"PROF":   unix.SIGPROF,
	"WINCH":  unix.SIGWINCH,
	"IO":     unix.SIGIO,
	"SYS":    unix.SIGSYS,
}

// SignalByName resolves a stopsignal name ("TERM", "SIGTERM") to a signal.
func SignalByName(name string) (syscall.Signal, error) {
	up := strings.ToUpper(strings.TrimSpace(name))
	if sig, ok := signalsByName[up]; ok {
		return sig, nil
	}
	if trimmed, ok := strings.CutPrefix(up, "SIG"); ok {
		if sig, ok := signalsByName[trimmed]; ok {
			return sig, nil
		}
	}
	return 0, fmt.Errorf("invalid signal name %q", name)
}
