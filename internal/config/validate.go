package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/rodmena-limited/supervice/internal/health"
)

// ValidationError reports a configuration problem rejected at the boundary:
// the daemon exits on startup, reload returns it without applying anything.
type ValidationError struct {
	Program string
	Field   string
	Msg     string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Program != "" && e.Field != "":
		return fmt.Sprintf("program %q: %s: %s", e.Program, e.Field, e.Msg)
	case e.Program != "":
		return fmt.Sprintf("program %q: %s", e.Program, e.Msg)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	default:
		return e.Msg
	}
}

func validateProgram(p Program) error {
	if err := nonNegative(p.Name, "numprocs", p.NumProcs); err != nil {
		return err
	}
	if p.NumProcs == 0 {
		return &ValidationError{Program: p.Name, Field: "numprocs", Msg: "must be at least 1"}
	}
	if p.StartSecs < 0 {
		return &ValidationError{Program: p.Name, Field: "startsecs", Msg: "must be non-negative"}
	}
	if err := nonNegative(p.Name, "startretries", p.StartRetries); err != nil {
		return err
	}
	if p.StopWaitSecs < 0 {
		return &ValidationError{Program: p.Name, Field: "stopwaitsecs", Msg: "must be non-negative"}
	}

	if _, err := SignalByName(p.StopSignal); err != nil {
		return &ValidationError{Program: p.Name, Field: "stopsignal", Msg: err.Error()}
	}

	if p.User != "" {
		if _, err := user.Lookup(p.User); err != nil {
			return &ValidationError{Program: p.Name, Field: "user",
				Msg: fmt.Sprintf("user %q does not exist", p.User)}
		}
	}

	if p.Directory != "" {
		if err := validateDirectory(p.Name, p.Directory); err != nil {
			return err
		}
	}

	if p.StdoutLogfile != "" {
		if err := validateLogfilePath(p.Name, p.StdoutLogfile); err != nil {
			return err
		}
	}
	if p.StderrLogfile != "" {
		if err := validateLogfilePath(p.Name, p.StderrLogfile); err != nil {
			return err
		}
	}

	if p.Health.Type != health.TypeNone {
		if err := validateHealthCheck(p.Name, p.Health); err != nil {
			return err
		}
	}
	return nil
}

func validateDirectory(prog, dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return &ValidationError{Program: prog, Field: "directory",
			Msg: fmt.Sprintf("%q does not exist", dir)}
	}
	if !fi.IsDir() {
		return &ValidationError{Program: prog, Field: "directory",
			Msg: fmt.Sprintf("%q is not a directory", dir)}
	}
	if err := unix.Access(dir, unix.X_OK); err != nil {
		return &ValidationError{Program: prog, Field: "directory",
			Msg: fmt.Sprintf("%q is not accessible", dir)}
	}
	return nil
}

func validateLogfilePath(prog, logfile string) error {
	parent := filepath.Dir(logfile)
	if parent == "" {
		parent = "."
	}
	if _, err := os.Stat(parent); err != nil {
		return &ValidationError{Program: prog, Field: "logfile",
			Msg: fmt.Sprintf("log directory %q does not exist", parent)}
	}
	if err := unix.Access(parent, unix.W_OK); err != nil {
		return &ValidationError{Program: prog, Field: "logfile",
			Msg: fmt.Sprintf("log directory %q is not writable", parent)}
	}
	return nil
}

func validateHealthCheck(prog string, hc health.Config) error {
	if hc.Interval <= 0 {
		return &ValidationError{Program: prog, Field: "healthcheck_interval", Msg: "must be at least 1"}
	}
	if hc.Timeout < 0 || hc.Retries < 0 || hc.StartPeriod < 0 {
		return &ValidationError{Program: prog, Field: "healthcheck", Msg: "values must be non-negative"}
	}
	switch hc.Type {
	case health.TypeTCP:
		if hc.Port == 0 {
			return &ValidationError{Program: prog, Field: "healthcheck_port",
				Msg: "required for TCP health checks"}
		}
		if hc.Port < 1 || hc.Port > 65535 {
			return &ValidationError{Program: prog, Field: "healthcheck_port",
				Msg: "must be between 1 and 65535"}
		}
	case health.TypeScript:
		if len(hc.Command) == 0 {
			return &ValidationError{Program: prog, Field: "healthcheck_command",
				Msg: "required for script health checks"}
		}
	}
	return nil
}

func nonNegative(prog, field string, v int) error {
	if v < 0 {
		return &ValidationError{Program: prog, Field: field, Msg: "must be non-negative"}
	}
	return nil
}
