package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for child output files.
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 10
	DefaultMaxAgeDays = 7
)

// Config describes stdout/stderr destinations for one managed process.
// Paths may contain the %(process_num)s placeholder, expanded with the
// instance index. Rotation parameters follow lumberjack semantics.
type Config struct {
	StdoutPath string
	StderrPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ExpandProcessNum substitutes %(process_num)s in path with the zero-padded
// instance index.
func ExpandProcessNum(path string, num int) string {
	return strings.ReplaceAll(path, "%(process_num)s", fmt.Sprintf("%02d", num))
}

// Writers returns rotating io.WriteClosers for stdout and stderr. A nil
// writer means the corresponding stream has no configured destination.
func (c Config) Writers(num int) (io.WriteCloser, io.WriteCloser) {
	var outW, errW io.WriteCloser
	if c.StdoutPath != "" {
		outW = c.newWriter(ExpandProcessNum(c.StdoutPath, num))
	}
	if c.StderrPath != "" {
		errW = c.newWriter(ExpandProcessNum(c.StderrPath, num))
	}
	return outW, errW
}

func (c Config) newWriter(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Setup configures the default slog logger for the daemon. With a logfile it
// writes rotated text logs; otherwise it writes colorized text to stdout.
// maxBytes and backups follow the [supervice] section settings.
func Setup(level, logfile string, maxBytes, backups int) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if logfile != "" {
		sizeMB := maxBytes / (1024 * 1024)
		w := &lj.Logger{
			Filename:   logfile,
			MaxSize:    valOr(sizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(backups, DefaultMaxBackups),
		}
		h = slog.NewTextHandler(w, opts)
	} else {
		h = NewColorTextHandler(os.Stdout, opts)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l, nil
}

// ParseLevel maps a config loglevel string onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}
