package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"

	"github.com/rodmena-limited/supervice/internal/health"
)

var iniCodecRegistry = func() *viper.DefaultCodecRegistry {
	r := viper.NewCodecRegistry()
	r.RegisterCodec("ini", ini.Codec{})
	return r
}()

// Supervisor-level defaults, matching the documented config reference.
const (
	DefaultLogFile         = "supervice.log"
	DefaultPIDFile         = "supervice.pid"
	DefaultLogLevel        = "INFO"
	DefaultSocketPath      = "/tmp/supervice.sock"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultLogMaxBytes     = 50 * 1024 * 1024
	DefaultLogBackups      = 10
)

// Program is the immutable definition of one managed program, constructed
// once by parsing and never mutated afterwards.
type Program struct {
	Name          string
	Command       []string // argv after shell-style splitting
	Directory     string
	User          string
	Environment   map[string]string
	NumProcs      int
	AutoStart     bool
	AutoRestart   bool
	StartSecs     time.Duration
	StartRetries  int
	StopSignal    string
	StopWaitSecs  time.Duration
	StdoutLogfile string
	StderrLogfile string
	Group         string
	Health        health.Config
}

// GroupName returns the explicit group, or the implicit singleton group
// named after the program itself.
func (p Program) GroupName() string {
	if p.Group != "" {
		return p.Group
	}
	return p.Name
}

// Config is the validated daemon configuration.
type Config struct {
	LogFile         string
	PIDFile         string
	LogLevel        string
	SocketPath      string
	ShutdownTimeout time.Duration
	LogMaxBytes     int
	LogBackups      int
	HistoryDSN      string
	HTTPListen      string
	Programs        []Program
}

// Load parses and validates an INI configuration file. Any validation
// failure is returned before a single field of the running daemon changes,
// so reload can call this safely.
func Load(path string) (*Config, error) {
	v := viper.NewWithOptions(viper.WithCodecRegistry(iniCodecRegistry))
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	all := v.AllSettings()

	cfg := &Config{
		LogFile:         DefaultLogFile,
		PIDFile:         DefaultPIDFile,
		LogLevel:        DefaultLogLevel,
		SocketPath:      DefaultSocketPath,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogMaxBytes:     DefaultLogMaxBytes,
		LogBackups:      DefaultLogBackups,
	}

	if sect := section(all, "supervice"); sect != nil {
		cfg.LogFile = getString(sect, "logfile", cfg.LogFile)
		cfg.PIDFile = getString(sect, "pidfile", cfg.PIDFile)
		cfg.LogLevel = getString(sect, "loglevel", cfg.LogLevel)
		cfg.SocketPath = getString(sect, "socket", cfg.SocketPath)
		cfg.HistoryDSN = getString(sect, "history_dsn", "")
		cfg.HTTPListen = getString(sect, "http_listen", "")
		st, err := getInt(sect, "shutdown_timeout", int(cfg.ShutdownTimeout/time.Second))
		if err != nil {
			return nil, err
		}
		cfg.ShutdownTimeout = time.Duration(st) * time.Second
		if cfg.LogMaxBytes, err = getInt(sect, "log_maxbytes", cfg.LogMaxBytes); err != nil {
			return nil, err
		}
		if cfg.LogBackups, err = getInt(sect, "log_backups", cfg.LogBackups); err != nil {
			return nil, err
		}
	}

	if _, err := logLevelValid(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, &ValidationError{Msg: "shutdown_timeout must be positive"}
	}
	if cfg.LogMaxBytes < 0 {
		return nil, &ValidationError{Msg: "log_maxbytes must be non-negative"}
	}
	if cfg.LogBackups < 0 {
		return nil, &ValidationError{Msg: "log_backups must be non-negative"}
	}

	// Programs, sorted by name for a stable order.
	var progNames []string
	for key := range all {
		if strings.HasPrefix(key, "program:") {
			progNames = append(progNames, strings.SplitN(key, ":", 2)[1])
		}
	}
	sort.Strings(progNames)

	for _, name := range progNames {
		sect := section(all, "program:"+name)
		prog, err := parseProgram(name, sect)
		if err != nil {
			return nil, err
		}
		cfg.Programs = append(cfg.Programs, prog)
	}

	// Group membership: [group:NAME] programs = a, b
	for key := range all {
		if !strings.HasPrefix(key, "group:") {
			continue
		}
		groupName := strings.SplitN(key, ":", 2)[1]
		sect := section(all, key)
		members := getString(sect, "programs", "")
		if members == "" {
			continue
		}
		for _, m := range strings.Split(members, ",") {
			m = strings.TrimSpace(m)
			for i := range cfg.Programs {
				if cfg.Programs[i].Name == m {
					cfg.Programs[i].Group = groupName
				}
			}
		}
	}

	for _, prog := range cfg.Programs {
		if err := validateProgram(prog); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseProgram(name string, sect map[string]any) (Program, error) {
	raw := getString(sect, "command", "")
	if raw == "" {
		return Program{}, &ValidationError{Program: name, Msg: "missing command"}
	}
	argv, err := SplitCommand(raw)
	if err != nil {
		return Program{}, &ValidationError{Program: name, Msg: fmt.Sprintf("command: %v", err)}
	}

	prog := Program{
		Name:          name,
		Command:       argv,
		Directory:     getString(sect, "directory", ""),
		User:          getString(sect, "user", ""),
		StopSignal:    getString(sect, "stopsignal", "TERM"),
		StdoutLogfile: getString(sect, "stdout_logfile", ""),
		StderrLogfile: getString(sect, "stderr_logfile", ""),
		AutoStart:     getBool(sect, "autostart", true),
		AutoRestart:   getBool(sect, "autorestart", true),
	}
	if prog.Environment, err = ParseEnvironment(getString(sect, "environment", "")); err != nil {
		return Program{}, &ValidationError{Program: name, Msg: fmt.Sprintf("environment: %v", err)}
	}
	if prog.NumProcs, err = getInt(sect, "numprocs", 1); err != nil {
		return Program{}, err
	}
	startSecs, err := getInt(sect, "startsecs", 1)
	if err != nil {
		return Program{}, err
	}
	prog.StartSecs = time.Duration(startSecs) * time.Second
	if prog.StartRetries, err = getInt(sect, "startretries", 3); err != nil {
		return Program{}, err
	}
	stopWait, err := getInt(sect, "stopwaitsecs", 10)
	if err != nil {
		return Program{}, err
	}
	prog.StopWaitSecs = time.Duration(stopWait) * time.Second

	hc, err := parseHealthCheck(name, sect)
	if err != nil {
		return Program{}, err
	}
	prog.Health = hc
	return prog, nil
}

func parseHealthCheck(name string, sect map[string]any) (health.Config, error) {
	hc := health.Config{
		Type: health.TypeNone,
		Host: "127.0.0.1",
	}
	switch strings.ToLower(getString(sect, "healthcheck_type", "none")) {
	case "tcp":
		hc.Type = health.TypeTCP
	case "script":
		hc.Type = health.TypeScript
	}

	interval, err := getInt(sect, "healthcheck_interval", 30)
	if err != nil {
		return hc, err
	}
	timeout, err := getInt(sect, "healthcheck_timeout", 10)
	if err != nil {
		return hc, err
	}
	startPeriod, err := getInt(sect, "healthcheck_start_period", 10)
	if err != nil {
		return hc, err
	}
	hc.Interval = time.Duration(interval) * time.Second
	hc.Timeout = time.Duration(timeout) * time.Second
	hc.StartPeriod = time.Duration(startPeriod) * time.Second
	if hc.Retries, err = getInt(sect, "healthcheck_retries", 3); err != nil {
		return hc, err
	}
	hc.Host = getString(sect, "healthcheck_host", hc.Host)
	if hc.Port, err = getInt(sect, "healthcheck_port", 0); err != nil {
		return hc, err
	}
	if cmdStr := getString(sect, "healthcheck_command", ""); cmdStr != "" {
		if hc.Command, err = SplitCommand(cmdStr); err != nil {
			return hc, &ValidationError{Program: name, Msg: fmt.Sprintf("healthcheck_command: %v", err)}
		}
	}
	return hc, nil
}

// --- section access helpers ---

func section(all map[string]any, name string) map[string]any {
	v, ok := all[name]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getString(sect map[string]any, key, def string) string {
	if sect == nil {
		return def
	}
	v, ok := sect[key]
	if !ok {
		return def
	}
	return toString(v)
}

func getInt(sect map[string]any, key string, def int) (int, error) {
	if sect == nil {
		return def, nil
	}
	v, ok := sect[key]
	if !ok {
		return def, nil
	}
	s := strings.TrimSpace(toString(v))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ValidationError{Field: key, Msg: fmt.Sprintf("invalid integer %q", s)}
	}
	return n, nil
}

func getBool(sect map[string]any, key string, def bool) bool {
	if sect == nil {
		return def
	}
	v, ok := sect[key]
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(toString(v))) {
	case "true", "1", "yes", "on":
		return true
	case "":
		return def
	default:
		return false
	}
}

func logLevelValid(level string) (string, error) {
	switch strings.ToUpper(level) {
	case "DEBUG", "INFO", "WARNING", "WARN", "ERROR", "CRITICAL":
		return level, nil
	}
	return "", &ValidationError{Msg: fmt.Sprintf("invalid loglevel %q", level)}
}
