package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rodmena-limited/supervice/internal/config"
	"github.com/rodmena-limited/supervice/internal/logger"
	"github.com/rodmena-limited/supervice/internal/metrics"
	"github.com/rodmena-limited/supervice/internal/supervisor"
)

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	LogFile    string
	LogLevel   string
}

func createServeCommand(flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervice daemon",
		Long: `Run the supervice daemon: parse the configuration, acquire the
pidfile lock, start the configured programs, and serve the control
socket until a shutdown signal arrives.

Examples:
  supervice serve -c supervice.conf
  supervice serve -c supervice.conf --daemonize
  supervice serve -c supervice.conf --loglevel=DEBUG`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}
	cmd.Flags().StringVarP(&flags.ConfigPath, "configuration", "c", "supervice.conf", "configuration file path")
	cmd.Flags().BoolVarP(&flags.Daemonize, "daemonize", "d", false, "run in the background")
	cmd.Flags().StringVarP(&flags.LogFile, "logfile", "l", "", "daemon log file (overrides config)")
	cmd.Flags().StringVarP(&flags.LogLevel, "loglevel", "e", "", "log level (overrides config)")
	return cmd
}

func runServe(flags *ServeFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("configuration rejected: %w", err)
	}

	logfile := cfg.LogFile
	if flags.LogFile != "" {
		logfile = flags.LogFile
	}
	loglevel := cfg.LogLevel
	if flags.LogLevel != "" {
		loglevel = flags.LogLevel
	}

	if flags.Daemonize {
		// The detached child re-runs serve without --daemonize and logs
		// to the configured file.
		return daemonize(logfile)
	}

	if _, err := logger.Setup(loglevel, logfile, cfg.LogMaxBytes, cfg.LogBackups); err != nil {
		return err
	}
	if err := metrics.RegisterDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	s := supervisor.New(flags.ConfigPath, cfg)
	return s.Run(context.Background())
}
