// Package supervice is a process supervisor for Unix-like systems: it
// spawns, monitors, restarts, and gracefully stops a configured set of
// child processes, exposes a control-plane RPC over a local socket, and
// supports runtime reconfiguration.
package supervice

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rodmena-limited/supervice/internal/config"
	"github.com/rodmena-limited/supervice/internal/event"
	"github.com/rodmena-limited/supervice/internal/metrics"
	"github.com/rodmena-limited/supervice/internal/process"
	"github.com/rodmena-limited/supervice/internal/rpc"
	"github.com/rodmena-limited/supervice/internal/supervisor"
)

// Re-export core types for embedders. These are aliases, so conversions
// are zero-cost.

type Config = config.Config

type Program = config.Program

type Status = process.Status

type Event = event.Event

type ReloadResult = rpc.ReloadResult

// Supervisor is the embeddable daemon core.
type Supervisor struct{ inner *supervisor.Supervisor }

// LoadConfig parses and validates a configuration file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// New builds a Supervisor around a validated configuration. configPath is
// re-read on reload.
func New(configPath string, cfg *Config) *Supervisor {
	return &Supervisor{inner: supervisor.New(configPath, cfg)}
}

// Run blocks until shutdown (signal, ctx cancellation, or Stop).
func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }

// Stop triggers a graceful shutdown.
func (s *Supervisor) Stop() { s.inner.Stop() }

// Status snapshots every managed process in a stable order.
func (s *Supervisor) Status() []Status { return s.inner.Status() }

// Reload re-reads the configuration and reconciles the managed set.
func (s *Supervisor) Reload(ctx context.Context) (ReloadResult, error) {
	return s.inner.Reload(ctx)
}

// Client speaks the framed control protocol to a running daemon.
type Client = rpc.Client

// NewClient returns a control client for the given socket path.
func NewClient(socketPath string) *Client { return rpc.NewClient(socketPath) }

// RegisterMetrics registers the Prometheus collectors.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers against the default registry.
func RegisterMetricsDefault() error { return metrics.RegisterDefault() }
