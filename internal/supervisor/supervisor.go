package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rodmena-limited/supervice/internal/config"
	"github.com/rodmena-limited/supervice/internal/event"
	"github.com/rodmena-limited/supervice/internal/history"
	histfactory "github.com/rodmena-limited/supervice/internal/history/factory"
	"github.com/rodmena-limited/supervice/internal/httpapi"
	"github.com/rodmena-limited/supervice/internal/metrics"
	"github.com/rodmena-limited/supervice/internal/process"
	"github.com/rodmena-limited/supervice/internal/rpc"
)

// ErrUnknownProcess and ErrUnknownGroup are returned by control-plane
// operations naming something the supervisor does not manage.
var (
	ErrUnknownProcess = errors.New("unknown process")
	ErrUnknownGroup   = errors.New("unknown group")
)

// Supervisor owns the full Process set and the group index, installs the
// signal handlers, runs the control plane, and drives whole-system
// shutdown and hot reload.
type Supervisor struct {
	configPath string

	mu     sync.Mutex
	cfg    *config.Config
	procs  map[string]*process.Process
	order  []string
	groups map[string][]string

	bus     *event.Bus
	sink    history.Sink
	rpcSrv  *rpc.Server
	httpSrv *http.Server

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Supervisor around an already validated configuration.
// configPath is kept for reload.
func New(configPath string, cfg *config.Config) *Supervisor {
	return &Supervisor{
		configPath: configPath,
		cfg:        cfg,
		procs:      make(map[string]*process.Process),
		groups:     make(map[string][]string),
		bus:        event.NewBus(),
		stopCh:     make(chan struct{}),
	}
}

// Bus exposes the event bus for additional observers (tests, embedders).
func (s *Supervisor) Bus() *event.Bus { return s.bus }

// Run starts everything and blocks until a shutdown signal or ctx
// cancellation, then performs the graceful shutdown sequence.
func (s *Supervisor) Run(ctx context.Context) error {
	release, err := acquirePIDFile(s.cfg.PIDFile)
	if err != nil {
		return err
	}

	s.bus.SubscribeAll(logEvent)
	s.bus.SubscribeAll(metrics.HandleEvent)
	if s.cfg.HistoryDSN != "" {
		sink, err := histfactory.New(s.cfg.HistoryDSN)
		if err != nil {
			release()
			return fmt.Errorf("history sink: %w", err)
		}
		s.sink = sink
		s.bus.SubscribeAll(s.recordHistory)
	}

	s.mu.Lock()
	for _, prog := range s.cfg.Programs {
		s.addProgramLocked(prog, prog.AutoStart)
	}
	s.mu.Unlock()

	s.rpcSrv = rpc.NewServer(s.cfg.SocketPath, s)
	if err := s.rpcSrv.Start(); err != nil {
		release()
		return err
	}

	if s.cfg.HTTPListen != "" {
		s.httpSrv = httpapi.NewServer(s.cfg.HTTPListen, s)
		go func() {
			if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http api server failed", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	slog.Info("supervice started", "programs", len(s.cfg.Programs), "socket", s.cfg.SocketPath)

wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				slog.Info("SIGHUP ignored; use the reload RPC command")
				continue
			}
			slog.Info("shutdown signal received", "signal", sig)
			break wait
		case <-ctx.Done():
			break wait
		case <-s.stopCh:
			break wait
		}
	}

	// Graceful shutdown: release the singleton lock, stop the control
	// plane, then walk every process to a terminal state.
	release()
	s.shutdown()
	return nil
}

// Stop triggers shutdown programmatically.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// addProgramLocked expands a program into its instances, indexes them, and
// launches their supervision loops. Caller holds s.mu.
func (s *Supervisor) addProgramLocked(prog config.Program, autostart bool) {
	group := prog.GroupName()
	for i := 0; i < prog.NumProcs; i++ {
		inst := prog
		if prog.NumProcs > 1 {
			inst.Name = fmt.Sprintf("%s:%02d", prog.Name, i)
		}
		p := process.New(inst, group, i, s.bus)
		p.SetShouldRun(autostart)
		s.procs[inst.Name] = p
		s.order = append(s.order, inst.Name)
		s.groups[group] = append(s.groups[group], inst.Name)
		go p.Run()
	}
}

// removeProgramLocked drops a program's instances from the indexes and
// returns them for the caller to stop outside the lock.
func (s *Supervisor) removeProgramLocked(prog config.Program) []*process.Process {
	group := prog.GroupName()
	var removed []*process.Process
	for i := 0; i < prog.NumProcs; i++ {
		name := prog.Name
		if prog.NumProcs > 1 {
			name = fmt.Sprintf("%s:%02d", prog.Name, i)
		}
		p, ok := s.procs[name]
		if !ok {
			continue
		}
		removed = append(removed, p)
		delete(s.procs, name)
		s.order = deleteString(s.order, name)
		s.groups[group] = deleteString(s.groups[group], name)
		if len(s.groups[group]) == 0 {
			delete(s.groups, group)
		}
	}
	return removed
}

func deleteString(xs []string, x string) []string {
	out := xs[:0]
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}

// shutdown walks every process to a terminal state within the configured
// deadline, force-killing stragglers, and only then tears down the bus.
func (s *Supervisor) shutdown() {
	s.rpcSrv.Stop()
	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.httpSrv.Shutdown(shutdownCtx)
		cancel()
	}

	s.mu.Lock()
	procs := make([]*process.Process, 0, len(s.procs))
	for _, name := range s.order {
		procs = append(procs, s.procs[name])
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *process.Process) {
			defer wg.Done()
			if err := p.StopProcess(ctx); err != nil {
				slog.Warn("graceful stop failed, force-killing", "process", p.Name(), "error", err)
				p.ForceKill()
				killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = p.StopProcess(killCtx)
				killCancel()
			}
		}(p)
	}
	wg.Wait()

	for _, p := range procs {
		p.Shutdown()
	}
	s.bus.Close()
	if s.sink != nil {
		_ = s.sink.Close()
	}
	slog.Info("supervice stopped")
}

// recordHistory ships one bus event to the configured sink.
func (s *Supervisor) recordHistory(ev event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sink.Send(ctx, history.FromEvent(ev)); err != nil {
		slog.Warn("history sink write failed", "error", err)
	}
}

func logEvent(ev event.Event) {
	switch ev.Type {
	case event.HealthcheckFailed:
		slog.Warn("health check failed", "process", ev.Process, "failures", ev.Failures, "message", ev.Message)
	case event.HealthcheckPassed:
		slog.Debug("health check passed", "process", ev.Process)
	case event.ProcessStateFatal:
		slog.Error("process entered FATAL", "process", ev.Process, "message", ev.Message)
	default:
		slog.Info("process state change",
			"process", ev.Process, "group", ev.Group,
			"from", ev.FromState, "to", ev.Type, "pid", ev.PID, "message", ev.Message)
	}
}
