package supervisor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/rodmena-limited/supervice/internal/config"
	"github.com/rodmena-limited/supervice/internal/process"
	"github.com/rodmena-limited/supervice/internal/rpc"
)

// Status snapshots every process in a stable order.
func (s *Supervisor) Status() []process.Status {
	s.mu.Lock()
	procs := make([]*process.Process, 0, len(s.procs))
	for _, name := range s.order {
		procs = append(procs, s.procs[name])
	}
	s.mu.Unlock()

	out := make([]process.Status, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Status())
	}
	return out
}

func (s *Supervisor) lookup(name string) (*process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	}
	return p, nil
}

func (s *Supervisor) StartProcess(ctx context.Context, name string) error {
	p, err := s.lookup(name)
	if err != nil {
		return err
	}
	return p.StartProcess(ctx)
}

func (s *Supervisor) StopProcess(ctx context.Context, name string) error {
	p, err := s.lookup(name)
	if err != nil {
		return err
	}
	return p.StopProcess(ctx)
}

func (s *Supervisor) RestartProcess(ctx context.Context, name string, force bool) error {
	p, err := s.lookup(name)
	if err != nil {
		return err
	}
	return p.RestartProcess(ctx, force)
}

// StartGroup fans out to the members concurrently; success iff all succeed.
func (s *Supervisor) StartGroup(ctx context.Context, name string) error {
	return s.groupOp(ctx, name, func(ctx context.Context, p *process.Process) error {
		return p.StartProcess(ctx)
	})
}

// StopGroup fans out to the members concurrently; success iff all succeed.
func (s *Supervisor) StopGroup(ctx context.Context, name string) error {
	return s.groupOp(ctx, name, func(ctx context.Context, p *process.Process) error {
		return p.StopProcess(ctx)
	})
}

func (s *Supervisor) groupOp(ctx context.Context, name string, op func(context.Context, *process.Process) error) error {
	s.mu.Lock()
	members, ok := s.groups[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownGroup, name)
	}
	procs := make([]*process.Process, 0, len(members))
	for _, m := range members {
		procs = append(procs, s.procs[m])
	}
	s.mu.Unlock()

	errs := make([]error, len(procs))
	var wg sync.WaitGroup
	for i, p := range procs {
		wg.Add(1)
		go func(i int, p *process.Process) {
			defer wg.Done()
			errs[i] = op(ctx, p)
		}(i, p)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Reload re-parses the configuration and reconciles the process set.
// Added programs are constructed and started per autostart; removed
// programs are stopped and dropped; changed programs are reported but not
// touched. Any parse or validation error leaves everything unchanged.
func (s *Supervisor) Reload(ctx context.Context) (rpc.ReloadResult, error) {
	newCfg, err := config.Load(s.configPath)
	if err != nil {
		return rpc.ReloadResult{}, err
	}

	result := rpc.ReloadResult{Added: []string{}, Removed: []string{}, Changed: []string{}}

	s.mu.Lock()
	oldPrograms := make(map[string]config.Program, len(s.cfg.Programs))
	for _, p := range s.cfg.Programs {
		oldPrograms[p.Name] = p
	}
	newPrograms := make(map[string]config.Program, len(newCfg.Programs))
	for _, p := range newCfg.Programs {
		newPrograms[p.Name] = p
	}

	var toStop []*process.Process
	for name, oldProg := range oldPrograms {
		if _, still := newPrograms[name]; !still {
			result.Removed = append(result.Removed, name)
			toStop = append(toStop, s.removeProgramLocked(oldProg)...)
		}
	}
	var kept []config.Program
	for _, p := range s.cfg.Programs {
		if _, still := newPrograms[p.Name]; still {
			kept = append(kept, p)
		}
	}
	for _, newProg := range newCfg.Programs {
		oldProg, existed := oldPrograms[newProg.Name]
		switch {
		case !existed:
			result.Added = append(result.Added, newProg.Name)
			s.addProgramLocked(newProg, newProg.AutoStart)
			kept = append(kept, newProg)
		case !reflect.DeepEqual(oldProg, newProg):
			// Reported only: the daemon never silently recycles a
			// running child. The operator restarts to apply.
			result.Changed = append(result.Changed, newProg.Name)
		}
	}
	s.cfg.Programs = kept
	s.mu.Unlock()

	// Stop removed instances outside the set lock and end their loops.
	for _, p := range toStop {
		if err := p.StopProcess(ctx); err != nil {
			p.ForceKill()
			_ = p.StopProcess(ctx)
		}
		p.Shutdown()
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Changed)
	return result, nil
}
