package process

import (
	"context"
	"fmt"
	"syscall"
	"time"
)

// startWait bounds how long a start command waits for RUNNING before
// reporting failure.
const startWait = 5 * time.Second

// StartProcess records the intent to run and waits up to five seconds for
// the process to reach RUNNING. Idempotent when already running. An explicit
// start is the only way out of FATAL; it resets the retry budget.
func (p *Process) StartProcess(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateFatal {
		p.retries = 0
	}
	p.shouldRun = true
	running := p.state == StateRunning || p.state == StateUnhealthy
	p.mu.Unlock()
	if running {
		return nil
	}
	p.wakeLoop()

	ctx, cancel := context.WithTimeout(ctx, startWait)
	defer cancel()
	// Fail fast on FATAL, but only once a fresh start attempt has been
	// observed: the intake may itself be resurrecting a FATAL process.
	attempted := false
	s, err := p.waitState(ctx,
		func(s State) bool { return s == StateRunning },
		func(s State) bool {
			if s == StateStarting || s == StateBackoff {
				attempted = true
				return false
			}
			return s == StateFatal && attempted
		})
	if err != nil {
		return fmt.Errorf("%s: not RUNNING after %s (state %s)", p.cfg.Name, startWait, s)
	}
	if s == StateFatal {
		return fmt.Errorf("%s: entered FATAL", p.cfg.Name)
	}
	return nil
}

// StopProcess clears the intent to run and waits for a terminal state. The
// supervision loop performs the actual kill; escalation bounds the wait.
func (p *Process) StopProcess(ctx context.Context) error {
	p.mu.Lock()
	p.shouldRun = false
	terminal := p.state.Terminal()
	p.mu.Unlock()
	if terminal {
		return nil
	}
	p.wakeLoop()
	_, err := p.waitState(ctx, func(s State) bool { return s.Terminal() }, nil)
	if err != nil {
		return fmt.Errorf("%s: still %s: %w", p.cfg.Name, p.State(), err)
	}
	return nil
}

// RestartProcess stops then starts the process. With force, the stop skips
// the graceful signal and uses SIGKILL immediately.
func (p *Process) RestartProcess(ctx context.Context, force bool) error {
	if force {
		// Arm the force flag only when a child is actually up; otherwise it
		// would leak into a later, unrelated graceful stop.
		p.mu.Lock()
		if !p.state.Terminal() {
			p.force = true
		}
		p.mu.Unlock()
	}
	if err := p.StopProcess(ctx); err != nil {
		return err
	}
	return p.StartProcess(ctx)
}

// ForceKill delivers SIGKILL to the child's process group immediately. The
// supervision loop observes the exit and reaps as usual. Used by the
// Supervisor when the shutdown deadline passes.
func (p *Process) ForceKill() {
	if pid := p.PID(); pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}
