package process

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rodmena-limited/supervice/internal/config"
	"github.com/rodmena-limited/supervice/internal/event"
)

// Process is the runtime entity for one managed OS process. It is owned
// exclusively by the Supervisor. External commands mutate the should_run
// intent; only the supervision loop transitions state and spawns or reaps
// children. All mutable fields are guarded by mu.
type Process struct {
	cfg   config.Program
	group string
	num   int
	bus   *event.Bus

	mu        sync.Mutex
	state     State
	shouldRun bool
	force     bool
	cmd       *exec.Cmd
	waitCh    chan error
	startedAt time.Time
	retries   int
	healthy   HealthState
	changed   chan struct{}
	outW      io.WriteCloser
	errW      io.WriteCloser

	probeCancel context.CancelFunc
	probeDone   chan struct{}

	wake        chan struct{}
	unhealthyCh chan int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Process for one instance of a program. cfg must already
// be specialized with the instance name; num is the instance index used for
// log-path substitution.
func New(cfg config.Program, group string, num int, bus *event.Bus) *Process {
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		cfg:         cfg,
		group:       group,
		num:         num,
		bus:         bus,
		state:       StateStopped,
		changed:     make(chan struct{}),
		wake:        make(chan struct{}, 1),
		unhealthyCh: make(chan int, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

func (p *Process) Name() string  { return p.cfg.Name }
func (p *Process) Group() string { return p.group }

// Config returns the immutable program definition.
func (p *Process) Config() config.Program { return p.cfg }

// State returns the current observed state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ShouldRun returns the operator intent.
func (p *Process) ShouldRun() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shouldRun
}

// SetShouldRun records initial intent before the supervision loop starts.
func (p *Process) SetShouldRun(v bool) {
	p.mu.Lock()
	p.shouldRun = v
	p.mu.Unlock()
}

// PID returns the live child's pid, or 0.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pidLocked()
}

func (p *Process) pidLocked() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// transitionTo moves the state machine and publishes the matching event.
// The lock is held across the publish so the event order equals the
// transition order; Publish never blocks.
func (p *Process) transitionTo(to State, msg string) {
	p.mu.Lock()
	p.transitionLocked(to, msg)
	p.mu.Unlock()
}

func (p *Process) transitionLocked(to State, msg string) {
	from := p.state
	p.state = to
	close(p.changed)
	p.changed = make(chan struct{})
	p.bus.Publish(event.Event{
		Type:      event.StateType(string(to)),
		Process:   p.cfg.Name,
		Group:     p.group,
		FromState: string(from),
		PID:       p.pidLocked(),
		Message:   msg,
		At:        time.Now(),
	})
}

// waitState blocks until ok(state) or fail(state) holds, or ctx expires.
func (p *Process) waitState(ctx context.Context, ok, fail func(State) bool) (State, error) {
	for {
		p.mu.Lock()
		s := p.state
		ch := p.changed
		p.mu.Unlock()
		if ok(s) {
			return s, nil
		}
		if fail != nil && fail(s) {
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// wakeLoop nudges the supervision loop; a pending nudge is enough.
func (p *Process) wakeLoop() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Process) resetRetries() {
	p.mu.Lock()
	p.retries = 0
	p.mu.Unlock()
}

// Shutdown terminates the supervision loop after the child is gone. It is
// called by the Supervisor once the process has reached a terminal state
// (or after a force-kill at the shutdown deadline).
func (p *Process) Shutdown() {
	p.cancel()
	p.wakeLoop()
	<-p.done
}
