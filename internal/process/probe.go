package process

import (
	"context"
	"time"

	"github.com/rodmena-limited/supervice/internal/event"
	"github.com/rodmena-limited/supervice/internal/health"
)

// startProbe launches the health-probe goroutine for the current child.
// No goroutine exists when the program has no health check configured.
func (p *Process) startProbe() {
	prober := health.New(p.cfg.Health)
	if prober == nil {
		return
	}
	ctx, cancel := context.WithCancel(p.ctx)
	done := make(chan struct{})
	p.mu.Lock()
	p.probeCancel = cancel
	p.probeDone = done
	p.mu.Unlock()
	go p.probeLoop(ctx, done, prober)
}

// cancelProbe stops the probe goroutine, if any, and waits for it to exit.
func (p *Process) cancelProbe() {
	p.mu.Lock()
	cancel := p.probeCancel
	done := p.probeDone
	p.probeCancel = nil
	p.probeDone = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// probeLoop waits out start_period, then probes every interval, tracking
// consecutive failures. Cancellation is observed at every sleep and at the
// probe boundary.
func (p *Process) probeLoop(ctx context.Context, done chan struct{}, prober health.Prober) {
	defer close(done)
	hc := p.cfg.Health
	if !sleepCtx(ctx, hc.StartPeriod) {
		return
	}
	failures := 0
	for ctx.Err() == nil {
		probeCtx := ctx
		cancel := context.CancelFunc(func() {})
		if hc.Timeout > 0 {
			probeCtx, cancel = context.WithTimeout(ctx, hc.Timeout)
		}
		res := prober.Probe(probeCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if res.Healthy {
			failures = 0
			p.publishHealth(event.HealthcheckPassed, 0, res.Message)
			p.markHealthy()
		} else {
			failures++
			p.publishHealth(event.HealthcheckFailed, failures, res.Message)
			if failures >= hc.Retries {
				p.markUnhealthy(failures)
			}
		}
		if !sleepCtx(ctx, hc.Interval) {
			return
		}
	}
}

// markUnhealthy flips the health verdict, transitions RUNNING to UNHEALTHY,
// and nudges the supervision loop so it can elect a restart.
func (p *Process) markUnhealthy(failures int) {
	p.mu.Lock()
	p.healthy = Unhealthy
	if p.state == StateRunning {
		p.transitionLocked(StateUnhealthy, "health check failures reached retries")
	}
	p.mu.Unlock()
	select {
	case p.unhealthyCh <- failures:
	default:
	}
}

// markHealthy records a passing probe and re-enters RUNNING after a spell
// of UNHEALTHY.
func (p *Process) markHealthy() {
	p.mu.Lock()
	p.healthy = Healthy
	if p.state == StateUnhealthy {
		p.transitionLocked(StateRunning, "health check recovered")
	}
	p.mu.Unlock()
}

func (p *Process) publishHealth(t event.Type, failures int, msg string) {
	p.mu.Lock()
	pid := p.pidLocked()
	p.mu.Unlock()
	p.bus.Publish(event.Event{
		Type:     t,
		Process:  p.cfg.Name,
		Group:    p.group,
		PID:      pid,
		Message:  msg,
		Failures: failures,
		At:       time.Now(),
	})
}

// sleepCtx sleeps for d, returning false if ctx fired first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
