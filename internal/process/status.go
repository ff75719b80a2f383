package process

import "time"

// Status is the externally visible snapshot used by RPC and the HTTP API.
// Pointer fields render as null when not applicable.
type Status struct {
	Name          string  `json:"name"`
	Group         string  `json:"group"`
	State         State   `json:"state"`
	PID           *int    `json:"pid"`
	UptimeSeconds *int64  `json:"uptime_seconds"`
	Health        *string `json:"health"`
}

// Status takes a consistent snapshot under the state lock.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Name:  p.cfg.Name,
		Group: p.group,
		State: p.state,
	}
	if pid := p.pidLocked(); pid > 0 {
		st.PID = &pid
		if !p.startedAt.IsZero() {
			up := int64(time.Since(p.startedAt) / time.Second)
			st.UptimeSeconds = &up
		}
	}
	switch p.healthy {
	case Healthy:
		ok := "ok"
		st.Health = &ok
	case Unhealthy:
		fail := "fail"
		st.Health = &fail
	}
	return st
}
