package metrics

import (
	"strings"

	"github.com/rodmena-limited/supervice/internal/event"
)

// HandleEvent translates bus events into metric updates. Wire it with
// bus.SubscribeAll(metrics.HandleEvent).
func HandleEvent(ev event.Event) {
	switch ev.Type {
	case event.HealthcheckPassed:
		IncHealthPassed(ev.Process)
		return
	case event.HealthcheckFailed:
		IncHealthFailed(ev.Process)
		return
	}
	state, ok := strings.CutPrefix(string(ev.Type), "PROCESS_STATE_")
	if !ok {
		return
	}
	RecordStateTransition(ev.Process, ev.FromState, state)
	switch ev.Type {
	case event.ProcessStateStarting:
		IncStart(ev.Process)
	case event.ProcessStateStopped:
		IncStop(ev.Process)
	case event.ProcessStateBackoff:
		IncBackoff(ev.Process)
	}
}
