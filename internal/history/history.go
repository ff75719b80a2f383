package history

import (
	"context"
	"time"

	"github.com/rodmena-limited/supervice/internal/event"
)

// Record is one audit row derived from a bus event. The daemon never reads
// records back; sinks are append-only observability.
type Record struct {
	OccurredAt time.Time `json:"occurred_at"`
	Type       string    `json:"type"`
	Process    string    `json:"processname"`
	Group      string    `json:"groupname"`
	FromState  string    `json:"from_state,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Sink is a destination for lifecycle records. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, r Record) error
	Close() error
}

// FromEvent converts a bus event into an audit record.
func FromEvent(ev event.Event) Record {
	return Record{
		OccurredAt: ev.At.UTC(),
		Type:       string(ev.Type),
		Process:    ev.Process,
		Group:      ev.Group,
		FromState:  ev.FromState,
		PID:        ev.PID,
		Message:    ev.Message,
	}
}
