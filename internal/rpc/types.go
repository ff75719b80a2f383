package rpc

import (
	"context"

	"github.com/rodmena-limited/supervice/internal/process"
)

// Error codes returned in error responses.
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeInternalError  = "INTERNAL_ERROR"
)

// Request is the decoded client message.
type Request struct {
	Command string `json:"command"`
	Name    string `json:"name,omitempty"`
	Force   bool   `json:"force,omitempty"`
}

// ReloadResult reports a configuration diff, each list sorted by name.
// Changed programs are reported but deliberately not applied.
type ReloadResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// Backend is the control-plane surface the server dispatches into. The
// Supervisor implements it; correctness under concurrent requests is
// enforced by per-process state locks, not by the server.
type Backend interface {
	Status() []process.Status
	StartProcess(ctx context.Context, name string) error
	StopProcess(ctx context.Context, name string) error
	RestartProcess(ctx context.Context, name string, force bool) error
	StartGroup(ctx context.Context, name string) error
	StopGroup(ctx context.Context, name string) error
	Reload(ctx context.Context) (ReloadResult, error)
}
