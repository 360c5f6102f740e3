package api

import (
	stdcontext "context"
	"errors"
	"time"
)

var (
	// ErrNotListening reports a quit request made before children are attached
	// or after shutdown began.
	ErrNotListening = errors.New("supervisor is not listening")
)

// ChildReport describes one attached instrumentation process.
type ChildReport struct {
	Target    int       `json:"target"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Exited    bool      `json:"exited"`
	ExitCode  int       `json:"exit_code"`
	Signal    string    `json:"signal,omitempty"`
}

// StatusReport aggregates supervisor-wide status information.
type StatusReport struct {
	Filter      string        `json:"filter"`
	State       string        `json:"state"`
	GeneratedAt time.Time     `json:"generated_at"`
	Matched     []int         `json:"matched"`
	Children    []ChildReport `json:"children"`
}

// QuitResult acknowledges a quit request.
type QuitResult struct {
	RequestedAt time.Time `json:"requested_at"`
	Children    int       `json:"children"`
}

// Controller exposes supervisor operations required by control servers.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	Quit(stdcontext.Context) (*QuitResult, error)
}
