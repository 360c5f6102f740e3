package cli

import (
	stdcontext "context"
	"time"

	"github.com/Paintersrp/hookall/internal/api"
	"github.com/Paintersrp/hookall/internal/engine"
	"github.com/Paintersrp/hookall/internal/locator"
)

// controller adapts the running supervisor to the HTTP control API.
type controller struct {
	supervisor *engine.Supervisor
	filter     string
	matched    []locator.PID
	quit       chan<- rune
}

func (c *controller) Status(stdcontext.Context) (*api.StatusReport, error) {
	report := &api.StatusReport{
		Filter:      c.filter,
		State:       string(c.supervisor.State()),
		GeneratedAt: time.Now().UTC(),
		Matched:     make([]int, 0, len(c.matched)),
		Children:    []api.ChildReport{},
	}
	for _, pid := range c.matched {
		report.Matched = append(report.Matched, int(pid))
	}
	for _, child := range c.supervisor.Snapshot() {
		report.Children = append(report.Children, api.ChildReport{
			Target:    child.Target,
			PID:       child.PID,
			StartedAt: child.StartedAt,
			Exited:    child.Exited,
			ExitCode:  child.ExitCode,
			Signal:    child.Signal,
		})
	}
	return report, nil
}

// Quit injects the same keystroke an operator would type.
func (c *controller) Quit(ctx stdcontext.Context) (*api.QuitResult, error) {
	if c.supervisor.State() != engine.StateListening {
		return nil, api.ErrNotListening
	}
	live := 0
	for _, child := range c.supervisor.Snapshot() {
		if !child.Exited {
			live++
		}
	}
	select {
	case c.quit <- 'q':
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &api.QuitResult{RequestedAt: time.Now().UTC(), Children: live}, nil
}
