package engine

import (
	"time"

	"github.com/Paintersrp/hookall/internal/runtime"
)

// EventType captures lifecycle notifications emitted by the supervisor.
type EventType string

const (
	EventTypeAttaching   EventType = "attaching"
	EventTypeAttached    EventType = "attached"
	EventTypeListening   EventType = "listening"
	EventTypeExited      EventType = "exited"
	EventTypeQuitting    EventType = "quitting"
	EventTypeKilled      EventType = "killed"
	EventTypeLog         EventType = "log"
	EventTypeError       EventType = "error"
	EventTypeTerminated  EventType = "terminated"
	EventTypeNoProcesses EventType = "no_processes"
)

// Event represents a single lifecycle or log notification about one attached
// target process. Target is zero for supervisor-wide events.
type Event struct {
	Timestamp time.Time
	Target    int
	ChildPID  int
	Type      EventType
	Message   string
	Level     string
	Source    string
	Err       error
	ExitCode  int
	Signal    string
	Reason    string
}

const (
	ReasonInitialLaunch = "initial_launch"
	ReasonLaunchFailure = "launch_failure"
	ReasonChildExit     = "child_exit"
	ReasonQuitKey       = "quit_key"
	ReasonShutdown      = "shutdown"
	ReasonKillFailed    = "kill_failed"
)

func sendEvent(events chan<- Event, evt Event) {
	if events == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Level == "" {
		evt.Level = "info"
		if evt.Err != nil {
			evt.Level = "error"
		}
	}
	if evt.Source == "" {
		evt.Source = runtime.LogSourceSystem
	}
	events <- evt
}
