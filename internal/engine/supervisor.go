package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/Paintersrp/hookall/internal/locator"
	"github.com/Paintersrp/hookall/internal/runtime"
)

// State is the supervisor lifecycle phase.
type State string

const (
	StateIdle        State = "idle"
	StateLaunching   State = "launching"
	StateListening   State = "listening"
	StateTerminating State = "terminating"
	StateExited      State = "exited"
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithEvents delivers lifecycle and log events to ch. Sends block, so the
// consumer must drain ch until Run returns.
func WithEvents(ch chan<- Event) Option {
	return func(s *Supervisor) {
		s.events = ch
	}
}

// WithLogger overrides the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// Result summarises a completed Run.
type Result struct {
	State    State
	Launched int
	Reason   string
}

// ChildStatus is a point-in-time view of one attached child.
type ChildStatus struct {
	Target    int       `json:"target"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
	Exited    bool      `json:"exited"`
	ExitCode  int       `json:"exitCode"`
	Signal    string    `json:"signal,omitempty"`
}

// Supervisor attaches one instrumentation child per target and owns the
// resulting handles until the operator quits.
type Supervisor struct {
	runtime runtime.Runtime
	plan    LaunchPlan
	events  chan<- Event
	log     *slog.Logger

	mu       sync.RWMutex
	state    State
	children []*child

	forwarders sync.WaitGroup
}

type child struct {
	target    locator.PID
	inst      runtime.Instance
	startedAt time.Time
	exited    bool
	status    runtime.ExitStatus
}

type childExit struct {
	index  int
	status runtime.ExitStatus
}

// NewSupervisor constructs a supervisor that launches children through rt.
func NewSupervisor(rt runtime.Runtime, plan LaunchPlan, opts ...Option) *Supervisor {
	s := &Supervisor{
		runtime: rt,
		plan:    plan,
		state:   StateIdle,
		log:     slog.With("component", "engine.Supervisor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle phase.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the status of every attached child in launch order.
func (s *Supervisor) Snapshot() []ChildStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChildStatus, 0, len(s.children))
	for _, c := range s.children {
		row := ChildStatus{
			Target:    int(c.target),
			PID:       c.inst.PID(),
			StartedAt: c.startedAt,
			Exited:    c.exited,
		}
		if c.exited {
			row.ExitCode = c.status.Code
			row.Signal = c.status.Signal
		}
		out = append(out, row)
	}
	return out
}

// Run attaches to every target, then waits for a quit keystroke (q or Q) or
// context cancellation and kills all children. With no targets it returns
// immediately. A launch failure kills the children already started and is
// returned as an error. A closed keys channel does not end the run.
func (s *Supervisor) Run(ctx context.Context, targets []locator.PID, keys <-chan rune) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(targets) == 0 {
		s.setState(StateExited)
		sendEvent(s.events, Event{Type: EventTypeNoProcesses, Message: "No processes to attach to. Exiting..."})
		return Result{State: StateExited}, nil
	}
	if err := s.plan.Validate(); err != nil {
		s.setState(StateExited)
		return Result{State: StateExited}, err
	}

	s.setState(StateLaunching)
	exits := make(chan childExit, len(targets))

	for _, target := range targets {
		sendEvent(s.events, Event{
			Target:  int(target),
			Type:    EventTypeAttaching,
			Message: fmt.Sprintf("Attaching to PID: %d", target),
			Reason:  ReasonInitialLaunch,
		})
		inst, err := s.runtime.Start(ctx, s.plan.StartSpec(target))
		if err != nil {
			err = fmt.Errorf("attach to pid %d: %w", target, err)
			sendEvent(s.events, Event{
				Target:  int(target),
				Type:    EventTypeError,
				Message: err.Error(),
				Err:     err,
				Reason:  ReasonLaunchFailure,
			})
			res := s.terminate(ReasonLaunchFailure)
			return res, err
		}
		idx := s.track(target, inst)
		sendEvent(s.events, Event{
			Target:   int(target),
			ChildPID: inst.PID(),
			Type:     EventTypeAttached,
			Message:  fmt.Sprintf("Instrumentation process %d attached to PID %d", inst.PID(), target),
			Reason:   ReasonInitialLaunch,
		})
		s.observe(idx, target, inst, exits)
	}

	s.setState(StateListening)
	sendEvent(s.events, Event{Type: EventTypeListening, Message: "Press Q to quit all attached processes"})

	for {
		select {
		case <-ctx.Done():
			return s.terminate(ReasonShutdown), nil
		case key, ok := <-keys:
			if !ok {
				s.log.Debug("key input closed; waiting for cancellation")
				keys = nil
				continue
			}
			if isQuitKey(key) {
				return s.terminate(ReasonQuitKey), nil
			}
		case ex := <-exits:
			s.recordExit(ex)
		}
	}
}

func isQuitKey(r rune) bool {
	return unicode.ToLower(r) == 'q'
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) track(target locator.PID, inst runtime.Instance) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, &child{target: target, inst: inst, startedAt: time.Now()})
	return len(s.children) - 1
}

// observe forwards the child's exit status into exits and its output lines, if
// any, to the event channel.
func (s *Supervisor) observe(idx int, target locator.PID, inst runtime.Instance, exits chan<- childExit) {
	go func() {
		status, ok := <-inst.Done()
		if !ok {
			status = runtime.ExitStatus{Code: -1, Err: errors.New("exit status unavailable")}
		}
		exits <- childExit{index: idx, status: status}
	}()

	logs := inst.Logs()
	if logs == nil {
		return
	}
	s.forwarders.Add(1)
	go func() {
		defer s.forwarders.Done()
		for entry := range logs {
			sendEvent(s.events, Event{
				Target:   int(target),
				ChildPID: inst.PID(),
				Type:     EventTypeLog,
				Message:  entry.Message,
				Level:    entry.Level,
				Source:   entry.Source,
			})
		}
	}()
}

func (s *Supervisor) recordExit(ex childExit) {
	s.mu.Lock()
	c := s.children[ex.index]
	c.exited = true
	c.status = ex.status
	s.mu.Unlock()

	msg := fmt.Sprintf("Instrumentation process for PID %d exited with code %d", c.target, ex.status.Code)
	if ex.status.Signal != "" {
		msg = fmt.Sprintf("%s (%s)", msg, ex.status.Signal)
	}
	sendEvent(s.events, Event{
		Target:   int(c.target),
		ChildPID: c.inst.PID(),
		Type:     EventTypeExited,
		Message:  msg,
		Err:      ex.status.Err,
		ExitCode: ex.status.Code,
		Signal:   ex.status.Signal,
		Reason:   ReasonChildExit,
	})
}

// terminate force-kills every live child concurrently and waits for each to be
// reaped. Kill failures are reported as events; termination itself always
// completes.
func (s *Supervisor) terminate(reason string) Result {
	s.setState(StateTerminating)
	if reason != ReasonLaunchFailure {
		sendEvent(s.events, Event{Type: EventTypeQuitting, Message: "Quitting all attached processes...", Reason: reason})
	}

	s.mu.RLock()
	live := make([]*child, 0, len(s.children))
	for _, c := range s.children {
		if !c.exited {
			live = append(live, c)
		}
	}
	launched := len(s.children)
	s.mu.RUnlock()

	var g errgroup.Group
	for _, c := range live {
		c := c
		g.Go(func() error {
			if err := c.inst.Kill(context.Background()); err != nil {
				err = fmt.Errorf("kill instrumentation for pid %d: %w", c.target, err)
				sendEvent(s.events, Event{
					Target:   int(c.target),
					ChildPID: c.inst.PID(),
					Type:     EventTypeError,
					Message:  err.Error(),
					Err:      err,
					Reason:   ReasonKillFailed,
				})
				return err
			}
			sendEvent(s.events, Event{
				Target:   int(c.target),
				ChildPID: c.inst.PID(),
				Type:     EventTypeKilled,
				Message:  fmt.Sprintf("Killed instrumentation process %d for PID %d", c.inst.PID(), c.target),
				Reason:   reason,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("termination incomplete", "error", err)
	}

	s.forwarders.Wait()
	s.setState(StateExited)
	sendEvent(s.events, Event{Type: EventTypeTerminated, Message: "All attached processes terminated", Reason: reason})
	return Result{State: StateExited, Launched: launched, Reason: reason}
}
