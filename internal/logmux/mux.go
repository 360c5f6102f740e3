// Package logmux buffers child output between the supervisor and the writer
// that renders it.
package logmux

import (
	"fmt"
	"time"

	"github.com/Paintersrp/hookall/internal/engine"
	"github.com/Paintersrp/hookall/internal/runtime"
)

// Mux holds log events in a bounded channel. A line that does not fit is
// dropped, and the next line for the same target is preceded by a single
// "dropped=N" warning. Publish and Close must be called from one goroutine.
type Mux struct {
	out chan engine.Event

	drops map[int]*dropRecord
	order []int
}

type dropRecord struct {
	count    int
	childPID int
}

// New constructs a mux buffering up to size events. Sizes below one are
// raised to one.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan engine.Event, size),
		drops: make(map[int]*dropRecord),
	}
}

// Output exposes the buffered event channel. It is closed by Close.
func (m *Mux) Output() <-chan engine.Event {
	return m.out
}

// Publish offers evt without blocking. Events other than log lines are
// ignored.
func (m *Mux) Publish(evt engine.Event) {
	if evt.Type != engine.EventTypeLog {
		return
	}
	evt = normalize(evt)

	if rec := m.drops[evt.Target]; rec != nil {
		if !m.trySend(dropEvent(evt.Target, rec)) {
			m.drop(evt)
			return
		}
		m.forget(evt.Target)
	}
	if !m.trySend(evt) {
		m.drop(evt)
	}
}

// Close reports outstanding drops, waiting for the consumer if needed, and
// closes the output channel.
func (m *Mux) Close() {
	for _, target := range m.order {
		m.out <- dropEvent(target, m.drops[target])
	}
	m.drops = nil
	m.order = nil
	close(m.out)
}

func (m *Mux) trySend(evt engine.Event) bool {
	select {
	case m.out <- evt:
		return true
	default:
		return false
	}
}

func (m *Mux) drop(evt engine.Event) {
	rec := m.drops[evt.Target]
	if rec == nil {
		rec = &dropRecord{}
		m.drops[evt.Target] = rec
		m.order = append(m.order, evt.Target)
	}
	rec.count++
	if evt.ChildPID != 0 {
		rec.childPID = evt.ChildPID
	}
}

func (m *Mux) forget(target int) {
	delete(m.drops, target)
	for i, t := range m.order {
		if t == target {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func normalize(evt engine.Event) engine.Event {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Source == "" {
		evt.Source = runtime.LogSourceStdout
	}
	if evt.Level == "" {
		evt.Level = "info"
		if evt.Source == runtime.LogSourceStderr {
			evt.Level = "warn"
		}
	}
	return evt
}

func dropEvent(target int, rec *dropRecord) engine.Event {
	return engine.Event{
		Timestamp: time.Now(),
		Target:    target,
		ChildPID:  rec.childPID,
		Type:      engine.EventTypeLog,
		Message:   fmt.Sprintf("dropped=%d", rec.count),
		Level:     "warn",
		Source:    runtime.LogSourceSystem,
	}
}
