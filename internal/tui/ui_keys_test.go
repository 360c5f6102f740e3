package tui

import (
	"errors"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/hookall/internal/engine"
)

func newTestUI(t *testing.T) *UI {
	t.Helper()
	return newUI(tview.NewApplication())
}

func TestQuitKeyForwardsToSupervisor(t *testing.T) {
	for _, r := range []rune{'q', 'Q'} {
		ui := newTestUI(t)
		ui.app.SetFocus(ui.table)

		key := tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
		if res := ui.handleKey(key); res != nil {
			t.Fatalf("expected %q to be consumed", r)
		}
		select {
		case got := <-ui.Keys():
			if got != r {
				t.Fatalf("expected %q forwarded, got %q", r, got)
			}
		default:
			t.Fatalf("expected %q on the key channel", r)
		}
		select {
		case <-ui.Done():
			t.Fatalf("quit must not stop the UI before the supervisor finishes")
		default:
		}
	}
}

func TestQuitKeyDoesNotBlockWhenUnread(t *testing.T) {
	ui := newTestUI(t)
	ui.app.SetFocus(ui.table)
	key := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(ui.keys)+3; i++ {
			ui.handleKey(key)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handleKey blocked on a full key channel")
	}
}

func TestHandleKeyRespectsOverlayFocus(t *testing.T) {
	ui := newTestUI(t)
	ui.app.SetFocus(ui.table)

	slash := tcell.NewEventKey(tcell.KeyRune, '/', tcell.ModNone)
	if res := ui.handleKey(slash); res != nil {
		t.Fatalf("expected filter shortcut to be consumed when table focused")
	}

	if _, ok := ui.app.GetFocus().(*tview.InputField); !ok {
		t.Fatalf("expected filter input to have focus, got %T", ui.app.GetFocus())
	}

	quit := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	if res := ui.handleKey(quit); res != quit {
		t.Fatalf("expected q to reach the filter input while it has focus")
	}
	select {
	case <-ui.Keys():
		t.Fatalf("typing q into the filter must not quit")
	default:
	}

	ui.pages.RemovePage(filterPageName)
	ui.app.SetFocus(ui.table)

	other := tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)
	if res := ui.handleKey(other); res != other {
		t.Fatalf("expected rune to pass through when table focused")
	}
}

func TestToggleFocus(t *testing.T) {
	ui := newTestUI(t)
	ui.app.SetFocus(ui.table)

	enter := tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone)
	if res := ui.handleKey(enter); res != nil {
		t.Fatalf("expected Enter to be consumed")
	}
	if ui.app.GetFocus() != ui.logs || !ui.logsFocused {
		t.Fatalf("expected logs to have focus after toggle")
	}
	ui.handleKey(enter)
	if ui.app.GetFocus() != ui.table || ui.logsFocused {
		t.Fatalf("expected table to regain focus")
	}
}

func TestApplyEventTracksTargets(t *testing.T) {
	ui := newTestUI(t)

	ui.applyEvent(engine.Event{Target: 5678, ChildPID: 902, Type: engine.EventTypeAttached, Message: "attached"})
	ui.applyEvent(engine.Event{Target: 1234, ChildPID: 901, Type: engine.EventTypeAttached, Message: "attached"})
	ui.applyEvent(engine.Event{Target: 1234, Type: engine.EventTypeLog, Source: "stdout", Message: "hooked"})
	ui.applyEvent(engine.Event{Target: 5678, Type: engine.EventTypeExited, ExitCode: 1, Message: "Instrumentation process for PID 5678 exited with code 1", Reason: engine.ReasonChildExit})
	ui.applyEvent(engine.Event{Type: engine.EventTypeListening, Message: "Press Q to quit all attached processes"})

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	if len(ui.visible) != 2 || ui.visible[0] != 1234 || ui.visible[1] != 5678 {
		t.Fatalf("expected targets sorted, got %v", ui.visible)
	}
	if ui.selected != 1234 {
		t.Fatalf("expected first target selected, got %d", ui.selected)
	}
	if got := ui.table.GetCell(1, 1).Text; got != "901" {
		t.Fatalf("unexpected child pid cell %q", got)
	}
	if got := ui.table.GetCell(2, 2).Text; got != "Exited" {
		t.Fatalf("unexpected state cell %q", got)
	}
	if got := ui.table.GetCell(2, 3).Text; got != "1" {
		t.Fatalf("unexpected exit cell %q", got)
	}
	if got := ui.table.GetCell(1, 3).Text; got != "-" {
		t.Fatalf("live target should have no exit code, got %q", got)
	}
	if logs := ui.targets[1234].logs; len(logs) != 1 || logs[0].Message != "hooked" {
		t.Fatalf("unexpected logs %+v", logs)
	}
	if ui.banner != "Press Q to quit all attached processes" {
		t.Fatalf("unexpected banner %q", ui.banner)
	}
}

func TestApplyEventTrimsLogs(t *testing.T) {
	ui := newTestUI(t)
	ui.maxLogs = 2
	for _, msg := range []string{"a", "b", "c"} {
		ui.applyEvent(engine.Event{Target: 1, Type: engine.EventTypeLog, Message: msg})
	}
	logs := ui.targets[1].logs
	if len(logs) != 2 || logs[0].Message != "b" || logs[1].Message != "c" {
		t.Fatalf("unexpected retained logs %+v", logs)
	}
}

func TestFormatEventMessage(t *testing.T) {
	tests := []struct {
		name string
		evt  engine.Event
		want string
	}{
		{name: "messageOnly", evt: engine.Event{Message: "Attaching to PID: 1234", Reason: engine.ReasonInitialLaunch}, want: "Attaching to PID: 1234"},
		{name: "errorOnly", evt: engine.Event{Err: errors.New("exec: \"frida\": not found")}, want: "exec: \"frida\": not found"},
		{name: "errorInMessage", evt: engine.Event{Message: "kill failed: no such process", Err: errors.New("no such process")}, want: "kill failed: no such process"},
		{name: "messageAndError", evt: engine.Event{Message: "exited", Err: errors.New("signal: killed")}, want: "exited: signal: killed"},
		{name: "reason", evt: engine.Event{Message: "Killed", Reason: engine.ReasonQuitKey}, want: "Killed (quit_key)"},
		{name: "reasonOnly", evt: engine.Event{Reason: engine.ReasonShutdown}, want: "shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEventMessage(tt.evt); got != tt.want {
				t.Fatalf("formatEventMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCtrlCRequestsQuit(t *testing.T) {
	ui := newTestUI(t)
	ui.app.SetFocus(ui.table)
	ui.showFilterPrompt()

	key := tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)
	if res := ui.handleKey(key); res != nil {
		t.Fatalf("expected Ctrl-C to be consumed even with an overlay open")
	}
	select {
	case got := <-ui.Keys():
		if got != 'q' {
			t.Fatalf("expected quit key forwarded, got %q", got)
		}
	default:
		t.Fatalf("expected Ctrl-C to forward a quit key")
	}
	select {
	case <-ui.Done():
		t.Fatalf("Ctrl-C must leave the UI running until the supervisor finishes")
	default:
	}
}
