package cli

import (
	stdcontext "context"
	"errors"
	"testing"
	"time"

	"github.com/Paintersrp/hookall/internal/api"
	"github.com/Paintersrp/hookall/internal/engine"
	"github.com/Paintersrp/hookall/internal/locator"
	"github.com/Paintersrp/hookall/internal/runtime"
)

func testPlan() engine.LaunchPlan {
	return engine.LaunchPlan{
		Command:    []string{"frida"},
		PIDFlag:    "-p",
		ScriptFlag: "-l",
		Scripts:    []string{"config.js"},
		Output:     runtime.OutputInherit,
	}
}

func TestControllerStatusBeforeRun(t *testing.T) {
	sup := engine.NewSupervisor(&stubRuntime{}, testPlan())
	ctrl := &controller{supervisor: sup, filter: "chrome", matched: []locator.PID{100, 200}}

	report, err := ctrl.Status(stdcontext.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Filter != "chrome" {
		t.Fatalf("unexpected filter %q", report.Filter)
	}
	if len(report.Matched) != 2 || report.Matched[0] != 100 || report.Matched[1] != 200 {
		t.Fatalf("unexpected matches %v", report.Matched)
	}
	if len(report.Children) != 0 {
		t.Fatalf("expected no children, got %+v", report.Children)
	}
	if report.GeneratedAt.IsZero() {
		t.Fatalf("expected generated timestamp")
	}
}

func TestControllerQuitRequiresListening(t *testing.T) {
	sup := engine.NewSupervisor(&stubRuntime{}, testPlan())
	ctrl := &controller{supervisor: sup, quit: make(chan rune, 1)}

	if _, err := ctrl.Quit(stdcontext.Background()); !errors.Is(err, api.ErrNotListening) {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
}

func TestControllerQuitStopsRunningSupervisor(t *testing.T) {
	rt := &stubRuntime{}
	sup := engine.NewSupervisor(rt, testPlan())
	input := make(chan rune, 1)
	ctrl := &controller{supervisor: sup, filter: "chrome", matched: []locator.PID{100, 200}, quit: input}

	done := make(chan engine.Result, 1)
	go func() {
		res, _ := sup.Run(stdcontext.Background(), []locator.PID{100, 200}, input)
		done <- res
	}()

	deadline := time.Now().Add(5 * time.Second)
	for sup.State() != engine.StateListening {
		if time.Now().After(deadline) {
			t.Fatalf("supervisor never started listening")
		}
		time.Sleep(5 * time.Millisecond)
	}

	report, err := ctrl.Status(stdcontext.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.State != string(engine.StateListening) || len(report.Children) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Children[0].Target != 100 || report.Children[0].PID != 40001 {
		t.Fatalf("unexpected child %+v", report.Children[0])
	}

	result, err := ctrl.Quit(stdcontext.Background())
	if err != nil {
		t.Fatalf("quit: %v", err)
	}
	if result.Children != 2 {
		t.Fatalf("expected 2 live children, got %d", result.Children)
	}

	select {
	case res := <-done:
		if res.Reason != engine.ReasonQuitKey || res.Launched != 2 {
			t.Fatalf("unexpected result %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not stop after quit")
	}
	for _, child := range rt.children {
		if child.killCount() != 1 {
			t.Fatalf("expected child %d killed", child.pid)
		}
	}
}
