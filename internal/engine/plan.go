package engine

import (
	"errors"
	"strconv"

	"github.com/Paintersrp/hookall/internal/locator"
	"github.com/Paintersrp/hookall/internal/runtime"
)

// ErrNoCommand reports a launch plan without an instrumentation command.
var ErrNoCommand = errors.New("launch plan requires a command")

// LaunchPlan describes how to build the instrumentation command for a target.
type LaunchPlan struct {
	Command    []string
	PIDFlag    string
	ScriptFlag string
	Scripts    []string
	Env        map[string]string
	Workdir    string
	Output     runtime.OutputMode
}

// Validate reports whether the plan can produce a command line.
func (p LaunchPlan) Validate() error {
	if len(p.Command) == 0 || p.Command[0] == "" {
		return ErrNoCommand
	}
	return nil
}

// Argv renders the full command line for target:
// command... <pidFlag> <pid> [<scriptFlag> <script>]...
func (p LaunchPlan) Argv(target locator.PID) []string {
	argv := make([]string, 0, len(p.Command)+2+2*len(p.Scripts))
	argv = append(argv, p.Command...)
	if p.PIDFlag != "" {
		argv = append(argv, p.PIDFlag)
	}
	argv = append(argv, strconv.Itoa(int(target)))
	for _, script := range p.Scripts {
		if p.ScriptFlag != "" {
			argv = append(argv, p.ScriptFlag)
		}
		argv = append(argv, script)
	}
	return argv
}

// StartSpec converts the plan into a runtime start request for target.
func (p LaunchPlan) StartSpec(target locator.PID) runtime.StartSpec {
	spec := runtime.StartSpec{
		Name:    "pid-" + strconv.Itoa(int(target)),
		Command: p.Argv(target),
		Workdir: p.Workdir,
		Output:  p.Output,
	}
	if len(p.Env) > 0 {
		env := make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			env[k] = v
		}
		spec.Env = env
	}
	return spec
}
