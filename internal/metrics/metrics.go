package metrics

import (
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	processesMatched = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hookall",
		Name:      "processes_matched",
		Help:      "Number of process ids matched by the last lookup.",
	})

	childrenAttached = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hookall",
		Name:      "children_attached",
		Help:      "Instrumentation processes currently running.",
	})

	childExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hookall",
		Name:      "child_exits_total",
		Help:      "Instrumentation processes that exited on their own, by exit code.",
	}, []string{"code"})

	childrenKilled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hookall",
		Name:      "children_killed_total",
		Help:      "Instrumentation processes force-killed during shutdown.",
	})

	launchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hookall",
		Name:      "launch_failures_total",
		Help:      "Instrumentation processes that could not be started.",
	})

	logLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hookall",
		Name:      "log_lines_total",
		Help:      "Child output lines relayed in prefixed mode, by stream.",
	}, []string{"source"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hookall",
		Name:      "build_info",
		Help:      "Build metadata for the running hookall binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(processesMatched, childrenAttached, childExits, childrenKilled, launchFailures, logLines, buildInfo)
}

// Registry returns the Prometheus registry containing all hookall metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetProcessesMatched records how many targets the locator found.
func SetProcessesMatched(n int) {
	if n < 0 {
		n = 0
	}
	processesMatched.Set(float64(n))
}

// ChildAttached marks one more running instrumentation process.
func ChildAttached() {
	childrenAttached.Inc()
}

// ChildExited records a natural exit with the given code.
func ChildExited(code int) {
	childrenAttached.Dec()
	childExits.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ChildKilled records a child stopped during shutdown.
func ChildKilled() {
	childrenAttached.Dec()
	childrenKilled.Inc()
}

// LaunchFailed increments the launch failure counter.
func LaunchFailed() {
	launchFailures.Inc()
}

// ObserveLogLine counts a relayed output line.
func ObserveLogLine(source string) {
	if source == "" {
		source = "unknown"
	}
	logLines.WithLabelValues(source).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
