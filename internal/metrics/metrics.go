package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded by ObserveRun.
const (
	OutcomeSuccess      = "success"
	OutcomeNonZero      = "nonzero"
	OutcomeSpawnFailure = "spawn_failure"
)

var (
	registry = prometheus.NewRegistry()

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orun",
		Name:      "runs_total",
		Help:      "Total number of completed runs by outcome.",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orun",
		Name:      "run_duration_seconds",
		Help:      "Wall time from spawn to completion of a run in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
	}, []string{"outcome"})

	linesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orun",
		Name:      "lines_total",
		Help:      "Total number of output lines captured per stream.",
	}, []string{"stream"})

	decodeReplacements = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orun",
		Name:      "decode_replacements_total",
		Help:      "Lines that contained bytes not valid in the configured encoding.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orun",
		Name:      "build_info",
		Help:      "Build metadata for the running orun binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(runsTotal, runDuration, linesTotal, decodeReplacements, buildInfo)
}

// Registry returns the Prometheus registry containing all orun metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveRun records a completed run.
func ObserveRun(outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AddLines increments the captured line counter for a stream.
func AddLines(stream string, n int) {
	if stream == "" || n <= 0 {
		return
	}
	linesTotal.WithLabelValues(stream).Add(float64(n))
}

// IncDecodeReplacement counts a line decoded with replacement or escaping.
func IncDecodeReplacement() {
	decodeReplacements.Inc()
}

// WriteTextfile writes the registry in the Prometheus text format to path.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
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
