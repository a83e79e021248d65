package metrics

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripwire",
		Name:      "detections_total",
		Help:      "Total pattern detections recorded, by severity.",
	}, []string{"severity"})

	terminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripwire",
		Name:      "terminations_total",
		Help:      "Termination phases fired against observed children.",
	}, []string{"phase"})

	outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripwire",
		Name:      "runs_total",
		Help:      "Completed invocations by terminal outcome.",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tripwire",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock runtime of observed children in seconds.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tripwire",
		Name:      "build_info",
		Help:      "Build metadata for the running tripwire binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(detections, terminations, outcomes, runDuration, buildInfo)
}

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncDetection records one pattern detection of the given severity.
func IncDetection(severity string) {
	if severity == "" {
		return
	}
	detections.WithLabelValues(severity).Inc()
}

// IncTermination records that a termination phase fired.
func IncTermination(phase string) {
	if phase == "" {
		return
	}
	terminations.WithLabelValues(phase).Inc()
}

// ObserveRun records a completed invocation.
func ObserveRun(outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	outcomes.WithLabelValues(outcome).Inc()
	runDuration.Observe(d.Seconds())
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
