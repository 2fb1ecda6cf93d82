package engine

import "github.com/prometheus/client_golang/prometheus"

// Run modes and outcomes used as metric labels.
const (
	modeBatch  = "batch"
	modeStream = "stream"

	outcomeSucceeded   = "succeeded"
	outcomeFailed      = "failed"
	outcomeLaunchError = "launch_error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Computation runs by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall-clock duration of computation processes.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"mode"},
	)

	streamLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_stream_lines_total",
			Help: "Stream output lines by result (published or dropped).",
		},
		[]string{"result"},
	)

	hubSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_hub_subscribers",
		Help: "Live event subscribers.",
	})

	hubEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backtest_hub_evictions_total",
		Help: "Subscribers evicted because they could not keep up.",
	})

	activeStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_active_streams",
		Help: "Streaming runs currently in progress.",
	})
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, streamLines, hubSubscribers, hubEvictions, activeStreams)
}
