// Package metrics exposes Prometheus metrics for the gateway, the wizard
// sessions and the restore poller.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "firerestore"

// Registry holds every collector exported by this service.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	gatewayCommands = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "commands_total",
		Help:      "External CLI invocations by command and outcome.",
	}, []string{"command", "outcome"})

	gatewayDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "command_duration_seconds",
		Help:      "External CLI invocation latency.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"command"})

	restoresStarted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restore",
		Name:      "starts_total",
		Help:      "Restore start attempts by outcome.",
	}, []string{"outcome"})

	restoresFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restore",
		Name:      "finished_total",
		Help:      "Restores that reached a terminal state by outcome.",
	}, []string{"outcome"})

	pollFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "fetch_failures_total",
		Help:      "Operation status fetches that failed during polling.",
	})

	activePollers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "active",
		Help:      "Poll tasks currently running.",
	})

	activeSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wizard",
		Name:      "sessions",
		Help:      "Wizard sessions currently held in memory.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one external CLI invocation.
func ObserveCommand(command string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	gatewayCommands.WithLabelValues(command, outcome).Inc()
	gatewayDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// RestoreStarted records a restore start attempt.
// outcome is "started" or the failure class of a refused start.
func RestoreStarted(outcome string) {
	restoresStarted.WithLabelValues(outcome).Inc()
}

// RestoreFinished records a terminal restore.
// outcome is one of "succeeded", "failed", "abandoned".
func RestoreFinished(outcome string) {
	restoresFinished.WithLabelValues(outcome).Inc()
}

// PollFailed records a failed status fetch.
func PollFailed() {
	pollFailures.Inc()
}

// PollerStarted and PollerStopped track running poll tasks.
func PollerStarted() { activePollers.Inc() }

func PollerStopped() { activePollers.Dec() }

// SetSessions sets the number of live wizard sessions.
func SetSessions(n int) {
	activeSessions.Set(float64(n))
}
