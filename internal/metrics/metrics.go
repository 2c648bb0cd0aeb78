package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of spawn attempts per service.",
		}, []string{"name"},
	)
	serviceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Number of restart attempts after a crash.",
		}, []string{"name"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of clean stops.",
		}, []string{"name"},
	)
	readyWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "ready_wait_seconds",
			Help:      "Time spent waiting for the readiness probe to succeed.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "state_transitions_total",
			Help:      "Number of lifecycle state transitions.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "current_state",
			Help:      "Current lifecycle state (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "cpu_percent",
			Help:      "CPU usage of the running service process.",
		}, []string{"name"},
	)
	memoryRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stagehand",
			Subsystem: "service",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the running service process.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceRestarts, serviceStops, readyWait,
		stateTransitions, currentStates, cpuPercent, memoryRSS,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers with the default prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		serviceRestarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(name).Inc()
	}
}

func ObserveReadyWait(name string, seconds float64) {
	if regOK.Load() {
		readyWait.WithLabelValues(name).Observe(seconds)
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}

func SetResources(name string, cpu float64, rssBytes uint64) {
	if regOK.Load() {
		cpuPercent.WithLabelValues(name).Set(cpu)
		memoryRSS.WithLabelValues(name).Set(float64(rssBytes))
	}
}
