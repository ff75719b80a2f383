package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervice",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of spawn attempts per process.",
		}, []string{"name"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervice",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of times a process reached STOPPED.",
		}, []string{"name"},
	)
	processBackoffs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervice",
			Subsystem: "process",
			Name:      "backoffs_total",
			Help:      "Number of restart backoffs entered.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervice",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between process states.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "supervice",
			Subsystem: "process",
			Name:      "current_state",
			Help:      "Current state of processes (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	healthPassed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervice",
			Subsystem: "healthcheck",
			Name:      "passed_total",
			Help:      "Number of health probes that passed.",
		}, []string{"name"},
	)
	healthFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervice",
			Subsystem: "healthcheck",
			Name:      "failed_total",
			Help:      "Number of health probes that failed.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// Safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		processStarts, processStops, processBackoffs,
		stateTransitions, currentStates, healthPassed, healthFailed,
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

// RegisterDefault registers against the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler serves the default gatherer; the caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		processStops.WithLabelValues(name).Inc()
	}
}

func IncBackoff(name string) {
	if regOK.Load() {
		processBackoffs.WithLabelValues(name).Inc()
	}
}

func IncHealthPassed(name string) {
	if regOK.Load() {
		healthPassed.WithLabelValues(name).Inc()
	}
}

func IncHealthFailed(name string) {
	if regOK.Load() {
		healthFailed.WithLabelValues(name).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if !regOK.Load() {
		return
	}
	stateTransitions.WithLabelValues(name, from, to).Inc()
	if from != "" {
		currentStates.WithLabelValues(name, from).Set(0)
	}
	currentStates.WithLabelValues(name, to).Set(1)
}
