// Package metrics exposes Prometheus collectors for the daemon and a
// sampler that feeds per-process resource usage back into supervision.
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

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "velos",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful process starts.",
		}, []string{"name"},
	)
	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "velos",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Number of restarts, automatic and explicit.",
		}, []string{"name"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "velos",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or kill).",
		}, []string{"name"},
	)
	processErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "velos",
			Subsystem: "process",
			Name:      "errors_total",
			Help:      "Number of times a process entered the errored state.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "velos",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between different process states.",
		}, []string{"name", "from", "to"},
	)
	processMemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "velos",
			Subsystem: "process",
			Name:      "memory_rss_bytes",
			Help:      "Resident set size of the supervised process.",
		}, []string{"name"},
	)
	processCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "velos",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage of the supervised process.",
		}, []string{"name"},
	)
	processUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "velos",
			Subsystem: "process",
			Name:      "up",
			Help:      "Whether the supervised process is currently running.",
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
		processStarts, processRestarts, processStops, processErrors,
		stateTransitions, processMemoryBytes, processCPUPercent, processUp,
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

// Handler returns an http.Handler serving the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		processRestarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		processStops.WithLabelValues(name).Inc()
	}
}

func IncError(name string) {
	if regOK.Load() {
		processErrors.WithLabelValues(name).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetMemory(name string, rss uint64) {
	if regOK.Load() {
		processMemoryBytes.WithLabelValues(name).Set(float64(rss))
	}
}

func SetCPU(name string, pct float64) {
	if regOK.Load() {
		processCPUPercent.WithLabelValues(name).Set(pct)
	}
}

func SetUp(name string, up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1.0
		}
		processUp.WithLabelValues(name).Set(v)
	}
}

// Forget drops all series for a deleted process.
func Forget(name string) {
	if !regOK.Load() {
		return
	}
	lbl := prometheus.Labels{"name": name}
	processStarts.DeletePartialMatch(lbl)
	processRestarts.DeletePartialMatch(lbl)
	processStops.DeletePartialMatch(lbl)
	processErrors.DeletePartialMatch(lbl)
	stateTransitions.DeletePartialMatch(lbl)
	processMemoryBytes.DeletePartialMatch(lbl)
	processCPUPercent.DeletePartialMatch(lbl)
	processUp.DeletePartialMatch(lbl)
}
