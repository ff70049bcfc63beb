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

	reconcileOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keepbusy",
			Subsystem: "reconcile",
			Name:      "operations_total",
			Help:      "Number of reconcile operations by kind.",
		}, []string{"op"},
	)
	reconcileFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keepbusy",
			Subsystem: "reconcile",
			Name:      "failures_total",
			Help:      "Number of reconcile failures by phase.",
		}, []string{"phase"},
	)
	verifyRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "keepbusy",
			Subsystem: "reconcile",
			Name:      "verify_retries_total",
			Help:      "Number of verification retries after apply.",
		},
	)
	applyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "keepbusy",
			Subsystem: "reconcile",
			Name:      "apply_duration_seconds",
			Help:      "Observed duration of descriptor apply including control plane reload.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	enabledGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "keepbusy",
			Name:      "enabled",
			Help:      "Whether the background load is currently enabled (1) or not (0).",
		},
	)
	controlPlaneRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "keepbusy",
			Subsystem: "control_plane",
			Name:      "restarts_total",
			Help:      "Number of supervisor service restarts attempted on unavailability.",
		},
	)
	watchdogChecks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "keepbusy",
			Subsystem: "watchdog",
			Name:      "checks_total",
			Help:      "Number of watchdog check cycles.",
		},
	)
	watchdogMissing = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keepbusy",
			Subsystem: "watchdog",
			Name:      "missing_total",
			Help:      "Number of checks that found an expected process not RUNNING.",
		}, []string{"process"},
	)
	descriptorDrift = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "keepbusy",
			Subsystem: "watchdog",
			Name:      "descriptor_drift_total",
			Help:      "Number of detected descriptor changes outside the tool.",
		},
	)
	processCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "keepbusy",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "Observed CPU usage percentage of supervised processes.",
		}, []string{"process"},
	)
	processMemoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "keepbusy",
			Subsystem: "process",
			Name:      "memory_mb",
			Help:      "Observed resident memory in MB of supervised processes.",
		}, []string{"process"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		reconcileOps, reconcileFailures, verifyRetries, applyDuration,
		enabledGauge, controlPlaneRestarts,
		watchdogChecks, watchdogMissing, descriptorDrift,
		processCPUPercent, processMemoryMB,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncReconcile(op string) {
	if regOK.Load() {
		reconcileOps.WithLabelValues(op).Inc()
	}
}
func IncReconcileFailure(phase string) {
	if regOK.Load() {
		reconcileFailures.WithLabelValues(phase).Inc()
	}
}
func IncVerifyRetry() {
	if regOK.Load() {
		verifyRetries.Inc()
	}
}
func ObserveApplyDuration(seconds float64) {
	if regOK.Load() {
		applyDuration.Observe(seconds)
	}
}
func SetEnabled(enabled bool) {
	if regOK.Load() {
		var value float64
		if enabled {
			value = 1
		}
		enabledGauge.Set(value)
	}
}
func IncControlPlaneRestart() {
	if regOK.Load() {
		controlPlaneRestarts.Inc()
	}
}
func IncWatchdogCheck() {
	if regOK.Load() {
		watchdogChecks.Inc()
	}
}
func IncWatchdogMissing(process string) {
	if regOK.Load() {
		watchdogMissing.WithLabelValues(process).Inc()
	}
}
func IncDescriptorDrift() {
	if regOK.Load() {
		descriptorDrift.Inc()
	}
}
func SetProcessUsage(process string, cpuPercent, memoryMB float64) {
	if regOK.Load() {
		processCPUPercent.WithLabelValues(process).Set(cpuPercent)
		processMemoryMB.WithLabelValues(process).Set(memoryMB)
	}
}
