package internal

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "skypanel"

// Metrics collects lock and backup counters. A nil *Metrics records nothing.
type Metrics struct {
	lockWait         prometheus.Histogram
	lockHeld         prometheus.Histogram
	lockFailures     prometheus.Counter
	backupsCreated   prometheus.Counter
	backupsEvicted   prometheus.Counter
	evictionFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent blocked waiting for an exclusive resource lock.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		lockHeld: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "lock",
			Name:      "held_seconds",
			Help:      "Time an exclusive resource lock was held by an operation.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		lockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "lock",
			Name:      "unavailable_total",
			Help:      "Lock attempts that failed before the lock was acquired.",
		}),
		backupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "backup",
			Name:      "created_total",
			Help:      "Backup copies written.",
		}),
		backupsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "backup",
			Name:      "evicted_total",
			Help:      "Old backup copies removed by rotation.",
		}),
		evictionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "backup",
			Name:      "eviction_failures_total",
			Help:      "Old backup copies rotation could not remove.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.lockWait, m.lockHeld, m.lockFailures, m.backupsCreated, m.backupsEvicted, m.evictionFailures)
	}

	return m
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) ObserveLockHeld(d time.Duration) {
	if m == nil {
		return
	}
	m.lockHeld.Observe(d.Seconds())
}

func (m *Metrics) IncLockFailures() {
	if m == nil {
		return
	}
	m.lockFailures.Inc()
}

func (m *Metrics) IncBackupsCreated() {
	if m == nil {
		return
	}
	m.backupsCreated.Inc()
}

func (m *Metrics) AddBackupsEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backupsEvicted.Add(float64(n))
}

func (m *Metrics) AddEvictionFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictionFailures.Add(float64(n))
}
