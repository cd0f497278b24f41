// Package metrics holds the Prometheus instrumentation for devstatd's
// periodic services. The struct-of-metrics-plus-NewMetrics(registerer)
// shape, and registering everything up front in one MustRegister call, is
// lifted from the rest of the example pack's triage.Metrics — the teacher
// itself carries no metrics library, so this is adopted wholesale from
// elsewhere in the corpus rather than hand-rolled.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters/gauges/histograms devstatd exposes for its
// scheduler and retention services.
type Metrics struct {
	TickDuration     prometheus.Histogram
	TicksTotal       prometheus.Counter
	TickFailures     prometheus.Counter
	AlertsFiredTotal *prometheus.CounterVec
	EventsTotal      *prometheus.CounterVec
	ObserversGauge   prometheus.Gauge

	RollupDuration *prometheus.HistogramVec
	RollupProgress *prometheus.GaugeVec
	PruneRowsTotal *prometheus.CounterVec
	RetentionRuns  prometheus.Counter
	RetentionFails prometheus.Counter
}

// NewMetrics registers and returns devstatd's metrics on the given
// registerer. Pass prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "devstatd_tick_duration_seconds",
			Help:    "Duration of one SnapshotScheduler tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devstatd_ticks_total",
			Help: "Total SnapshotScheduler ticks that committed a snapshot.",
		}),
		TickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devstatd_tick_failures_total",
			Help: "Total ticks that failed to commit (rolled back, no broadcast).",
		}),
		AlertsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devstatd_alerts_fired_total",
			Help: "Total alerts fired by type.",
		}, []string{"type", "severity"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devstatd_timeline_events_total",
			Help: "Total timeline events emitted by kind.",
		}, []string{"kind"}),
		ObserversGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devstatd_livebus_observers",
			Help: "Current number of attached LiveBus observer sessions.",
		}),
		RollupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "devstatd_rollup_duration_seconds",
			Help:    "Duration of one rollup step by resolution.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"resolution"}),
		RollupProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "devstatd_rollup_cursor_lag_seconds",
			Help: "Seconds between now and the rollup cursor's next_start, by resolution.",
		}, []string{"resolution"}),
		PruneRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devstatd_pruned_rows_total",
			Help: "Total rows pruned by the retention service, by table.",
		}, []string{"table"}),
		RetentionRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devstatd_retention_cycles_total",
			Help: "Total retention cycles that committed successfully.",
		}),
		RetentionFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devstatd_retention_cycle_failures_total",
			Help: "Total retention cycles that failed and rolled back.",
		}),
	}

	reg.MustRegister(
		m.TickDuration,
		m.TicksTotal,
		m.TickFailures,
		m.AlertsFiredTotal,
		m.EventsTotal,
		m.ObserversGauge,
		m.RollupDuration,
		m.RollupProgress,
		m.PruneRowsTotal,
		m.RetentionRuns,
		m.RetentionFails,
	)

	return m
}
