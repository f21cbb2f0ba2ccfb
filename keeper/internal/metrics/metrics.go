package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Keeper cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moebius_keeper_cycles_total",
			Help: "Total number of keeper cycles by outcome",
		},
		[]string{"task", "outcome"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moebius_keeper_cycle_duration_seconds",
			Help:    "Duration of a keeper cycle from argument build to inclusion or confirmation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moebius_keeper_last_success_timestamp_seconds",
			Help: "Unix time of the last successful cycle",
		},
		[]string{"task"},
	)

	InFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moebius_keeper_in_flight",
			Help: "1 while a task has a dispatch awaiting inclusion",
		},
		[]string{"task"},
	)

	// Watcher metrics
	RecordsObserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moebius_keeper_records_observed_total",
			Help: "Total number of relay correlation records seen by the watcher",
		},
	)

	WatcherCursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moebius_keeper_watcher_cursor_block",
			Help: "Next block the watcher will scan",
		},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moebius_keeper_watcher_errors_total",
			Help: "Total number of failed watcher scans",
		},
	)
)

// Outcome labels for CyclesTotal.
const (
	OutcomeSuccess  = "success"
	OutcomeEncoding = "encoding_error"
	OutcomeDispatch = "dispatch_error"
	OutcomeConfirm  = "confirm_error"
	OutcomePanic    = "panic"
)
