package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ScansTotal counts submissions to the inference backend by outcome.
	ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pesoscan",
		Subsystem: "scanner",
		Name:      "scans_total",
		Help:      "Total number of scan submissions, labeled by result.",
	}, []string{"result"})

	// ScanDurationSeconds is the round trip of a single submission.
	ScanDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pesoscan",
		Subsystem: "scanner",
		Name:      "scan_duration_seconds",
		Help:      "Time from submitting an image to receiving the backend payload.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45},
	}, []string{"result"})

	// ScanInFlight is 1 while a submission is outstanding.
	ScanInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pesoscan",
		Subsystem: "scanner",
		Name:      "scan_in_flight",
		Help:      "Number of scan submissions currently waiting on the backend.",
	})

	// VerdictsTotal counts classified results by status class.
	VerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pesoscan",
		Subsystem: "classifier",
		Name:      "verdicts_total",
		Help:      "Total number of classified scan results, labeled by status class.",
	}, []string{"status"})

	// HistoryRecords is the number of records currently stored.
	HistoryRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pesoscan",
		Subsystem: "history",
		Name:      "records",
		Help:      "Number of records in the local scan history.",
	})

	// HistoryOperationsTotal counts history mutations and exports.
	HistoryOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pesoscan",
		Subsystem: "history",
		Name:      "operations_total",
		Help:      "Total number of history operations, labeled by operation.",
	}, []string{"op"})
)

// Register registers the instruments with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ScansTotal,
			ScanDurationSeconds,
			ScanInFlight,
			VerdictsTotal,
			HistoryRecords,
			HistoryOperationsTotal,
		)
	})
}
