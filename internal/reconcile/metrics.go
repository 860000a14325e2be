package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hasanat"

var (
	entriesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "entries_total",
			Help:      "Sync entries processed by entity type and outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "batch_duration_seconds",
			Help:      "Time to apply one typed batch",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "batch_size",
			Help:      "Entries per typed batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	legacyRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "legacy_records_total",
			Help:      "Records received through the legacy bulk format",
		},
	)
)

func recordEntryApplied(entityType, outcome string) {
	entriesApplied.WithLabelValues(entityType, outcome).Inc()
}

func recordBatch(size int, duration time.Duration) {
	batchSize.Observe(float64(size))
	batchDuration.Observe(duration.Seconds())
}

func recordLegacyBulk(records int) {
	legacyRecords.Add(float64(records))
}
