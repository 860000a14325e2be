package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hasanat"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "queue_size",
			Help:      "Number of entries in the sync queue by status",
		},
		[]string{"status"},
	)

	queueEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "queue_evictions_total",
			Help:      "Entries evicted because the queue was at capacity",
		},
	)

	cyclesRun = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Sync cycles by outcome",
		},
		[]string{"outcome"},
	)

	entriesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "entries_delivered_total",
			Help:      "Delivery attempts by entity type and result",
		},
		[]string{"entity_type", "result"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "delivery_duration_seconds",
			Help:      "Time to deliver one entry to the reconciliation endpoint",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"entity_type"},
	)
)

func recordQueueStats(stats QueueStats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("synced").Set(float64(stats.Synced))
	queueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}

func recordEviction() {
	queueEvictions.Inc()
}

func recordCycle(outcome string) {
	cyclesRun.WithLabelValues(outcome).Inc()
}

func recordDelivery(entityType EntityType, result string, duration time.Duration) {
	entriesDelivered.WithLabelValues(string(entityType), result).Inc()
	deliveryDuration.WithLabelValues(string(entityType)).Observe(duration.Seconds())
}
