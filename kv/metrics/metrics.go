package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CommitCounter counts commit attempts by outcome ("commit"/"conflict").
	CommitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyxs",
			Subsystem: "txn",
			Name:      "commit_total",
			Help:      "Counter of transaction commit attempts by result.",
		}, []string{"result"})

	// OpenTxnGauge tracks the number of currently open transactions.
	OpenTxnGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tinyxs",
			Subsystem: "txn",
			Name:      "open",
			Help:      "Number of open transactions.",
		})

	// WatchEventCounter counts watch events delivered to subscribers.
	WatchEventCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinyxs",
			Subsystem: "watch",
			Name:      "event_total",
			Help:      "Counter of watch events delivered.",
		})

	// WatchDroppedCounter counts watch events dropped for slow subscribers.
	WatchDroppedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinyxs",
			Subsystem: "watch",
			Name:      "dropped_total",
			Help:      "Counter of watch events dropped due to subscriber backpressure.",
		})

	// PersistedPathCounter counts paths written to the committed-path log.
	PersistedPathCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyxs",
			Subsystem: "persist",
			Name:      "path_total",
			Help:      "Counter of committed paths persisted, by kind.",
		}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(CommitCounter)
	prometheus.MustRegister(OpenTxnGauge)
	prometheus.MustRegister(WatchEventCounter)
	prometheus.MustRegister(WatchDroppedCounter)
	prometheus.MustRegister(PersistedPathCounter)
}
