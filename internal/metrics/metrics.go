package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ConnectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "itemstored_connections_total",
			Help: "Current number of open client connections",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemstored_commands_total",
			Help: "Total number of commands processed by command name and result",
		},
		[]string{"command", "result"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itemstored_command_duration_seconds",
			Help:    "Command handling duration in seconds by command name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// Store metrics
	ItemsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "itemstored_items_total",
			Help: "Total number of items in the store",
		},
	)

	CollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "itemstored_collections_total",
			Help: "Total number of collections in the store",
		},
	)

	StoreTransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itemstored_store_transaction_duration_seconds",
			Help:    "Store transaction duration in seconds by writability",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"writable"},
	)

	StoreRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "itemstored_store_retries_total",
			Help: "Total number of write transactions retried after a timed-out acquisition",
		},
	)

	ConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "itemstored_conflicts_total",
			Help: "Total number of item updates rejected for a stale revision",
		},
	)

	// Notification metrics
	NotificationsPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "itemstored_notifications_published_total",
			Help: "Total number of notifications published to the bus",
		},
	)

	SubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "itemstored_subscribers_total",
			Help: "Current number of registered notification subscribers",
		},
	)

	SubscribersDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "itemstored_subscribers_dropped_total",
			Help: "Total number of subscribers disconnected for a full queue",
		},
	)

	// Retrieval metrics
	RetrievalCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "itemstored_retrieval_coalesced_total",
			Help: "Total number of item retrieval requests that joined an in-flight fetch instead of starting a new one",
		},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itemstored_retrieval_duration_seconds",
			Help:    "Time to retrieve a payload part from a resource in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Resource gateway metrics
	ResourceGatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemstored_resource_gateway_requests_total",
			Help: "Total number of resource gateway RPCs served, by method and result",
		},
		[]string{"method", "result"},
	)

	// Scheduler metrics
	ScheduledRechecksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "itemstored_scheduled_rechecks_total",
			Help: "Total number of cache-expiry rechecks fired",
		},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(ItemsTotal)
	prometheus.MustRegister(CollectionsTotal)
	prometheus.MustRegister(StoreTransactionDuration)
	prometheus.MustRegister(StoreRetriesTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(NotificationsPublishedTotal)
	prometheus.MustRegister(SubscribersTotal)
	prometheus.MustRegister(SubscribersDroppedTotal)
	prometheus.MustRegister(RetrievalCoalescedTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(ResourceGatewayRequestsTotal)
	prometheus.MustRegister(ScheduledRechecksTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
