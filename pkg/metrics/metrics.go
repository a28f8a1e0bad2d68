package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Count cache metrics
	UnreadMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifsync_unread_messages",
			Help: "Current unread message count of the active pair",
		},
	)

	UnseenFeatures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifsync_unseen_feature",
			Help: "Whether a boolean feature currently has unseen items (1 = unseen)",
		},
		[]string{"feature"},
	)

	FeedUnread = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifsync_feed_unread",
			Help: "Current unread total of the activity feed",
		},
	)

	// Refresher metrics
	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifsync_refreshes_total",
			Help: "Total number of authoritative refreshes by result",
		},
		[]string{"result"},
	)

	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifsync_refresh_duration_seconds",
			Help:    "Authoritative refresh round trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Ingester metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifsync_events_total",
			Help: "Total number of live events by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifsync_active_subscriptions",
			Help: "Number of live subscriptions currently open",
		},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifsync_broker_events_dropped_total",
			Help: "Total number of events skipped because a subscriber buffer was full",
		},
	)

	// Acknowledgement metrics
	AcknowledgementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifsync_acknowledgements_total",
			Help: "Total number of acknowledgement calls by kind and result",
		},
		[]string{"kind", "result"},
	)

	AcknowledgementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifsync_acknowledgement_duration_seconds",
			Help:    "Durable acknowledgement write duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Preference metrics
	PreferenceWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifsync_preference_writes_total",
			Help: "Total number of durable preference writes by result",
		},
		[]string{"result"},
	)

	// Feed metrics
	FeedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifsync_feed_fetches_total",
			Help: "Total number of feed page fetches by result",
		},
		[]string{"result"},
	)

	FeedFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifsync_feed_fetch_duration_seconds",
			Help:    "Feed page fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler metrics
	SchedulerActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifsync_scheduler_active",
			Help: "Whether the refresh timer is running (1 = active, 0 = suspended)",
		},
	)

	SchedulerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifsync_scheduler_transitions_total",
			Help: "Total number of visibility transitions by target state",
		},
		[]string{"state"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifsync_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifsync_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UnreadMessages)
	prometheus.MustRegister(UnseenFeatures)
	prometheus.MustRegister(FeedUnread)
	prometheus.MustRegister(RefreshesTotal)
	prometheus.MustRegister(RefreshDuration)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(ActiveSubscriptions)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(AcknowledgementsTotal)
	prometheus.MustRegister(AcknowledgementDuration)
	prometheus.MustRegister(PreferenceWritesTotal)
	prometheus.MustRegister(FeedFetchesTotal)
	prometheus.MustRegister(FeedFetchDuration)
	prometheus.MustRegister(SchedulerActive)
	prometheus.MustRegister(SchedulerTransitionsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
