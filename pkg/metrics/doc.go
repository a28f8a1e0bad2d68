/*
Package metrics provides Prometheus metrics and health reporting for notifsync.

All metrics are package-level collectors registered with the default
Prometheus registry at init time. Components update them directly; the API
server exposes them on /metrics through Handler.

# Architecture

	┌──────────────────── METRICS ─────────────────────────┐
	│                                                        │
	│  engine ──► counters / histograms (inline updates)    │
	│     │        refreshes, events, acknowledgements,     │
	│     │        feed fetches, scheduler transitions      │
	│     │                                                  │
	│     └─────► Collector (ticker) ──► count gauges       │
	│              unread messages, unseen features,        │
	│              feed unread                              │
	│                                                        │
	│  health registry ──► /health  /ready  /live           │
	│  promhttp ─────────► /metrics                         │
	└────────────────────────────────────────────────────────┘

# Metric Categories

Count cache:
  - notifsync_unread_messages
  - notifsync_unseen_feature{feature}
  - notifsync_feed_unread

Refresher:
  - notifsync_refreshes_total{result}
  - notifsync_refresh_duration_seconds

Ingester and broker:
  - notifsync_events_total{topic,outcome}
  - notifsync_broker_events_dropped_total
  - notifsync_active_subscriptions

Acknowledgements, preferences and feed:
  - notifsync_acknowledgements_total{kind,result}
  - notifsync_acknowledgement_duration_seconds{kind}
  - notifsync_feed_fetches_total{result}
  - notifsync_feed_fetch_duration_seconds
  - notifsync_preference_writes_total{result}

Scheduler:
  - notifsync_scheduler_active
  - notifsync_scheduler_transitions_total{state}

API:
  - notifsync_api_requests_total{method,status}
  - notifsync_api_request_duration_seconds{method}

# Health

Components register themselves with RegisterComponent and keep their state
current with UpdateComponent. Only critical components (storage and engine by
default) affect /health and /ready. The live event subscription is reported
as degraded when it fails because polling keeps counts correct without it.

# Usage

	timer := metrics.NewTimer()
	counts, err := refresher.Refresh(ctx)
	timer.ObserveDuration(metrics.RefreshDuration)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("error").Inc()
	}

	collector := metrics.NewCollector(engine, 15*time.Second)
	collector.Start()
	defer collector.Stop()
*/
package metrics
