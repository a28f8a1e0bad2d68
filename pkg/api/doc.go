/*
Package api implements the notifsync HTTP API.

The api package is the surface a UI talks to. It binds the engine to a
(user, hub) pair, reads count snapshots, forwards visibility changes, runs
the acknowledgement and feed operations, and streams snapshots over a
WebSocket. It also carries the internal ingress used by upstream services
to create notifications, plus the health, readiness and metrics probes.

# Architecture

	┌──────────────────────── CLIENT (UI) ────────────────────────┐
	│                                                              │
	│   REST (JSON)                     WebSocket                  │
	│   /api/v1/...                     /api/v1/counts/stream      │
	└──────────┬───────────────────────────────┬──────────────────┘
	           │                               │
	┌──────────▼──────────── API SERVER ───────▼──────────────────┐
	│                                                              │
	│   gin router                                                 │
	│   - recovery, request logging, request metrics               │
	│   - optional per-client rate limit on /api/v1 (429)          │
	│   - error mapping (engine/store errors → HTTP status)       │
	│                                                              │
	│   ┌──────────────┐   ┌───────────────┐   ┌──────────────┐   │
	│   │   Engine     │   │ storage.Store │   │  Publisher   │   │
	│   │ (one pair)   │   │ (ingress)     │   │ (broker)     │   │
	│   └──────────────┘   └───────────────┘   └──────────────┘   │
	└──────────────────────────────────────────────────────────────┘

# Routes

Session:
  - POST   /api/v1/session            bind {user_id, hub_id, foreground}
  - DELETE /api/v1/session            unbind the active pair
  - PUT    /api/v1/visibility         {foreground: bool}

Counts:
  - GET    /api/v1/counts             current snapshot
  - GET    /api/v1/counts/stream      snapshot on connect and on every change

Preferences:
  - GET    /api/v1/preferences        null preferences means all enabled
  - PUT    /api/v1/preferences        partial {feature: bool} update

Acknowledgements and feed:
  - POST   /api/v1/features/:feature/viewed
  - GET    /api/v1/feed?limit=&offset=
  - PUT    /api/v1/feed/:id/read
  - PUT    /api/v1/feed/read-all

Internal:
  - POST   /api/v1/internal/notifications   store and publish a change event

Probes:
  - GET /health, /ready, /live, /metrics

# Errors

Every failure returns {"error": "..."}:

	ErrNoActivePair              409
	ErrAcknowledgementInFlight   409  "acknowledgement already in progress"
	storage.ErrAlreadyExists     409  (notification id taken)
	storage.ErrNotFound          404
	ErrUnknownFeature            400
	ErrInvalidPage               400
	ErrClosed                    503
	anything else                502  (backing store failure)

A preference update that was applied locally but failed to persist returns
502 together with the merged preferences.

# Rate Limiting

WithRateLimit installs a token bucket per client IP on the /api/v1 group.
Probes are never limited. The limiter table is cleared when it reaches
10000 clients.

# Snapshot Stream

The stream handler captures the engine's change channel before reading a
snapshot, so a mutation between the two always produces another frame.
Pings keep idle connections alive; Shutdown closes every open stream with
a going-away close frame.

# Usage

	srv := api.NewServer(eng, store, broker)
	go func() {
		if err := srv.Start(":8080"); err != nil {
			log.Logger.Error().Err(err).Msg("API server failed")
		}
	}()
	defer srv.Shutdown(context.Background())
*/
package api
