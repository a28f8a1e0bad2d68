/*
Package log provides structured logging for notifsync using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component loggers and per-pair loggers carrying user_id and hub_id.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance (no-op until Init)      │          │
	│  │  - Initialized via log.Init()               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("api")                     │          │
	│  │  - WithPair("refresher", user, hub)         │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

The global logger starts as zerolog.Nop() so that packages used as a
library, and their tests, stay silent until the binary calls Init.

# Levels

  - Debug: dropped live events (self-authored, disabled feature, unknown topic),
    deduplicated acknowledgements, discarded stale refreshes
  - Info: pair activation and teardown, scheduler transitions, server start
  - Warn: failed refresh, feed fetch, preference or acknowledgement writes
  - Error: store or listener failures in the binaries
  - Fatal: unrecoverable startup errors only

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stdout,
	})

	logger := log.WithPair("refresher", userID, hubID)
	logger.Warn().Err(err).Msg("Refresh failed, keeping cached counts")
*/
package log
