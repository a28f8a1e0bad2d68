/*
Package health runs periodic dependency checks for notifsync.

A Monitor runs one Checker on an interval and mirrors the outcome into the
metrics health registry, which backs the /health and /ready endpoints. The
only checker today is StoreChecker, which pings the backing store.

# Architecture

	┌──────────────┐   every Interval   ┌──────────────┐
	│   Monitor    │───────────────────▶│   Checker    │
	│ (clock tick) │◀───── Result ──────│ StoreChecker │
	└──────┬───────┘                    └──────┬───────┘
	       │ Status.Update                     │ Ping(ctx)
	       ▼                                   ▼
	┌──────────────────┐               ┌──────────────┐
	│ metrics registry │               │ storage.Store│
	│ "storage" comp.  │               └──────────────┘
	└──────────────────┘

## Check Flow

 1. Start registers the component as healthy and checks immediately
 2. Every Interval the checker runs with Timeout
 3. A failure increments the consecutive failure count
 4. At Retries consecutive failures the component turns unhealthy
 5. One success turns it healthy again

Failures during StartPeriod are not counted.

# Usage

	mon := health.NewMonitor(metrics.ComponentStorage,
		health.NewStoreChecker(store, "sqlite"),
		health.Config{Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 3},
		nil)
	mon.Start()
	defer mon.Stop()
*/
package health
