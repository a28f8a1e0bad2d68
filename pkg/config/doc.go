/*
Package config loads notifsync settings.

Settings come from three layers, later layers winning:

 1. built-in defaults
 2. an optional YAML file (a missing file is not an error)
 3. NOTIFSYNC_* environment variables, with dots replaced by underscores

# Keys

	log.level                  info
	log.json                   false
	store.driver               sqlite | bolt
	store.path                 notifsync.sqlite
	api.addr                   :8080
	api.rate_limit             0 (disabled)
	api.rate_burst             20
	engine.refresh_interval    60s
	engine.request_timeout     15s
	engine.feed_page_size      20
	engine.max_feed_page_size  100
	events.buffer              100
	events.subscriber_buffer   50
	metrics.collect_interval   15s
	health.interval            30s
	health.timeout             5s
	health.retries             3
	health.critical            [storage, engine]

# Usage

	cfg, err := config.Load("/etc/notifsync/notifsync.yaml")
	if err != nil {
		return err
	}

	// NOTIFSYNC_ENGINE_REFRESH_INTERVAL=30s overrides engine.refresh_interval
*/
package config
