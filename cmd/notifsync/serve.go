package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cuemby/notifsync/pkg/api"
	"github.com/cuemby/notifsync/pkg/config"
	"github.com/cuemby/notifsync/pkg/engine"
	"github.com/cuemby/notifsync/pkg/events"
	"github.com/cuemby/notifsync/pkg/health"
	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and the HTTP API",
	Long: `Run the synchronization engine behind the HTTP API.

The engine starts idle; a client binds it to a (user, hub) pair with
POST /api/v1/session, or --user and --hub bind one at startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides api.addr)")
	serveCmd.Flags().String("user", "", "User to activate at startup")
	serveCmd.Flags().String("hub", "", "Hub to activate at startup")
}

// configureHealth applies the build version and readiness set to the health registry
func configureHealth(cfg *config.Config) {
	metrics.SetVersion(Version)
	metrics.SetCriticalComponents(cfg.Health.Critical...)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.API.Addr = addr
	}
	userID, _ := cmd.Flags().GetString("user")
	hubID, _ := cmd.Flags().GetString("hub")
	if (userID == "") != (hubID == "") {
		return fmt.Errorf("--user and --hub must be given together")
	}

	logger := log.WithComponent("serve")
	configureHealth(cfg)
	if cfg.Log.Level != string(log.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Store.Driver).Str("path", cfg.Store.Path).Msg("Failed to open store")
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	monitor := health.NewMonitor(metrics.ComponentStorage, health.NewStoreChecker(store, cfg.Store.Driver), health.Config{
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Health.Timeout,
		Retries:  cfg.Health.Retries,
	}, nil)
	monitor.Start()
	defer monitor.Stop()

	broker := events.NewBroker(cfg.Events.Buffer, cfg.Events.SubscriberBuffer)
	broker.Start()

	eng := engine.New(store, broker, engine.Options{
		RefreshInterval: cfg.Engine.RefreshInterval,
		RequestTimeout:  cfg.Engine.RequestTimeout,
		FeedPageSize:    cfg.Engine.FeedPageSize,
		MaxFeedPageSize: cfg.Engine.MaxFeedPageSize,
	})

	collector := metrics.NewCollector(eng, cfg.Metrics.CollectInterval)
	collector.Start()

	if userID != "" {
		if err := eng.Activate(cmd.Context(), userID, hubID, true); err != nil {
			return fmt.Errorf("failed to activate %s/%s: %w", userID, hubID, err)
		}
	}

	srv := api.NewServer(eng, store, broker, api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.API.Addr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()

	logger.Info().
		Str("addr", cfg.API.Addr).
		Str("driver", cfg.Store.Driver).
		Dur("refresh_interval", cfg.Engine.RefreshInterval).
		Msg("notifsync is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("API server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("API server did not shut down cleanly")
	}
	collector.Stop()
	eng.Close()
	broker.Stop()
	broker.Wait()

	logger.Info().Msg("Shutdown complete")
	return runErr
}
