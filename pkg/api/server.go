package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cuemby/notifsync/pkg/engine"
	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

// Publisher queues change events for live subscribers
type Publisher interface {
	Publish(event *types.ChangeEvent) error
}

// Server exposes the engine over HTTP
type Server struct {
	engine    *engine.Engine
	store     storage.Store
	publisher Publisher
	router    *gin.Engine
	http      *http.Server
	logger    zerolog.Logger

	limiter *clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithRateLimit limits /api/v1 requests per client IP. A non-positive rate
// disables limiting.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(s *Server) {
		if requestsPerSecond > 0 {
			s.limiter = newClientLimiter(requestsPerSecond, burst)
		}
	}
}

// NewServer creates the HTTP server. publisher may be nil, in which case
// created notifications are stored without a change event.
func NewServer(eng *engine.Engine, store storage.Store, publisher Publisher, opts ...Option) *Server {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	s := &Server{
		engine:    eng,
		store:     store,
		publisher: publisher,
		router:    router,
		logger:    log.WithComponent("api"),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	router.Use(gin.Recovery(), s.requestLogger(), requestMetrics())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	registerHealthRoutes(s.router)

	v1 := s.router.Group("/api/v1")
	if s.limiter != nil {
		v1.Use(s.rateLimit(s.limiter))
	}
	{
		v1.POST("/session", s.handleActivate())
		v1.DELETE("/session", s.handleDeactivate())
		v1.PUT("/visibility", s.handleVisibility())

		v1.GET("/counts", s.handleCounts())
		v1.GET("/counts/stream", s.handleCountsStream())

		v1.GET("/preferences", s.handleGetPreferences())
		v1.PUT("/preferences", s.handleSetPreferences())

		v1.POST("/features/:feature/viewed", s.handleFeatureViewed())

		feed := v1.Group("/feed")
		{
			feed.GET("", s.handleFeed())
			feed.PUT("/read-all", s.handleMarkAllRead())
			feed.PUT("/:id/read", s.handleMarkEntryRead())
		}

		internal := v1.Group("/internal")
		{
			internal.POST("/notifications", s.handleCreateNotification())
		}
	}
}

// Handler returns the router for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes open snapshot streams and gracefully stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
