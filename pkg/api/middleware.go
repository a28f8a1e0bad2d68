package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/notifsync/pkg/metrics"
)

// requestMetrics counts requests by method and status and observes latency
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()

		method := c.Request.Method
		metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(c.Writer.Status())).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, method)
	}
}

// requestLogger logs each request at debug and failed ones at warn
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()

		status := c.Writer.Status()
		event := s.logger.Debug()
		if status >= 500 {
			event = s.logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Err(c.Errors.Last().Err)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
	}
}
