package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cuemby/notifsync/pkg/metrics"
)

// registerHealthRoutes mounts the probe and metrics endpoints
func registerHealthRoutes(r *gin.Engine) {
	r.GET("/health", gin.WrapF(metrics.HealthHandler()))
	r.GET("/ready", gin.WrapF(metrics.ReadyHandler()))
	r.GET("/live", gin.WrapF(metrics.LivenessHandler()))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}
