package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter registers every route. metricsHandler is mounted on /metrics
// when non-nil.
func NewRouter(h *Handler, metricsHandler http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.Logger))

	r.GET("/healthz", h.Health)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/months", h.GetMonths)
	v1.GET("/months/:month/roster", h.GetRoster)
	v1.GET("/months/:month/export.xlsx", h.ExportRoster)
	v1.GET("/months/:month/people/:id", h.GetPersonMonth)
	v1.GET("/months/:month/people/:id/denials", h.GetPersonMonthDenials)
	v1.GET("/profiles", h.GetProfiles)
	v1.GET("/people/:id/profile", h.GetPersonProfile)

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
