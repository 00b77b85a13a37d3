package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/metrics"
)

// HealthCheck reports the state of one dependency on /health. A State of
// "open" marks the dependency as short-circuited and the service degraded.
type HealthCheck struct {
	Name  string
	State func() string
}

// NewRouter builds the HTTP surface: liveness, health, metrics and the
// WebSocket endpoint.
func NewRouter(s *Server, checks ...HealthCheck) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		states := make(map[string]string, len(checks))
		for _, hc := range checks {
			state := hc.State()
			states[hc.Name] = state
			if state == "open" {
				status = "degraded"
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      status,
			"connections": s.Connections().Count(),
			"uptime":      s.Uptime().Round(time.Second).String(),
			"checks":      states,
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", func(c *gin.Context) {
		s.HandleUpgrade(c.Writer, c.Request)
	})
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" {
			return
		}
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
