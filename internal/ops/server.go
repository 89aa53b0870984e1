package ops

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports database connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueChecker reports broker connectivity
type QueueChecker interface {
	IsConnected() bool
}

// StatsSource exposes outbox counters for the stats endpoint
type StatsSource interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Dependencies holds everything the operational endpoints need
type Dependencies struct {
	Logger *slog.Logger
	DB     Pinger
	Queue  QueueChecker
	Outbox StatsSource
}

// SetupRouter configures and returns the Gin router for the operational
// surface. It carries no business endpoints; withdrawal traffic never
// flows through here.
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(loggerMiddleware(deps.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{
			"database": "ok",
			"rabbitmq": "ok",
		}
		healthy := true

		if err := deps.DB.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if !deps.Queue.IsConnected() {
			checks["rabbitmq"] = "disconnected"
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":  statusWord(healthy),
			"service": "payout-dispatcher",
			"checks":  checks,
		})
	})

	r.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/stats/outbox", func(c *gin.Context) {
		counts, err := deps.Outbox.CountByStatus(c.Request.Context())
		if err != nil {
			deps.Logger.Error("Failed to count outbox jobs",
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read outbox stats"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"jobs": counts})
	})

	return r
}

func statusWord(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// loggerMiddleware logs HTTP requests with slog
func loggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
