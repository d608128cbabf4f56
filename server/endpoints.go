package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/version"
)

var startTime = time.Now()

// Health reports the service status aggregated over checkers. Any component
// that is down turns the response into a 503.
func Health(serviceName string, checkers ...observability.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := observability.NewServiceHealth(serviceName, version.Short())
		for _, checker := range checkers {
			health.AddComponent(checker.CheckHealth(c.Request.Context()))
		}

		status := http.StatusOK
		if health.Status == observability.HealthStatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, health)
	}
}

// Info reports build information and uptime.
func Info(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":   serviceName,
			"build":     version.Get(),
			"uptime":    time.Since(startTime).String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
