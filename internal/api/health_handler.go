package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clientflow/journey-insights/internal/pkg/httputil"
)

const healthVersion = "1.0.0"

// ComponentCheck reports the health of a single dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthStatus is the full health report returned by GET /health.
type HealthStatus struct {
	Status         string                    `json:"status"`
	Version        string                    `json:"version"`
	Uptime         string                    `json:"uptime"`
	ActiveSessions int                       `json:"active_sessions"`
	Checks         map[string]ComponentCheck `json:"checks"`
}

// HealthChecker probes the server's external dependencies. Dependencies that
// were never configured report "not_configured" rather than failing the check.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a health checker. Either dependency may be nil.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient}
}

func (c *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if c.db == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := c.db.PingContext(ctx); err != nil {
		return ComponentCheck{Status: "unhealthy", Message: err.Error()}
	}
	return ComponentCheck{Status: "healthy", Latency: time.Since(start).String()}
}

func (c *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if c.redis == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return ComponentCheck{Status: "unhealthy", Message: err.Error()}
	}
	return ComponentCheck{Status: "healthy", Latency: time.Since(start).String()}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:  "healthy",
		Version: healthVersion,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
		Checks: map[string]ComponentCheck{
			"database": h.health.checkDatabase(ctx),
			"redis":    h.health.checkRedis(ctx),
		},
	}
	if h.tracker != nil {
		status.ActiveSessions = h.tracker.ActiveCount()
	}

	code := http.StatusOK
	for _, check := range status.Checks {
		if check.Status == "unhealthy" {
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	httputil.JSON(w, code, status)
}
