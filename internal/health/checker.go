// Package health exposes liveness and readiness probes for the service.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker serves /healthz and /readyz.
type Checker struct {
	db        Pinger // nil in db-less mode
	logger    *zap.Logger
	startedAt time.Time
}

// New creates a Checker. db may be nil when the service runs on the
// in-memory store.
func New(db Pinger, logger *zap.Logger) *Checker {
	return &Checker{db: db, logger: logger, startedAt: time.Now().UTC()}
}

// Liveness handles GET /healthz — the process is up.
func (h *Checker) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Readiness handles GET /readyz — the service can reach its store.
func (h *Checker) Readiness(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("readiness: store ping failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "store unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
