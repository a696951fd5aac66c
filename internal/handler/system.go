package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck health check endpoint
func (h *Handlers) HealthCheck(c *gin.Context) {
	// Check database connection
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	active := false
	if snap := h.registry.Status(); snap != nil {
		active = snap.State.Active()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"engine":     h.engineName,
		"activeCall": active,
	})
}
