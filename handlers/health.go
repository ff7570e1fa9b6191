package handlers

import (
	"net/http"

	"coursebook/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports the last dependency health snapshot.
func HealthHandler(c *gin.Context) {
	health := utils.GetHealthStatus()
	code, status := http.StatusOK, "ok"
	if !health.Healthy {
		code, status = http.StatusServiceUnavailable, "degraded"
	}
	c.JSON(code, gin.H{"status": status, "health": health})
}
