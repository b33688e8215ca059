package v2

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthcheck godoc
// @Summary Liveness probe
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthcheck [get]
func (h *Handler) Healthcheck(c *gin.Context) {
	sendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// CheckHealth godoc
// @Summary Check the status of every backing component
// @Tags system
// @Produce json
// @Success 200 {object} knowledgebase.HealthStatus
// @Failure 503 {object} knowledgebase.HealthStatus
// @Failure 500 {object} ErrorResponse
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	status, err := h.svc.System.CheckHealth(c.Request.Context())
	if err != nil {
		sendError(c, err)
		return
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	sendJSON(c, code, status)
}
