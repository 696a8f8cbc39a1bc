package httpapi

import (
	"net/http"

	"github.com/co2market/auth-service/pkg/core/health"
	"github.com/gin-gonic/gin"
)

type healthHandler struct {
	readiness health.ReadinessChecker
}

func (h *healthHandler) live(c *gin.Context) {
	c.String(http.StatusOK, "alive")
}

// ready answers plain text for probes and the component list for
// ?format=json or Accept: application/json.
func (h *healthHandler) ready(c *gin.Context) {
	if c.Query("format") == "json" || c.GetHeader("Accept") == "application/json" {
		status := h.readiness.Status()
		code := http.StatusOK
		if !status.Ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
		return
	}

	if h.readiness.IsReady() {
		c.String(http.StatusOK, "ready")
	} else {
		c.String(http.StatusServiceUnavailable, "not ready")
	}
}
