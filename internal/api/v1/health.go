package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/kube"
)

type HealthHandler struct {
	kube kube.Client
}

func NewHealthHandler(kubeClient kube.Client) *HealthHandler {
	return &HealthHandler{kube: kubeClient}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready also reports whether the orchestrator API answers; the control plane
// can serve reads without it, so the endpoint stays 200 and carries the flag.
func (h *HealthHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"orchestrator": h.kube.IsAvailable(c.Request.Context()),
	})
}
