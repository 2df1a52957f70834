package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/service"
	"github.com/servorahq/servora/internal/types"
)

type InstanceHandler struct {
	instanceService     service.InstanceService
	subscriptionService service.SubscriptionService
	logger              *logger.Logger
}

func NewInstanceHandler(instanceService service.InstanceService, subscriptionService service.SubscriptionService, logger *logger.Logger) *InstanceHandler {
	return &InstanceHandler{
		instanceService:     instanceService,
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

func (h *InstanceHandler) List(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	instances, err := h.instanceService.ListByUser(c.Request.Context(), types.GetUserID(c.Request.Context()), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (h *InstanceHandler) Get(c *gin.Context) {
	inst, err := h.instanceService.Get(c.Request.Context(), types.GetUserID(c.Request.Context()), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// Logs streams the serving container log as plain text until the client
// disconnects.
func (h *InstanceHandler) Logs(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.Header().Set("X-Content-Type-Options", "nosniff")

	err := h.instanceService.StreamLogs(c.Request.Context(), types.GetUserID(c.Request.Context()), c.Param("id"), c.Writer)
	if err != nil {
		if c.Writer.Written() {
			h.logger.Warnw("log stream ended with error",
				"instance_id", c.Param("id"), "error", err)
			return
		}
		c.Error(err)
	}
}

func (h *InstanceHandler) Stop(c *gin.Context) {
	h.instanceOp(c, h.subscriptionService.StopInstance)
}

func (h *InstanceHandler) Start(c *gin.Context) {
	h.instanceOp(c, h.subscriptionService.StartInstance)
}

func (h *InstanceHandler) Restart(c *gin.Context) {
	h.instanceOp(c, h.subscriptionService.RestartInstance)
}

func (h *InstanceHandler) instanceOp(c *gin.Context, op func(ctx context.Context, userID, subscriptionID string) error) {
	ctx := c.Request.Context()
	inst, err := h.instanceService.Get(ctx, types.GetUserID(ctx), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	if err := op(ctx, types.GetUserID(ctx), inst.SubscriptionID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}
