package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/api/dto"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/service"
	"github.com/servorahq/servora/internal/types"
)

type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
	logger              *logger.Logger
}

func NewSubscriptionHandler(subscriptionService service.SubscriptionService, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	detail, err := h.subscriptionService.Create(c.Request.Context(), service.CreateSubscriptionRequest{
		UserID:       types.GetUserID(c.Request.Context()),
		PlanID:       req.PlanID,
		Name:         req.Name,
		CouponCode:   req.CouponCode,
		AutoRenew:    req.AutoRenew,
		EnvOverrides: req.EnvOverrides,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, detail)
}

func (h *SubscriptionHandler) List(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	details, err := h.subscriptionService.ListByUser(c.Request.Context(), types.GetUserID(c.Request.Context()), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *SubscriptionHandler) Get(c *gin.Context) {
	detail, err := h.subscriptionService.Get(c.Request.Context(), types.GetUserID(c.Request.Context()), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *SubscriptionHandler) GetBillingInfo(c *gin.Context) {
	info, err := h.subscriptionService.GetBillingInfo(c.Request.Context(), types.GetUserID(c.Request.Context()), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *SubscriptionHandler) Upgrade(c *gin.Context) {
	var req dto.UpgradeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	detail, err := h.subscriptionService.Upgrade(c.Request.Context(), types.GetUserID(c.Request.Context()), c.Param("id"), req.PlanID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	var req dto.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.subscriptionService.Cancel(c.Request.Context(), types.GetUserID(c.Request.Context()), c.Param("id"), req.Reason); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *SubscriptionHandler) SetAutoRenew(c *gin.Context) {
	var req dto.AutoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	sub, err := h.subscriptionService.ToggleAutoRenew(c.Request.Context(), types.GetUserID(c.Request.Context()), c.Param("id"), *req.AutoRenew)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *SubscriptionHandler) RetryProvisioning(c *gin.Context) {
	if err := h.subscriptionService.RetryProvisioning(c.Request.Context(), types.GetUserID(c.Request.Context()), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}
