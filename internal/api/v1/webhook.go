package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/service"
)

type WebhookHandler struct {
	paymentService service.PaymentService
	logger         *logger.Logger
}

func NewWebhookHandler(paymentService service.PaymentService, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// PaymentNotification receives the gateway webhook. The gateway retries on
// non-2xx, so unverifiable payloads are rejected and everything else is
// acknowledged.
func (h *WebhookHandler) PaymentNotification(c *gin.Context) {
	var notif service.PaymentNotification
	if err := c.ShouldBindJSON(&notif); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid notification payload").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.paymentService.HandleNotification(c.Request.Context(), notif); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
