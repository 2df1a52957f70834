package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/service"
)

// BillingHandler exposes the billing driver to external schedulers. Jobs are
// idempotent, so an external trigger overlapping the internal ticker is safe.
type BillingHandler struct {
	billingService service.BillingService
	logger         *logger.Logger
}

func NewBillingHandler(billingService service.BillingService, logger *logger.Logger) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		logger:         logger,
	}
}

func (h *BillingHandler) Run(c *gin.Context) {
	report, err := h.billingService.RunAll(c.Request.Context(), time.Now().UTC())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}
