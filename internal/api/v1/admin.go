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

type AdminHandler struct {
	adminService  service.AdminService
	walletService service.WalletService
	logger        *logger.Logger
}

func NewAdminHandler(adminService service.AdminService, walletService service.WalletService, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		adminService:  adminService,
		walletService: walletService,
		logger:        logger,
	}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	users, total, err := h.adminService.ListUsers(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.UserListResponse{Items: users, Total: total})
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	u, err := h.adminService.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) SetUserActive(c *gin.Context) {
	var req dto.SetUserActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	u, err := h.adminService.SetUserActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	var req dto.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	txn, err := h.walletService.AdminAdjust(ctx, c.Param("id"), req.Delta, types.GetUserID(ctx), req.Description)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *AdminHandler) ListSubscriptions(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	subs, err := h.adminService.ListSubscriptions(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *AdminHandler) ListInstances(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	instances, err := h.adminService.ListInstances(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (h *AdminHandler) ForceCancel(c *gin.Context) {
	var req dto.ForceCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	processRefund := true
	if req.ProcessRefund != nil {
		processRefund = *req.ProcessRefund
	}

	ctx := c.Request.Context()
	sub, err := h.adminService.ForceCancel(ctx, types.GetUserID(ctx), c.Param("id"), req.Reason, processRefund)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *AdminHandler) ChangePlan(c *gin.Context) {
	var req dto.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	detail, err := h.adminService.ChangePlan(ctx, types.GetUserID(ctx), c.Param("id"), req.PlanID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
