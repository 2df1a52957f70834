package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/api/dto"
	"github.com/servorahq/servora/internal/domain/coupon"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/service"
	"github.com/servorahq/servora/internal/types"
)

type CouponHandler struct {
	couponService  service.CouponService
	catalogService service.CatalogService
	logger         *logger.Logger
}

func NewCouponHandler(couponService service.CouponService, catalogService service.CatalogService, logger *logger.Logger) *CouponHandler {
	return &CouponHandler{
		couponService:  couponService,
		catalogService: catalogService,
		logger:         logger,
	}
}

func (h *CouponHandler) Create(c *gin.Context) {
	var req dto.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	cp := &coupon.Coupon{
		Code:                  req.Code,
		Type:                  req.Type,
		DiscountKind:          req.DiscountKind,
		DiscountAmount:        req.DiscountAmount,
		DiscountPercent:       req.DiscountPercent,
		ServiceID:             req.ServiceID,
		MinSubscriptionAmount: req.MinSubscriptionAmount,
		MaxUses:               req.MaxUses,
		MaxUsesPerUser:        req.MaxUsesPerUser,
		ValidFrom:             req.ValidFrom,
		ValidUntil:            req.ValidUntil,
		Description:           req.Description,
	}
	if err := h.couponService.CreateCoupon(c.Request.Context(), cp); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, cp)
}

func (h *CouponHandler) Get(c *gin.Context) {
	cp, err := h.couponService.GetCoupon(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (h *CouponHandler) List(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	coupons, err := h.couponService.ListCoupons(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, coupons)
}

func (h *CouponHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateCouponStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.couponService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CouponHandler) ListRedemptions(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	redemptions, err := h.couponService.ListRedemptions(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, redemptions)
}

// Validate previews a coupon against a plan without consuming a use.
func (h *CouponHandler) Validate(c *gin.Context) {
	var req dto.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	plan, err := h.catalogService.GetPlan(ctx, req.PlanID)
	if err != nil {
		c.Error(err)
		return
	}

	_, discount, err := h.couponService.ValidateForSubscription(ctx, req.Code, types.GetUserID(ctx), plan.ServiceID, plan.MonthlyPrice)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ValidateCouponResponse{
		Valid:    true,
		Discount: discount,
		Final:    plan.MonthlyPrice - discount,
	})
}
