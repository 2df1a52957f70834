package dto

import (
	"time"

	"github.com/servorahq/servora/internal/types"
)

type CreateCouponRequest struct {
	Code                  string             `json:"code" binding:"required"`
	Type                  types.CouponType   `json:"type" binding:"required"`
	DiscountKind          types.DiscountKind `json:"discount_kind"`
	DiscountAmount        int64              `json:"discount_amount" binding:"gte=0"`
	DiscountPercent       int                `json:"discount_percent" binding:"gte=0,lte=100"`
	ServiceID             string             `json:"service_id"`
	MinSubscriptionAmount int64              `json:"min_subscription_amount" binding:"gte=0"`
	MaxUses               int                `json:"max_uses" binding:"gte=0"`
	MaxUsesPerUser        int                `json:"max_uses_per_user" binding:"gte=0"`
	ValidFrom             time.Time          `json:"valid_from" binding:"required"`
	ValidUntil            time.Time          `json:"valid_until" binding:"required"`
	Description           string             `json:"description"`
}

type UpdateCouponStatusRequest struct {
	Status types.CouponStatus `json:"status" binding:"required"`
}

type ValidateCouponRequest struct {
	Code   string `json:"code" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
}

type ValidateCouponResponse struct {
	Valid    bool  `json:"valid"`
	Discount int64 `json:"discount"`
	Final    int64 `json:"final_amount"`
}
