package dto

import "github.com/servorahq/servora/internal/types"

type CreateSubscriptionRequest struct {
	PlanID     string `json:"plan_id" binding:"required"`
	Name       string `json:"name"`
	CouponCode string `json:"coupon_code"`
	// AutoRenew omitted defaults to on.
	AutoRenew    *bool          `json:"auto_renew"`
	EnvOverrides types.Metadata `json:"env_overrides"`
}

type UpgradeSubscriptionRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

type AutoRenewRequest struct {
	AutoRenew *bool `json:"auto_renew" binding:"required"`
}
