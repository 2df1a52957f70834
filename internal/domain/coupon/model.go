package coupon

import (
	"time"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// Coupon grants credit, a subscription discount, or a free subscription.
type Coupon struct {
	ID   string `db:"id" json:"id" gorm:"primaryKey"`
	Code string `db:"code" json:"code" gorm:"uniqueIndex"`

	Type         types.CouponType   `db:"type" json:"type"`
	CouponStatus types.CouponStatus `db:"coupon_status" json:"coupon_status"`

	// DiscountAmount is a fixed value in minor units for FIXED discounts and
	// credit coupons; DiscountPercent applies for PERCENTAGE discounts.
	DiscountKind    types.DiscountKind `db:"discount_kind" json:"discount_kind,omitempty"`
	DiscountAmount  int64              `db:"discount_amount" json:"discount_amount"`
	DiscountPercent int                `db:"discount_percent" json:"discount_percent"`

	// ServiceID restricts the coupon to one service when set.
	ServiceID string `db:"service_id" json:"service_id,omitempty"`
	// MinSubscriptionAmount gates discount coupons on the plan price.
	MinSubscriptionAmount int64 `db:"min_subscription_amount" json:"min_subscription_amount"`

	MaxUses        int `db:"max_uses" json:"max_uses"`
	UsedCount      int `db:"used_count" json:"used_count"`
	MaxUsesPerUser int `db:"max_uses_per_user" json:"max_uses_per_user"`

	ValidFrom  time.Time `db:"valid_from" json:"valid_from"`
	ValidUntil time.Time `db:"valid_until" json:"valid_until"`

	Description string `db:"description" json:"description"`

	types.BaseModel
}

func (c *Coupon) TableName() string {
	return "coupons"
}

func (c *Coupon) Validate() error {
	if c.Code == "" {
		return ierr.NewError("coupon code is required").
			Mark(ierr.ErrValidation)
	}
	if !c.Type.Validate() {
		return ierr.NewError("invalid coupon type").
			WithReportableDetails(map[string]any{"type": c.Type}).
			Mark(ierr.ErrValidation)
	}
	if c.Type == types.CouponTypeSubscriptionDiscount {
		switch c.DiscountKind {
		case types.DiscountKindFixed:
			if c.DiscountAmount <= 0 {
				return ierr.NewError("fixed discount requires a positive amount").
					Mark(ierr.ErrValidation)
			}
		case types.DiscountKindPercentage:
			if c.DiscountPercent <= 0 || c.DiscountPercent > 100 {
				return ierr.NewError("percentage discount must be in (0, 100]").
					Mark(ierr.ErrValidation)
			}
		default:
			return ierr.NewError("discount coupon requires a discount kind").
				Mark(ierr.ErrValidation)
		}
	}
	if !c.ValidUntil.After(c.ValidFrom) {
		return ierr.NewError("coupon validity window is empty").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DiscountFor computes the discount the coupon grants against the given
// subscription amount. Never exceeds the amount.
func (c *Coupon) DiscountFor(amount int64) int64 {
	var discount int64
	switch c.Type {
	case types.CouponTypeFreeService:
		discount = amount
	case types.CouponTypeSubscriptionDiscount:
		if c.DiscountKind == types.DiscountKindPercentage {
			discount = amount * int64(c.DiscountPercent) / 100
		} else {
			discount = c.DiscountAmount
		}
	}
	if discount > amount {
		discount = amount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Redemption records one use of a coupon by a user.
type Redemption struct {
	ID             string `db:"id" json:"id" gorm:"primaryKey"`
	CouponID       string `db:"coupon_id" json:"coupon_id" gorm:"index:idx_redemptions_coupon_user,priority:1"`
	UserID         string `db:"user_id" json:"user_id" gorm:"index:idx_redemptions_coupon_user,priority:2"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id,omitempty"`
	// AmountApplied is the credit granted or discount taken, minor units.
	AmountApplied int64 `db:"amount_applied" json:"amount_applied"`

	types.BaseModel
}

func (r *Redemption) TableName() string {
	return "coupon_redemptions"
}
