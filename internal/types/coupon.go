package types

// CouponType determines what redeeming a coupon grants.
type CouponType string

const (
	CouponTypeWelcomeBonus         CouponType = "WELCOME_BONUS"
	CouponTypeCreditTopUp          CouponType = "CREDIT_TOPUP"
	CouponTypeSubscriptionDiscount CouponType = "SUBSCRIPTION_DISCOUNT"
	CouponTypeFreeService          CouponType = "FREE_SERVICE"
)

func (t CouponType) Validate() bool {
	switch t {
	case CouponTypeWelcomeBonus, CouponTypeCreditTopUp,
		CouponTypeSubscriptionDiscount, CouponTypeFreeService:
		return true
	}
	return false
}

// DiscountKind applies to SUBSCRIPTION_DISCOUNT coupons.
type DiscountKind string

const (
	DiscountKindFixed      DiscountKind = "FIXED"
	DiscountKindPercentage DiscountKind = "PERCENTAGE"
)

// CouponStatus is the publication state of a coupon.
type CouponStatus string

const (
	CouponStatusActive   CouponStatus = "ACTIVE"
	CouponStatusInactive CouponStatus = "INACTIVE"
	CouponStatusExpired  CouponStatus = "EXPIRED"
)
