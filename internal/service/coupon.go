package service

import (
	"context"
	"strings"
	"time"

	"github.com/servorahq/servora/internal/domain/coupon"
	"github.com/servorahq/servora/internal/domain/wallet"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// CouponService validates and redeems coupons. Credit coupons settle into the
// wallet immediately; discount coupons reduce the subscription charge at
// redemption time.
type CouponService interface {
	CreateCoupon(ctx context.Context, c *coupon.Coupon) error
	GetCoupon(ctx context.Context, id string) (*coupon.Coupon, error)
	ListCoupons(ctx context.Context, filter types.Filter) ([]*coupon.Coupon, error)
	UpdateStatus(ctx context.Context, id string, status types.CouponStatus) error
	ListRedemptions(ctx context.Context, couponID string, filter types.Filter) ([]*coupon.Redemption, error)

	// ValidateForSubscription previews a discount coupon against a plan
	// price without consuming a use.
	ValidateForSubscription(ctx context.Context, code, userID, serviceID string, planPrice int64) (*coupon.Coupon, int64, error)
	// RedeemForSubscription consumes one use under the coupon row lock and
	// returns the discount; must run inside the caller's transaction.
	RedeemForSubscription(ctx context.Context, code, userID, subscriptionID, serviceID string, planPrice int64) (int64, error)
	// RedeemCredit consumes a credit coupon and settles its value into the
	// user's wallet.
	RedeemCredit(ctx context.Context, code, userID string) (*wallet.Transaction, error)
}

type couponService struct {
	ServiceParams
	wallet WalletService
}

func NewCouponService(params ServiceParams, walletSvc WalletService) CouponService {
	return &couponService{ServiceParams: params, wallet: walletSvc}
}

func (s *couponService) CreateCoupon(ctx context.Context, c *coupon.Coupon) error {
	if c.ID == "" {
		c.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixCoupon)
	}
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.CouponStatus == "" {
		c.CouponStatus = types.CouponStatusActive
	}
	c.BaseModel = types.GetDefaultBaseModel()
	if err := c.Validate(); err != nil {
		return err
	}
	return s.CouponRepo.Create(ctx, c)
}

func (s *couponService) GetCoupon(ctx context.Context, id string) (*coupon.Coupon, error) {
	return s.CouponRepo.Get(ctx, id)
}

func (s *couponService) ListCoupons(ctx context.Context, filter types.Filter) ([]*coupon.Coupon, error) {
	return s.CouponRepo.List(ctx, filter)
}

func (s *couponService) UpdateStatus(ctx context.Context, id string, status types.CouponStatus) error {
	c, err := s.CouponRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	c.CouponStatus = status
	c.UpdatedAt = time.Now().UTC()
	return s.CouponRepo.Update(ctx, c)
}

func (s *couponService) ListRedemptions(ctx context.Context, couponID string, filter types.Filter) ([]*coupon.Redemption, error) {
	return s.CouponRepo.ListRedemptions(ctx, couponID, filter)
}

// checkEligibility enforces the shared redemption rules: status, validity
// window, global and per-user use limits, service restriction and minimum
// subscription amount.
func (s *couponService) checkEligibility(ctx context.Context, c *coupon.Coupon, userID, serviceID string, planPrice int64) error {
	now := time.Now().UTC()

	if c.CouponStatus != types.CouponStatusActive {
		return ierr.NewError("coupon is not active").
			WithHintf("Coupon %s is %s", c.Code, c.CouponStatus).
			Mark(ierr.ErrValidation)
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return ierr.NewError("coupon is outside its validity window").
			WithHintf("Coupon %s is valid from %s to %s",
				c.Code, c.ValidFrom.Format(time.DateOnly), c.ValidUntil.Format(time.DateOnly)).
			Mark(ierr.ErrValidation)
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return ierr.NewError("coupon is fully redeemed").
			WithHintf("Coupon %s has no uses left", c.Code).
			Mark(ierr.ErrValidation)
	}
	if c.MaxUsesPerUser > 0 {
		used, err := s.CouponRepo.CountRedemptionsByUser(ctx, c.ID, userID)
		if err != nil {
			return err
		}
		if used >= int64(c.MaxUsesPerUser) {
			return ierr.NewError("coupon use limit reached for this account").
				Mark(ierr.ErrValidation)
		}
	}
	if c.ServiceID != "" && serviceID != "" && c.ServiceID != serviceID {
		return ierr.NewError("coupon does not apply to this service").
			Mark(ierr.ErrValidation)
	}
	if c.MinSubscriptionAmount > 0 && planPrice < c.MinSubscriptionAmount {
		return ierr.NewError("subscription amount below the coupon minimum").
			WithHintf("Coupon %s requires a subscription of at least %d", c.Code, c.MinSubscriptionAmount).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (s *couponService) ValidateForSubscription(ctx context.Context, code, userID, serviceID string, planPrice int64) (*coupon.Coupon, int64, error) {
	c, err := s.CouponRepo.GetByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, 0, err
	}
	if !isSubscriptionCoupon(c.Type) {
		return nil, 0, ierr.NewError("coupon does not apply to subscriptions").
			WithHint("Credit coupons are redeemed into the wallet instead").
			Mark(ierr.ErrValidation)
	}
	if err := s.checkEligibility(ctx, c, userID, serviceID, planPrice); err != nil {
		return nil, 0, err
	}
	return c, c.DiscountFor(planPrice), nil
}

func (s *couponService) RedeemForSubscription(ctx context.Context, code, userID, subscriptionID, serviceID string, planPrice int64) (int64, error) {
	c, err := s.CouponRepo.GetByCodeForUpdate(ctx, normalizeCode(code))
	if err != nil {
		return 0, err
	}
	if !isSubscriptionCoupon(c.Type) {
		return 0, ierr.NewError("coupon does not apply to subscriptions").
			Mark(ierr.ErrValidation)
	}
	if err := s.checkEligibility(ctx, c, userID, serviceID, planPrice); err != nil {
		return 0, err
	}

	discount := c.DiscountFor(planPrice)
	c.UsedCount++
	c.UpdatedAt = time.Now().UTC()
	if err := s.CouponRepo.Update(ctx, c); err != nil {
		return 0, err
	}

	red := &coupon.Redemption{
		ID:             types.GenerateUUIDWithPrefix(types.UUIDPrefixRedemption),
		CouponID:       c.ID,
		UserID:         userID,
		SubscriptionID: subscriptionID,
		AmountApplied:  discount,
		BaseModel:      types.GetDefaultBaseModel(),
	}
	if err := s.CouponRepo.CreateRedemption(ctx, red); err != nil {
		return 0, err
	}
	s.Logger.Infow("coupon redeemed",
		"code", c.Code, "user_id", userID, "subscription_id", subscriptionID, "discount", discount)
	return discount, nil
}

func (s *couponService) RedeemCredit(ctx context.Context, code, userID string) (*wallet.Transaction, error) {
	var txn *wallet.Transaction

	// The redemption and the wallet credit commit together; a failed credit
	// must not burn the coupon use.
	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		c, err := s.CouponRepo.GetByCodeForUpdate(ctx, normalizeCode(code))
		if err != nil {
			return err
		}
		if isSubscriptionCoupon(c.Type) {
			return ierr.NewError("coupon applies to subscriptions, not wallet credit").
				Mark(ierr.ErrValidation)
		}
		if err := s.checkEligibility(ctx, c, userID, "", 0); err != nil {
			return err
		}

		grant := c.DiscountAmount
		c.UsedCount++
		c.UpdatedAt = time.Now().UTC()
		if err := s.CouponRepo.Update(ctx, c); err != nil {
			return err
		}
		if err := s.CouponRepo.CreateRedemption(ctx, &coupon.Redemption{
			ID:            types.GenerateUUIDWithPrefix(types.UUIDPrefixRedemption),
			CouponID:      c.ID,
			UserID:        userID,
			AmountApplied: grant,
			BaseModel:     types.GetDefaultBaseModel(),
		}); err != nil {
			return err
		}

		txn, err = s.wallet.Credit(ctx, CreditRequest{
			UserID:      userID,
			Amount:      grant,
			Type:        types.TransactionTypeTopUp,
			Description: "coupon credit " + normalizeCode(code),
			Metadata:    types.Metadata{"coupon_id": c.ID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isSubscriptionCoupon(t types.CouponType) bool {
	return t == types.CouponTypeSubscriptionDiscount || t == types.CouponTypeFreeService
}
