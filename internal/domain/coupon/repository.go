package coupon

import (
	"context"

	"github.com/servorahq/servora/internal/types"
)

// Repository defines the interface for coupon persistence operations
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	// GetByCodeForUpdate reads the coupon row under a write lock; must be
	// called inside a transaction.
	GetByCodeForUpdate(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context, filter types.Filter) ([]*Coupon, error)
	Update(ctx context.Context, c *Coupon) error

	CreateRedemption(ctx context.Context, r *Redemption) error
	CountRedemptionsByUser(ctx context.Context, couponID, userID string) (int64, error)
	ListRedemptions(ctx context.Context, couponID string, filter types.Filter) ([]*Redemption, error)
}
