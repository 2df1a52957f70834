package store

import (
	"context"
	"errors"

	coupondomain "github.com/servorahq/servora/internal/domain/coupon"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type couponRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewCouponRepository(client postgres.IClient, logger *logger.Logger) coupondomain.Repository {
	return &couponRepository{
		client: client,
		logger: logger,
	}
}

func (r *couponRepository) Create(ctx context.Context, c *coupondomain.Coupon) error {
	if err := r.client.Querier(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.NewError("coupon already exists").
				WithHintf("A coupon with code %s already exists", c.Code).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithMessage("failed to create coupon").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *couponRepository) Get(ctx context.Context, id string) (*coupondomain.Coupon, error) {
	var c coupondomain.Coupon
	err := r.client.Querier(ctx).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, wrapCouponNotFound(err, id)
	}
	return &c, nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*coupondomain.Coupon, error) {
	var c coupondomain.Coupon
	err := r.client.Querier(ctx).
		Where("code = ?", code).
		First(&c).Error
	if err != nil {
		return nil, wrapCouponNotFound(err, code)
	}
	return &c, nil
}

func (r *couponRepository) GetByCodeForUpdate(ctx context.Context, code string) (*coupondomain.Coupon, error) {
	var c coupondomain.Coupon
	err := r.client.Querier(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&c).Error
	if err != nil {
		return nil, wrapCouponNotFound(err, code)
	}
	return &c, nil
}

func wrapCouponNotFound(err error, ref string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ierr.NewError("coupon not found").
			WithHint("Coupon not found or no longer valid").
			WithReportableDetails(map[string]any{"coupon": ref}).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithMessage("failed to query coupon").
		Mark(ierr.ErrDatabase)
}

func (r *couponRepository) List(ctx context.Context, filter types.Filter) ([]*coupondomain.Coupon, error) {
	filter = filter.WithDefaults()
	var coupons []*coupondomain.Coupon
	err := r.client.Querier(ctx).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&coupons).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list coupons").
			Mark(ierr.ErrDatabase)
	}
	return coupons, nil
}

func (r *couponRepository) Update(ctx context.Context, c *coupondomain.Coupon) error {
	if err := r.client.Querier(ctx).Save(c).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update coupon").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *couponRepository) CreateRedemption(ctx context.Context, red *coupondomain.Redemption) error {
	if err := r.client.Querier(ctx).Create(red).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create redemption").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *couponRepository) CountRedemptionsByUser(ctx context.Context, couponID, userID string) (int64, error) {
	var count int64
	err := r.client.Querier(ctx).
		Model(&coupondomain.Redemption{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	if err != nil {
		return 0, ierr.WithError(err).
			WithMessage("failed to count redemptions").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *couponRepository) ListRedemptions(ctx context.Context, couponID string, filter types.Filter) ([]*coupondomain.Redemption, error) {
	filter = filter.WithDefaults()
	var reds []*coupondomain.Redemption
	err := r.client.Querier(ctx).
		Where("coupon_id = ?", couponID).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&reds).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list redemptions").
			Mark(ierr.ErrDatabase)
	}
	return reds, nil
}
