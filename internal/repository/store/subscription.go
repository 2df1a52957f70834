package store

import (
	"context"
	"errors"
	"time"

	subdomain "github.com/servorahq/servora/internal/domain/subscription"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewSubscriptionRepository(client postgres.IClient, logger *logger.Logger) subdomain.Repository {
	return &subscriptionRepository{
		client: client,
		logger: logger,
	}
}

func (r *subscriptionRepository) Create(ctx context.Context, s *subdomain.Subscription) error {
	if err := r.client.Querier(ctx).Create(s).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create subscription").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subdomain.Subscription, error) {
	var s subdomain.Subscription
	err := r.client.Querier(ctx).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, wrapSubscriptionNotFound(err, id)
	}
	return &s, nil
}

func (r *subscriptionRepository) GetForUpdate(ctx context.Context, id string) (*subdomain.Subscription, error) {
	var s subdomain.Subscription
	err := r.client.Querier(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, wrapSubscriptionNotFound(err, id)
	}
	return &s, nil
}

func wrapSubscriptionNotFound(err error, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			WithReportableDetails(map[string]any{"subscription_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithMessage("failed to query subscription").
		Mark(ierr.ErrDatabase)
}

func (r *subscriptionRepository) Update(ctx context.Context, s *subdomain.Subscription) error {
	if err := r.client.Querier(ctx).Save(s).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update subscription").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*subdomain.Subscription, error) {
	filter = filter.WithDefaults()
	var subs []*subdomain.Subscription
	err := r.client.Querier(ctx).
		Where("user_id = ?", userID).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&subs).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListAll(ctx context.Context, filter types.Filter) ([]*subdomain.Subscription, error) {
	filter = filter.WithDefaults()
	var subs []*subdomain.Subscription
	err := r.client.Querier(ctx).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&subs).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) CountBillable(ctx context.Context, userID, serviceID string) (int64, error) {
	var count int64
	err := r.client.Querier(ctx).
		Model(&subdomain.Subscription{}).
		Where("user_id = ? AND service_id = ?", userID, serviceID).
		Where("subscription_status IN ?", billableStatuses()).
		Count(&count).Error
	if err != nil {
		return 0, ierr.WithError(err).
			WithMessage("failed to count billable subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *subscriptionRepository) CountBillableByPlan(ctx context.Context, planID string) (int64, error) {
	var count int64
	err := r.client.Querier(ctx).
		Model(&subdomain.Subscription{}).
		Where("plan_id = ?", planID).
		Where("subscription_status IN ?", billableStatuses()).
		Count(&count).Error
	if err != nil {
		return 0, ierr.WithError(err).
			WithMessage("failed to count plan subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *subscriptionRepository) ListDueForRenewal(ctx context.Context, now time.Time) ([]*subdomain.Subscription, error) {
	var subs []*subdomain.Subscription
	err := r.client.Querier(ctx).
		Where("subscription_status = ?", types.SubscriptionStatusActive).
		Where("auto_renew = ?", true).
		Where("next_billing <= ?", now).
		Order("next_billing asc, id asc").
		Find(&subs).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list due renewals").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListInGracePeriod(ctx context.Context) ([]*subdomain.Subscription, error) {
	var subs []*subdomain.Subscription
	err := r.client.Querier(ctx).
		Where("subscription_status = ?", types.SubscriptionStatusActive).
		Where("grace_period_end IS NOT NULL").
		Order("next_billing asc, id asc").
		Find(&subs).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list grace period subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListSuspended(ctx context.Context) ([]*subdomain.Subscription, error) {
	var subs []*subdomain.Subscription
	err := r.client.Querier(ctx).
		Where("subscription_status = ?", types.SubscriptionStatusSuspended).
		Order("next_billing asc, id asc").
		Find(&subs).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list suspended subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListCancelledExpired(ctx context.Context, now time.Time) ([]*subdomain.Subscription, error) {
	var subs []*subdomain.Subscription
	err := r.client.Querier(ctx).
		Where("subscription_status = ? AND end_date <= ?", types.SubscriptionStatusCancelled, now).
		Order("end_date asc, id asc").
		Find(&subs).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list expired cancelled subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListActiveBillingSoon(ctx context.Context, before time.Time) ([]*subdomain.Subscription, error) {
	var subs []*subdomain.Subscription
	err := r.client.Querier(ctx).
		Where("subscription_status = ?", types.SubscriptionStatusActive).
		Where("next_billing <= ?", before).
		Where("auto_renew = ?", true).
		Order("next_billing asc, id asc").
		Find(&subs).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list subscriptions billing soon").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func billableStatuses() []types.SubscriptionStatus {
	return types.BillableSubscriptionStatuses
}
