package store

import (
	"context"
	"errors"
	"time"

	instdomain "github.com/servorahq/servora/internal/domain/instance"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/types"
	"gorm.io/gorm"
)

type instanceRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewInstanceRepository(client postgres.IClient, logger *logger.Logger) instdomain.Repository {
	return &instanceRepository{
		client: client,
		logger: logger,
	}
}

func (r *instanceRepository) Create(ctx context.Context, i *instdomain.Instance) error {
	if err := r.client.Querier(ctx).Create(i).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create instance").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *instanceRepository) Get(ctx context.Context, id string) (*instdomain.Instance, error) {
	var i instdomain.Instance
	err := r.client.Querier(ctx).
		Where("id = ?", id).
		First(&i).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("instance not found").
				WithHint("Instance not found").
				WithReportableDetails(map[string]any{"instance_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query instance").
			Mark(ierr.ErrDatabase)
	}
	return &i, nil
}

func (r *instanceRepository) GetBySubscription(ctx context.Context, subscriptionID string) (*instdomain.Instance, error) {
	var i instdomain.Instance
	err := r.client.Querier(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at desc").
		First(&i).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("instance not found").
				WithHint("Subscription has no instance").
				WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query instance").
			Mark(ierr.ErrDatabase)
	}
	return &i, nil
}

func (r *instanceRepository) Update(ctx context.Context, i *instdomain.Instance) error {
	if err := r.client.Querier(ctx).Save(i).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update instance").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *instanceRepository) ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*instdomain.Instance, error) {
	filter = filter.WithDefaults()
	var instances []*instdomain.Instance
	err := r.client.Querier(ctx).
		Where("user_id = ?", userID).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&instances).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list instances").
			Mark(ierr.ErrDatabase)
	}
	return instances, nil
}

func (r *instanceRepository) ListAll(ctx context.Context, filter types.Filter) ([]*instdomain.Instance, error) {
	filter = filter.WithDefaults()
	var instances []*instdomain.Instance
	err := r.client.Querier(ctx).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&instances).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list instances").
			Mark(ierr.ErrDatabase)
	}
	return instances, nil
}

func (r *instanceRepository) ListStaleReconciling(ctx context.Context, olderThan time.Time) ([]*instdomain.Instance, error) {
	var instances []*instdomain.Instance
	err := r.client.Querier(ctx).
		Where("instance_status IN ?", []types.InstanceStatus{
			types.InstanceStatusPending,
			types.InstanceStatusProvisioning,
		}).
		Where("updated_at < ?", olderThan).
		Order("updated_at asc").
		Find(&instances).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list stale instances").
			Mark(ierr.ErrDatabase)
	}
	return instances, nil
}
