package store

import (
	"context"
	"errors"

	userdomain "github.com/servorahq/servora/internal/domain/user"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewUserRepository(client postgres.IClient, logger *logger.Logger) userdomain.Repository {
	return &userRepository{
		client: client,
		logger: logger,
	}
}

func (r *userRepository) Create(ctx context.Context, u *userdomain.User) error {
	if err := r.client.Querier(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.NewError("user already exists").
				WithHintf("A user with email %s already exists", u.Email).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithMessage("failed to create user").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (*userdomain.User, error) {
	var u userdomain.User
	err := r.client.Querier(ctx).
		Where("id = ? AND status <> ?", id, types.StatusDeleted).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("user not found").
				WithHint("User not found").
				WithReportableDetails(map[string]any{"user_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query user").
			Mark(ierr.ErrDatabase)
	}
	return &u, nil
}

func (r *userRepository) GetForUpdate(ctx context.Context, id string) (*userdomain.User, error) {
	var u userdomain.User
	err := r.client.Querier(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND status <> ?", id, types.StatusDeleted).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("user not found").
				WithHint("User not found").
				WithReportableDetails(map[string]any{"user_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to lock user row").
			Mark(ierr.ErrDatabase)
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	var u userdomain.User
	err := r.client.Querier(ctx).
		Where("email = ? AND status <> ?", email, types.StatusDeleted).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("user not found").
				WithHint("User not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query user by email").
			Mark(ierr.ErrDatabase)
	}
	return &u, nil
}

func (r *userRepository) List(ctx context.Context, filter types.Filter) ([]*userdomain.User, error) {
	filter = filter.WithDefaults()
	var users []*userdomain.User
	err := r.client.Querier(ctx).
		Where("status <> ?", types.StatusDeleted).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&users).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list users").
			Mark(ierr.ErrDatabase)
	}
	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.client.Querier(ctx).
		Model(&userdomain.User{}).
		Where("status <> ?", types.StatusDeleted).
		Count(&count).Error
	if err != nil {
		return 0, ierr.WithError(err).
			WithMessage("failed to count users").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *userRepository) Update(ctx context.Context, u *userdomain.User) error {
	if err := r.client.Querier(ctx).Save(u).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update user").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
