package store

import (
	"context"
	"errors"

	catalogdomain "github.com/servorahq/servora/internal/domain/catalog"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type catalogRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewCatalogRepository(client postgres.IClient, logger *logger.Logger) catalogdomain.Repository {
	return &catalogRepository{
		client: client,
		logger: logger,
	}
}

func (r *catalogRepository) CreateCategory(ctx context.Context, c *catalogdomain.Category) error {
	if err := r.client.Querier(ctx).Create(c).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create category").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *catalogRepository) ListCategories(ctx context.Context) ([]*catalogdomain.CategoryWithCount, error) {
	var out []*catalogdomain.CategoryWithCount
	err := r.client.Querier(ctx).
		Model(&catalogdomain.Category{}).
		Select("service_categories.*, COUNT(services.id) AS service_count").
		Joins("LEFT JOIN services ON services.category_id = service_categories.id AND services.status = ?", types.StatusActive).
		Where("service_categories.status = ?", types.StatusActive).
		Group("service_categories.id").
		Order("service_categories.name asc").
		Find(&out).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list categories").
			Mark(ierr.ErrDatabase)
	}
	return out, nil
}

func (r *catalogRepository) CreateService(ctx context.Context, s *catalogdomain.Service) error {
	if err := r.client.Querier(ctx).Create(s).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.NewError("service already exists").
				WithHintf("A service with slug %s already exists", s.Slug).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithMessage("failed to create service").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *catalogRepository) GetService(ctx context.Context, id string) (*catalogdomain.Service, error) {
	var s catalogdomain.Service
	err := r.client.Querier(ctx).
		Where("id = ? AND status = ?", id, types.StatusActive).
		First(&s).Error
	if err != nil {
		return nil, wrapServiceNotFound(err, id)
	}
	return &s, nil
}

func (r *catalogRepository) GetServiceBySlug(ctx context.Context, slug string) (*catalogdomain.Service, error) {
	var s catalogdomain.Service
	err := r.client.Querier(ctx).
		Where("slug = ? AND status = ?", slug, types.StatusActive).
		First(&s).Error
	if err != nil {
		return nil, wrapServiceNotFound(err, slug)
	}
	return &s, nil
}

func wrapServiceNotFound(err error, ref string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ierr.NewError("service not found").
			WithHint("Service not found").
			WithReportableDetails(map[string]any{"service": ref}).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithMessage("failed to query service").
		Mark(ierr.ErrDatabase)
}

func (r *catalogRepository) ListServices(ctx context.Context, filter types.Filter) ([]*catalogdomain.Service, error) {
	filter = filter.WithDefaults()
	var services []*catalogdomain.Service
	err := r.client.Querier(ctx).
		Where("status = ?", types.StatusActive).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&services).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list services").
			Mark(ierr.ErrDatabase)
	}
	return services, nil
}

func (r *catalogRepository) ListFeaturedServices(ctx context.Context) ([]*catalogdomain.Service, error) {
	var services []*catalogdomain.Service
	err := r.client.Querier(ctx).
		Where("featured = ? AND status = ?", true, types.StatusActive).
		Order("name asc").
		Find(&services).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list featured services").
			Mark(ierr.ErrDatabase)
	}
	return services, nil
}

func (r *catalogRepository) SearchServices(ctx context.Context, query string, filter types.Filter) ([]*catalogdomain.Service, error) {
	filter = filter.WithDefaults()
	var services []*catalogdomain.Service
	pattern := "%" + query + "%"
	err := r.client.Querier(ctx).
		Where("status = ?", types.StatusActive).
		Where("name ILIKE ? OR description ILIKE ? OR slug ILIKE ?", pattern, pattern, pattern).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&services).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to search services").
			Mark(ierr.ErrDatabase)
	}
	return services, nil
}

func (r *catalogRepository) UpdateService(ctx context.Context, s *catalogdomain.Service) error {
	if err := r.client.Querier(ctx).Save(s).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update service").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *catalogRepository) CreatePlan(ctx context.Context, p *catalogdomain.Plan) error {
	if err := r.client.Querier(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.NewError("plan already exists").
				WithHintf("Service already has a %s plan", p.PlanType).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithMessage("failed to create plan").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *catalogRepository) GetPlan(ctx context.Context, id string) (*catalogdomain.Plan, error) {
	var p catalogdomain.Plan
	err := r.client.Querier(ctx).
		Where("id = ? AND status = ?", id, types.StatusActive).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("plan not found").
				WithHint("Plan not found").
				WithReportableDetails(map[string]any{"plan_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query plan").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *catalogRepository) GetPlanForUpdate(ctx context.Context, id string) (*catalogdomain.Plan, error) {
	var p catalogdomain.Plan
	err := r.client.Querier(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND status = ?", id, types.StatusActive).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("plan not found").
				WithHint("Plan not found").
				WithReportableDetails(map[string]any{"plan_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to lock plan row").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *catalogRepository) ListPlansByService(ctx context.Context, serviceID string) ([]*catalogdomain.Plan, error) {
	var plans []*catalogdomain.Plan
	err := r.client.Querier(ctx).
		Where("service_id = ? AND status = ?", serviceID, types.StatusActive).
		Order("monthly_price asc").
		Find(&plans).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list plans").
			Mark(ierr.ErrDatabase)
	}
	return plans, nil
}

func (r *catalogRepository) UpdatePlan(ctx context.Context, p *catalogdomain.Plan) error {
	if err := r.client.Querier(ctx).Save(p).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update plan").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *catalogRepository) UpdatePlanQuota(ctx context.Context, p *catalogdomain.Plan) error {
	err := r.client.Querier(ctx).
		Model(&catalogdomain.Plan{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"used_quota":     p.UsedQuota,
			"total_quota":    p.TotalQuota,
			"over_allocated": p.OverAllocated,
			"updated_at":     p.UpdatedAt,
		}).Error
	if err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update plan quota").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
