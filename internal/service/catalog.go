package service

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/servorahq/servora/internal/domain/catalog"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

const (
	catalogCacheTTL     = 5 * time.Minute
	catalogCacheCleanup = 10 * time.Minute

	cacheKeyCategories = "categories"
	cacheKeyFeatured   = "featured"
)

// CatalogService serves the service catalog and owns the plan admission
// counters. Read paths are cached; every write invalidates the cache.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]*catalog.CategoryWithCount, error)
	CreateCategory(ctx context.Context, c *catalog.Category) error

	GetService(ctx context.Context, id string) (*catalog.Service, error)
	GetServiceBySlug(ctx context.Context, slug string) (*catalog.Service, error)
	ListServices(ctx context.Context, filter types.Filter) ([]*catalog.Service, error)
	ListFeaturedServices(ctx context.Context) ([]*catalog.Service, error)
	SearchServices(ctx context.Context, query string, filter types.Filter) ([]*catalog.Service, error)
	CreateService(ctx context.Context, svc *catalog.Service) error
	UpdateService(ctx context.Context, svc *catalog.Service) error

	GetPlan(ctx context.Context, id string) (*catalog.Plan, error)
	ListPlansByService(ctx context.Context, serviceID string) ([]*catalog.Plan, error)
	CreatePlan(ctx context.Context, p *catalog.Plan) error
	UpdatePlan(ctx context.Context, p *catalog.Plan) error

	// AllocateQuota claims one admission slot on the plan; must run inside
	// the caller's transaction so the claim commits with the subscription.
	AllocateQuota(ctx context.Context, planID string) error
	// ReleaseQuota returns one admission slot; tolerant of double release.
	ReleaseQuota(ctx context.Context, planID string) error
	// SetTotalQuota resizes the plan capacity. Shrinking below the current
	// usage is refused unless force is set; a forced shrink marks the plan
	// over-allocated, which blocks new admissions until usage drains.
	SetTotalQuota(ctx context.Context, planID string, total int, force bool) (*catalog.Plan, error)
}

type catalogService struct {
	ServiceParams
	cache *gocache.Cache
}

func NewCatalogService(params ServiceParams) CatalogService {
	return &catalogService{
		ServiceParams: params,
		cache:         gocache.New(catalogCacheTTL, catalogCacheCleanup),
	}
}

func (s *catalogService) ListCategories(ctx context.Context) ([]*catalog.CategoryWithCount, error) {
	if cached, ok := s.cache.Get(cacheKeyCategories); ok {
		return cached.([]*catalog.CategoryWithCount), nil
	}
	categories, err := s.CatalogRepo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(cacheKeyCategories, categories)
	return categories, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, c *catalog.Category) error {
	if c.ID == "" {
		c.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixCategory)
	}
	c.BaseModel = types.GetDefaultBaseModel()
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.CatalogRepo.CreateCategory(ctx, c); err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

func (s *catalogService) GetService(ctx context.Context, id string) (*catalog.Service, error) {
	if cached, ok := s.cache.Get("service:" + id); ok {
		return cached.(*catalog.Service), nil
	}
	svc, err := s.CatalogRepo.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault("service:"+id, svc)
	return svc, nil
}

func (s *catalogService) GetServiceBySlug(ctx context.Context, slug string) (*catalog.Service, error) {
	return s.CatalogRepo.GetServiceBySlug(ctx, slug)
}

func (s *catalogService) ListServices(ctx context.Context, filter types.Filter) ([]*catalog.Service, error) {
	return s.CatalogRepo.ListServices(ctx, filter)
}

func (s *catalogService) ListFeaturedServices(ctx context.Context) ([]*catalog.Service, error) {
	if cached, ok := s.cache.Get(cacheKeyFeatured); ok {
		return cached.([]*catalog.Service), nil
	}
	featured, err := s.CatalogRepo.ListFeaturedServices(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(cacheKeyFeatured, featured)
	return featured, nil
}

func (s *catalogService) SearchServices(ctx context.Context, query string, filter types.Filter) ([]*catalog.Service, error) {
	return s.CatalogRepo.SearchServices(ctx, query, filter)
}

func (s *catalogService) CreateService(ctx context.Context, svc *catalog.Service) error {
	if svc.ID == "" {
		svc.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixService)
	}
	svc.BaseModel = types.GetDefaultBaseModel()
	if err := svc.Validate(); err != nil {
		return err
	}
	if err := s.CatalogRepo.CreateService(ctx, svc); err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

func (s *catalogService) UpdateService(ctx context.Context, svc *catalog.Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if err := s.CatalogRepo.UpdateService(ctx, svc); err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

func (s *catalogService) GetPlan(ctx context.Context, id string) (*catalog.Plan, error) {
	return s.CatalogRepo.GetPlan(ctx, id)
}

func (s *catalogService) ListPlansByService(ctx context.Context, serviceID string) ([]*catalog.Plan, error) {
	return s.CatalogRepo.ListPlansByService(ctx, serviceID)
}

func (s *catalogService) CreatePlan(ctx context.Context, p *catalog.Plan) error {
	if p.ID == "" {
		p.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixPlan)
	}
	p.BaseModel = types.GetDefaultBaseModel()
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := s.CatalogRepo.GetService(ctx, p.ServiceID); err != nil {
		return err
	}
	if err := s.CatalogRepo.CreatePlan(ctx, p); err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

func (s *catalogService) UpdatePlan(ctx context.Context, p *catalog.Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.CatalogRepo.UpdatePlan(ctx, p); err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

func (s *catalogService) AllocateQuota(ctx context.Context, planID string) error {
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.CatalogRepo.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if !p.IsAvailable() {
			return ierr.NewError("plan capacity exhausted").
				WithHintf("Plan %s has no open slots", p.Name).
				WithReportableDetails(map[string]any{
					"plan_id":     p.ID,
					"total_quota": p.TotalQuota,
					"used_quota":  p.UsedQuota,
				}).
				Mark(ierr.ErrQuotaExceeded)
		}
		p.UsedQuota++
		return s.CatalogRepo.UpdatePlanQuota(ctx, p)
	})
}

func (s *catalogService) ReleaseQuota(ctx context.Context, planID string) error {
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.CatalogRepo.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if p.UsedQuota > 0 {
			p.UsedQuota--
		}
		if p.OverAllocated && p.UsedQuota <= p.TotalQuota {
			p.OverAllocated = false
		}
		return s.CatalogRepo.UpdatePlanQuota(ctx, p)
	})
}

func (s *catalogService) SetTotalQuota(ctx context.Context, planID string, total int, force bool) (*catalog.Plan, error) {
	if total < 0 {
		return nil, ierr.NewError("total quota cannot be negative").
			Mark(ierr.ErrValidation)
	}
	var updated *catalog.Plan
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.CatalogRepo.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if total < p.UsedQuota && !force {
			return ierr.NewError("total quota is below current usage").
				WithHintf("Plan has %d active subscriptions, set force to shrink anyway", p.UsedQuota).
				WithReportableDetails(map[string]any{
					"total_quota": total,
					"used_quota":  p.UsedQuota,
				}).
				Mark(ierr.ErrValidation)
		}
		p.TotalQuota = total
		p.OverAllocated = p.UsedQuota > p.TotalQuota
		if err := s.CatalogRepo.UpdatePlanQuota(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Flush()
	s.Logger.Infow("plan quota resized",
		"plan_id", planID, "total", total, "over_allocated", updated.OverAllocated)
	return updated, nil
}
