package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/servorahq/servora/internal/domain/catalog"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

type InMemoryCatalogStore struct {
	mu         sync.RWMutex
	categories map[string]*catalog.Category
	services   map[string]*catalog.Service
	plans      map[string]*catalog.Plan
}

func NewInMemoryCatalogStore() *InMemoryCatalogStore {
	return &InMemoryCatalogStore{
		categories: make(map[string]*catalog.Category),
		services:   make(map[string]*catalog.Service),
		plans:      make(map[string]*catalog.Plan),
	}
}

func (r *InMemoryCatalogStore) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories = make(map[string]*catalog.Category)
	r.services = make(map[string]*catalog.Service)
	r.plans = make(map[string]*catalog.Plan)
}

func (r *InMemoryCatalogStore) CreateCategory(ctx context.Context, c *catalog.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.categories {
		if existing.Slug == c.Slug && existing.Status == types.StatusActive {
			return ierr.NewError("category slug already exists").Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *c
	r.categories[c.ID] = &cp
	return nil
}

func (r *InMemoryCatalogStore) ListCategories(ctx context.Context) ([]*catalog.CategoryWithCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*catalog.CategoryWithCount
	for _, c := range r.categories {
		if c.Status != types.StatusActive {
			continue
		}
		var count int64
		for _, s := range r.services {
			if s.CategoryID == c.ID && s.Status == types.StatusActive {
				count++
			}
		}
		result = append(result, &catalog.CategoryWithCount{Category: *c, ServiceCount: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *InMemoryCatalogStore) CreateService(ctx context.Context, s *catalog.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.services {
		if existing.Slug == s.Slug && existing.Status == types.StatusActive {
			return ierr.NewError("service slug already exists").Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *s
	r.services[s.ID] = &cp
	return nil
}

func (r *InMemoryCatalogStore) GetService(ctx context.Context, id string) (*catalog.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.services[id]
	if !exists || s.Status != types.StatusActive {
		return nil, ierr.NewError("service not found").Mark(ierr.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *InMemoryCatalogStore) GetServiceBySlug(ctx context.Context, slug string) (*catalog.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.services {
		if s.Slug == slug && s.Status == types.StatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ierr.NewError("service not found").Mark(ierr.ErrNotFound)
}

func (r *InMemoryCatalogStore) ListServices(ctx context.Context, filter types.Filter) ([]*catalog.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return paginate(r.sortedServices(func(s *catalog.Service) bool { return true }), filter), nil
}

func (r *InMemoryCatalogStore) ListFeaturedServices(ctx context.Context) ([]*catalog.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedServices(func(s *catalog.Service) bool { return s.Featured }), nil
}

func (r *InMemoryCatalogStore) SearchServices(ctx context.Context, query string, filter types.Filter) ([]*catalog.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	matches := r.sortedServices(func(s *catalog.Service) bool {
		return strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Slug), q) ||
			strings.Contains(strings.ToLower(s.Description), q)
	})
	return paginate(matches, filter), nil
}

func (r *InMemoryCatalogStore) sortedServices(match func(*catalog.Service) bool) []*catalog.Service {
	var result []*catalog.Service
	for _, s := range r.services {
		if s.Status == types.StatusActive && match(s) {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (r *InMemoryCatalogStore) UpdateService(ctx context.Context, s *catalog.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[s.ID]; !exists {
		return ierr.NewError("service not found").Mark(ierr.ErrNotFound)
	}
	cp := *s
	r.services[s.ID] = &cp
	return nil
}

func (r *InMemoryCatalogStore) CreatePlan(ctx context.Context, p *catalog.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plans {
		if existing.ServiceID == p.ServiceID && existing.PlanType == p.PlanType &&
			existing.Status == types.StatusActive {
			return ierr.NewError("plan tier already exists for service").Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *p
	r.plans[p.ID] = &cp
	return nil
}

func (r *InMemoryCatalogStore) GetPlan(ctx context.Context, id string) (*catalog.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.plans[id]
	if !exists || p.Status != types.StatusActive {
		return nil, ierr.NewError("plan not found").Mark(ierr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryCatalogStore) GetPlanForUpdate(ctx context.Context, id string) (*catalog.Plan, error) {
	return r.GetPlan(ctx, id)
}

func (r *InMemoryCatalogStore) ListPlansByService(ctx context.Context, serviceID string) ([]*catalog.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*catalog.Plan
	for _, p := range r.plans {
		if p.ServiceID == serviceID && p.Status == types.StatusActive {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MonthlyPrice < result[j].MonthlyPrice })
	return result, nil
}

func (r *InMemoryCatalogStore) UpdatePlan(ctx context.Context, p *catalog.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plans[p.ID]; !exists {
		return ierr.NewError("plan not found").Mark(ierr.ErrNotFound)
	}
	cp := *p
	r.plans[p.ID] = &cp
	return nil
}

func (r *InMemoryCatalogStore) UpdatePlanQuota(ctx context.Context, p *catalog.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.plans[p.ID]
	if !ok {
		return ierr.NewError("plan not found").Mark(ierr.ErrNotFound)
	}
	existing.TotalQuota = p.TotalQuota
	existing.UsedQuota = p.UsedQuota
	existing.OverAllocated = p.OverAllocated
	existing.UpdatedAt = p.UpdatedAt
	return nil
}
