package catalog

import (
	"context"

	"github.com/servorahq/servora/internal/types"
)

// CategoryWithCount pairs a category with the number of active services in it.
type CategoryWithCount struct {
	Category
	ServiceCount int64 `json:"service_count"`
}

// Repository defines the interface for catalog persistence operations
type Repository interface {
	// Category operations
	CreateCategory(ctx context.Context, c *Category) error
	ListCategories(ctx context.Context) ([]*CategoryWithCount, error)

	// Service operations
	CreateService(ctx context.Context, s *Service) error
	GetService(ctx context.Context, id string) (*Service, error)
	GetServiceBySlug(ctx context.Context, slug string) (*Service, error)
	ListServices(ctx context.Context, filter types.Filter) ([]*Service, error)
	ListFeaturedServices(ctx context.Context) ([]*Service, error)
	SearchServices(ctx context.Context, query string, filter types.Filter) ([]*Service, error)
	UpdateService(ctx context.Context, s *Service) error

	// Plan operations
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, id string) (*Plan, error)
	// GetPlanForUpdate reads the plan row under a write lock; must be called
	// inside a transaction.
	GetPlanForUpdate(ctx context.Context, id string) (*Plan, error)
	ListPlansByService(ctx context.Context, serviceID string) ([]*Plan, error)
	UpdatePlan(ctx context.Context, p *Plan) error
	// UpdatePlanQuota persists only the admission counter fields.
	UpdatePlanQuota(ctx context.Context, p *Plan) error
}
