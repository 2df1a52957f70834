package instance

import (
	"context"
	"time"

	"github.com/servorahq/servora/internal/types"
)

// Repository defines the interface for instance persistence operations
type Repository interface {
	Create(ctx context.Context, i *Instance) error
	Get(ctx context.Context, id string) (*Instance, error)
	GetBySubscription(ctx context.Context, subscriptionID string) (*Instance, error)
	Update(ctx context.Context, i *Instance) error

	ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*Instance, error)
	ListAll(ctx context.Context, filter types.Filter) ([]*Instance, error)

	// ListStaleReconciling returns PENDING or PROVISIONING instances whose
	// last update is older than the threshold; the startup sweep resumes or
	// fails them.
	ListStaleReconciling(ctx context.Context, olderThan time.Time) ([]*Instance, error)
}
