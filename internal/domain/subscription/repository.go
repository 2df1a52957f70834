package subscription

import (
	"context"
	"time"

	"github.com/servorahq/servora/internal/types"
)

// Repository defines the interface for subscription persistence operations
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// GetForUpdate reads the subscription row under a write lock; must be
	// called inside a transaction.
	GetForUpdate(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error

	ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*Subscription, error)
	ListAll(ctx context.Context, filter types.Filter) ([]*Subscription, error)

	// CountBillable counts subscriptions of the user for the service whose
	// status occupies a quota slot (the exclusivity rule).
	CountBillable(ctx context.Context, userID, serviceID string) (int64, error)
	// CountBillableByPlan counts quota-occupying subscriptions on the plan.
	CountBillableByPlan(ctx context.Context, planID string) (int64, error)

	// ListDueForRenewal returns auto-renewing ACTIVE subscriptions whose
	// next billing date has passed, ordered by next_billing asc, id asc.
	ListDueForRenewal(ctx context.Context, now time.Time) ([]*Subscription, error)
	// ListInGracePeriod returns ACTIVE subscriptions carrying a grace deadline.
	ListInGracePeriod(ctx context.Context) ([]*Subscription, error)
	// ListSuspended returns SUSPENDED subscriptions for expiry processing.
	ListSuspended(ctx context.Context) ([]*Subscription, error)
	// ListCancelledExpired returns CANCELLED subscriptions whose paid-for
	// period has ended, ready for workload teardown.
	ListCancelledExpired(ctx context.Context, now time.Time) ([]*Subscription, error)
	// ListActiveBillingSoon returns ACTIVE subscriptions whose next billing
	// falls inside the lead window.
	ListActiveBillingSoon(ctx context.Context, before time.Time) ([]*Subscription, error)
}
