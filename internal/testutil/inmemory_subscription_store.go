package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/servorahq/servora/internal/domain/subscription"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

type InMemorySubscriptionStore struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription.Subscription
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{subscriptions: make(map[string]*subscription.Subscription)}
}

func (r *InMemorySubscriptionStore) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions = make(map[string]*subscription.Subscription)
}

func (r *InMemorySubscriptionStore) Create(ctx context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptions[s.ID]; exists {
		return ierr.NewError("subscription already exists").Mark(ierr.ErrAlreadyExists)
	}
	cp := *s
	r.subscriptions[s.ID] = &cp
	return nil
}

func (r *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.subscriptions[id]
	if !exists || s.Status == types.StatusDeleted {
		return nil, ierr.NewError("subscription not found").Mark(ierr.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *InMemorySubscriptionStore) GetForUpdate(ctx context.Context, id string) (*subscription.Subscription, error) {
	return r.Get(ctx, id)
}

func (r *InMemorySubscriptionStore) Update(ctx context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptions[s.ID]; !exists {
		return ierr.NewError("subscription not found").Mark(ierr.ErrNotFound)
	}
	cp := *s
	r.subscriptions[s.ID] = &cp
	return nil
}

func (r *InMemorySubscriptionStore) ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := r.collect(func(s *subscription.Subscription) bool { return s.UserID == userID })
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, filter), nil
}

func (r *InMemorySubscriptionStore) ListAll(ctx context.Context, filter types.Filter) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := r.collect(func(s *subscription.Subscription) bool { return true })
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, filter), nil
}

func (r *InMemorySubscriptionStore) CountBillable(ctx context.Context, userID, serviceID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.ServiceID == serviceID &&
			s.Status != types.StatusDeleted && s.IsBillable() {
			n++
		}
	}
	return n, nil
}

func (r *InMemorySubscriptionStore) CountBillableByPlan(ctx context.Context, planID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, s := range r.subscriptions {
		if s.PlanID == planID && s.Status != types.StatusDeleted && s.IsBillable() {
			n++
		}
	}
	return n, nil
}

func (r *InMemorySubscriptionStore) ListDueForRenewal(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := r.collect(func(s *subscription.Subscription) bool {
		return s.SubscriptionStatus == types.SubscriptionStatusActive &&
			s.AutoRenew && !s.NextBilling.After(now)
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextBilling.Equal(result[j].NextBilling) {
			return result[i].NextBilling.Before(result[j].NextBilling)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *InMemorySubscriptionStore) ListInGracePeriod(ctx context.Context) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(s *subscription.Subscription) bool {
		return s.SubscriptionStatus == types.SubscriptionStatusActive && s.GracePeriodEnd != nil
	}), nil
}

func (r *InMemorySubscriptionStore) ListSuspended(ctx context.Context) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(s *subscription.Subscription) bool {
		return s.SubscriptionStatus == types.SubscriptionStatusSuspended
	}), nil
}

func (r *InMemorySubscriptionStore) ListCancelledExpired(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := r.collect(func(s *subscription.Subscription) bool {
		return s.SubscriptionStatus == types.SubscriptionStatusCancelled && !s.EndDate.After(now)
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].EndDate.Equal(result[j].EndDate) {
			return result[i].EndDate.Before(result[j].EndDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *InMemorySubscriptionStore) ListActiveBillingSoon(ctx context.Context, before time.Time) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(s *subscription.Subscription) bool {
		return s.SubscriptionStatus == types.SubscriptionStatusActive && s.NextBilling.Before(before)
	}), nil
}

func (r *InMemorySubscriptionStore) collect(match func(*subscription.Subscription) bool) []*subscription.Subscription {
	var result []*subscription.Subscription
	for _, s := range r.subscriptions {
		if s.Status != types.StatusDeleted && match(s) {
			cp := *s
			result = append(result, &cp)
		}
	}
	return result
}
