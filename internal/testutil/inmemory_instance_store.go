package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/servorahq/servora/internal/domain/instance"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

type InMemoryInstanceStore struct {
	mu        sync.RWMutex
	instances map[string]*instance.Instance
}

func NewInMemoryInstanceStore() *InMemoryInstanceStore {
	return &InMemoryInstanceStore{instances: make(map[string]*instance.Instance)}
}

func (r *InMemoryInstanceStore) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]*instance.Instance)
}

func (r *InMemoryInstanceStore) Create(ctx context.Context, i *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[i.ID]; exists {
		return ierr.NewError("instance already exists").Mark(ierr.ErrAlreadyExists)
	}
	cp := *i
	r.instances[i.ID] = &cp
	return nil
}

func (r *InMemoryInstanceStore) Get(ctx context.Context, id string) (*instance.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, exists := r.instances[id]
	if !exists || i.Status == types.StatusDeleted {
		return nil, ierr.NewError("instance not found").Mark(ierr.ErrNotFound)
	}
	cp := *i
	return &cp, nil
}

func (r *InMemoryInstanceStore) GetBySubscription(ctx context.Context, subscriptionID string) (*instance.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, i := range r.instances {
		if i.SubscriptionID == subscriptionID && i.Status != types.StatusDeleted {
			cp := *i
			return &cp, nil
		}
	}
	return nil, ierr.NewError("instance not found").Mark(ierr.ErrNotFound)
}

func (r *InMemoryInstanceStore) Update(ctx context.Context, i *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[i.ID]; !exists {
		return ierr.NewError("instance not found").Mark(ierr.ErrNotFound)
	}
	cp := *i
	r.instances[i.ID] = &cp
	return nil
}

func (r *InMemoryInstanceStore) ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*instance.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := r.collect(func(i *instance.Instance) bool { return i.UserID == userID })
	return paginate(result, filter), nil
}

func (r *InMemoryInstanceStore) ListAll(ctx context.Context, filter types.Filter) ([]*instance.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := r.collect(func(i *instance.Instance) bool { return true })
	return paginate(result, filter), nil
}

func (r *InMemoryInstanceStore) ListStaleReconciling(ctx context.Context, olderThan time.Time) ([]*instance.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(i *instance.Instance) bool {
		reconciling := i.InstanceStatus == types.InstanceStatusPending ||
			i.InstanceStatus == types.InstanceStatusProvisioning
		return reconciling && i.UpdatedAt.Before(olderThan)
	}), nil
}

func (r *InMemoryInstanceStore) collect(match func(*instance.Instance) bool) []*instance.Instance {
	var result []*instance.Instance
	for _, i := range r.instances {
		if i.Status != types.StatusDeleted && match(i) {
			cp := *i
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}
