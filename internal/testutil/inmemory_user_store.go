package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/servorahq/servora/internal/domain/user"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*user.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]*user.User)}
}

func (r *InMemoryUserStore) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]*user.User)
}

func (r *InMemoryUserStore) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.ID]; exists {
		return ierr.NewError("user already exists").Mark(ierr.ErrAlreadyExists)
	}
	for _, existing := range r.users {
		if existing.Email == u.Email && existing.Status != types.StatusDeleted {
			return ierr.NewError("email already registered").Mark(ierr.ErrAlreadyExists)
		}
	}

	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *InMemoryUserStore) Get(ctx context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.users[id]
	if !exists || u.Status == types.StatusDeleted {
		return nil, ierr.NewError("user not found").Mark(ierr.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *InMemoryUserStore) GetForUpdate(ctx context.Context, id string) (*user.User, error) {
	return r.Get(ctx, id)
}

func (r *InMemoryUserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range r.users {
		if strings.ToLower(u.Email) == email && u.Status != types.StatusDeleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ierr.NewError("user not found").Mark(ierr.ErrNotFound)
}

func (r *InMemoryUserStore) List(ctx context.Context, filter types.Filter) ([]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*user.User
	for _, u := range r.users {
		if u.Status != types.StatusDeleted {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter), nil
}

func (r *InMemoryUserStore) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, u := range r.users {
		if u.Status != types.StatusDeleted {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryUserStore) Update(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.ID]; !exists {
		return ierr.NewError("user not found").Mark(ierr.ErrNotFound)
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}
