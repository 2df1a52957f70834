package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/servorahq/servora/internal/domain/coupon"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

type InMemoryCouponStore struct {
	mu          sync.RWMutex
	coupons     map[string]*coupon.Coupon
	redemptions []*coupon.Redemption
}

func NewInMemoryCouponStore() *InMemoryCouponStore {
	return &InMemoryCouponStore{coupons: make(map[string]*coupon.Coupon)}
}

func (r *InMemoryCouponStore) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coupons = make(map[string]*coupon.Coupon)
	r.redemptions = nil
}

func (r *InMemoryCouponStore) Create(ctx context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.coupons {
		if existing.Code == c.Code && existing.Status != types.StatusDeleted {
			return ierr.NewError("coupon code already exists").Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *c
	r.coupons[c.ID] = &cp
	return nil
}

func (r *InMemoryCouponStore) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.coupons[id]
	if !exists || c.Status == types.StatusDeleted {
		return nil, ierr.NewError("coupon not found").Mark(ierr.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryCouponStore) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.coupons {
		if c.Code == code && c.Status != types.StatusDeleted {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ierr.NewError("coupon not found").Mark(ierr.ErrNotFound)
}

func (r *InMemoryCouponStore) GetByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.GetByCode(ctx, code)
}

func (r *InMemoryCouponStore) List(ctx context.Context, filter types.Filter) ([]*coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*coupon.Coupon
	for _, c := range r.coupons {
		if c.Status != types.StatusDeleted {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, filter), nil
}

func (r *InMemoryCouponStore) Update(ctx context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.coupons[c.ID]; !exists {
		return ierr.NewError("coupon not found").Mark(ierr.ErrNotFound)
	}
	cp := *c
	r.coupons[c.ID] = &cp
	return nil
}

func (r *InMemoryCouponStore) CreateRedemption(ctx context.Context, red *coupon.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *red
	r.redemptions = append(r.redemptions, &cp)
	return nil
}

func (r *InMemoryCouponStore) CountRedemptionsByUser(ctx context.Context, couponID, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, red := range r.redemptions {
		if red.CouponID == couponID && red.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryCouponStore) ListRedemptions(ctx context.Context, couponID string, filter types.Filter) ([]*coupon.Redemption, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*coupon.Redemption
	for _, red := range r.redemptions {
		if red.CouponID == couponID {
			cp := *red
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, filter), nil
}
