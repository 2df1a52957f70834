package user

import (
	"context"

	"github.com/servorahq/servora/internal/types"
)

// Repository defines the interface for user persistence operations
type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	// GetForUpdate reads the user row under a write lock; must be called
	// inside a transaction.
	GetForUpdate(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter types.Filter) ([]*User, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, u *User) error
}
