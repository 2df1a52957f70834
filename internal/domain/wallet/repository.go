package wallet

import (
	"context"

	"github.com/servorahq/servora/internal/types"
)

// Repository defines the interface for wallet ledger persistence operations
type Repository interface {
	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (*Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)
	UpdateTransaction(ctx context.Context, t *Transaction) error

	ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*Transaction, error)
	CountByUser(ctx context.Context, userID string) (int64, error)

	// LatestCompleted returns the most recent COMPLETED entry of the user in
	// created-at order, or a not-found error when the ledger is empty.
	LatestCompleted(ctx context.Context, userID string) (*Transaction, error)

	// SumByType aggregates COMPLETED amounts per transaction type for the
	// wallet statistics surface.
	SumByType(ctx context.Context, userID string) (map[types.TransactionType]int64, error)
}
