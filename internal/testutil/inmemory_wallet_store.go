package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/servorahq/servora/internal/domain/wallet"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// InMemoryWalletStore keeps ledger entries in insertion order so created-at
// ties resolve the way a sequential database would.
type InMemoryWalletStore struct {
	mu           sync.RWMutex
	transactions []*wallet.Transaction
	byID         map[string]*wallet.Transaction
}

func NewInMemoryWalletStore() *InMemoryWalletStore {
	return &InMemoryWalletStore{byID: make(map[string]*wallet.Transaction)}
}

func (r *InMemoryWalletStore) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = nil
	r.byID = make(map[string]*wallet.Transaction)
}

func (r *InMemoryWalletStore) CreateTransaction(ctx context.Context, t *wallet.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[t.ID]; exists {
		return ierr.NewError("transaction already exists").Mark(ierr.ErrAlreadyExists)
	}
	if t.IdempotencyKey != "" {
		for _, existing := range r.transactions {
			if existing.IdempotencyKey == t.IdempotencyKey {
				return ierr.NewError("idempotency key already used").Mark(ierr.ErrAlreadyExists)
			}
		}
	}

	cp := *t
	r.transactions = append(r.transactions, &cp)
	r.byID[t.ID] = &cp
	return nil
}

func (r *InMemoryWalletStore) GetTransaction(ctx context.Context, id string) (*wallet.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.byID[id]
	if !exists {
		return nil, ierr.NewError("transaction not found").Mark(ierr.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (r *InMemoryWalletStore) GetTransactionByReference(ctx context.Context, reference string) (*wallet.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.transactions {
		if t.PaymentReference == reference {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ierr.NewError("transaction not found").Mark(ierr.ErrNotFound)
}

func (r *InMemoryWalletStore) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*wallet.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.transactions {
		if t.IdempotencyKey != "" && t.IdempotencyKey == key {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ierr.NewError("transaction not found").Mark(ierr.ErrNotFound)
}

func (r *InMemoryWalletStore) UpdateTransaction(ctx context.Context, t *wallet.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[t.ID]
	if !ok {
		return ierr.NewError("transaction not found").Mark(ierr.ErrNotFound)
	}
	*existing = *t
	return nil
}

func (r *InMemoryWalletStore) ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*wallet.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*wallet.Transaction
	for _, t := range r.transactions {
		if t.UserID == userID {
			cp := *t
			result = append(result, &cp)
		}
	}
	// Newest first; insertion order breaks created-at ties.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter), nil
}

func (r *InMemoryWalletStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, t := range r.transactions {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryWalletStore) LatestCompleted(ctx context.Context, userID string) (*wallet.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.transactions) - 1; i >= 0; i-- {
		t := r.transactions[i]
		if t.UserID == userID && t.IsCompleted() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ierr.NewError("no completed transactions").Mark(ierr.ErrNotFound)
}

func (r *InMemoryWalletStore) SumByType(ctx context.Context, userID string) (map[types.TransactionType]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sums := make(map[types.TransactionType]int64)
	for _, t := range r.transactions {
		if t.UserID == userID && t.IsCompleted() {
			sums[t.Type] += t.Amount
		}
	}
	return sums, nil
}
