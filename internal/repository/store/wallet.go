package store

import (
	"context"
	"errors"

	walletdomain "github.com/servorahq/servora/internal/domain/wallet"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/types"
	"gorm.io/gorm"
)

type walletRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewWalletRepository(client postgres.IClient, logger *logger.Logger) walletdomain.Repository {
	return &walletRepository{
		client: client,
		logger: logger,
	}
}

func (r *walletRepository) CreateTransaction(ctx context.Context, t *walletdomain.Transaction) error {
	if err := r.client.Querier(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.NewError("duplicate ledger entry").
				WithHint("This charge was already recorded").
				WithReportableDetails(map[string]any{"idempotency_key": t.IdempotencyKey}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithMessage("failed to create transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *walletRepository) GetTransaction(ctx context.Context, id string) (*walletdomain.Transaction, error) {
	var t walletdomain.Transaction
	err := r.client.Querier(ctx).
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("transaction not found").
				WithHint("Transaction not found").
				WithReportableDetails(map[string]any{"transaction_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query transaction").
			Mark(ierr.ErrDatabase)
	}
	return &t, nil
}

func (r *walletRepository) GetTransactionByReference(ctx context.Context, reference string) (*walletdomain.Transaction, error) {
	var t walletdomain.Transaction
	err := r.client.Querier(ctx).
		Where("payment_reference = ?", reference).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("transaction not found").
				WithHint("No transaction matches the payment reference").
				WithReportableDetails(map[string]any{"payment_reference": reference}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query transaction by reference").
			Mark(ierr.ErrDatabase)
	}
	return &t, nil
}

func (r *walletRepository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*walletdomain.Transaction, error) {
	var t walletdomain.Transaction
	err := r.client.Querier(ctx).
		Where("idempotency_key = ?", key).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("transaction not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query transaction by idempotency key").
			Mark(ierr.ErrDatabase)
	}
	return &t, nil
}

func (r *walletRepository) UpdateTransaction(ctx context.Context, t *walletdomain.Transaction) error {
	if err := r.client.Querier(ctx).Save(t).Error; err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *walletRepository) ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*walletdomain.Transaction, error) {
	filter = filter.WithDefaults()
	var txns []*walletdomain.Transaction
	err := r.client.Querier(ctx).
		Where("user_id = ?", userID).
		Order(filter.Sort + " " + filter.Order).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&txns).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list transactions").
			Mark(ierr.ErrDatabase)
	}
	return txns, nil
}

func (r *walletRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.client.Querier(ctx).
		Model(&walletdomain.Transaction{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, ierr.WithError(err).
			WithMessage("failed to count transactions").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *walletRepository) LatestCompleted(ctx context.Context, userID string) (*walletdomain.Transaction, error) {
	var t walletdomain.Transaction
	err := r.client.Querier(ctx).
		Where("user_id = ? AND tx_status = ?", userID, types.TransactionStatusCompleted).
		Order("created_at desc, id desc").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("no completed transactions").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to query latest transaction").
			Mark(ierr.ErrDatabase)
	}
	return &t, nil
}

func (r *walletRepository) SumByType(ctx context.Context, userID string) (map[types.TransactionType]int64, error) {
	type row struct {
		Type  types.TransactionType
		Total int64
	}
	var rows []row
	err := r.client.Querier(ctx).
		Model(&walletdomain.Transaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND tx_status = ?", userID, types.TransactionStatusCompleted).
		Group("type").
		Find(&rows).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to aggregate transactions").
			Mark(ierr.ErrDatabase)
	}

	out := make(map[types.TransactionType]int64, len(rows))
	for _, r := range rows {
		out[r.Type] = r.Total
	}
	return out, nil
}
