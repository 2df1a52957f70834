package service

import (
	"context"
	"time"

	"github.com/servorahq/servora/internal/domain/wallet"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// DebitRequest charges a user's wallet. Amount is in minor units, never
// negative.
type DebitRequest struct {
	UserID         string
	Amount         int64
	Type           types.TransactionType
	SubscriptionID string
	Description    string
	// IdempotencyKey deduplicates scheduler-driven charges; empty disables
	// deduplication.
	IdempotencyKey string
	Metadata       types.Metadata
}

// CreditRequest adds funds to a user's wallet.
type CreditRequest struct {
	UserID         string
	Amount         int64
	Type           types.TransactionType
	SubscriptionID string
	Description    string
	IdempotencyKey string
	ProcessedBy    string
	Metadata       types.Metadata
}

// TopUpRequest starts a payment-gateway top-up; the wallet is credited only
// when the gateway settles.
type TopUpRequest struct {
	UserID           string
	Amount           int64
	PaymentMethod    string
	PaymentReference string
}

// WalletStatistics summarizes a user's wallet for the dashboard surface.
type WalletStatistics struct {
	Balance          int64                           `json:"balance"`
	TotalTopUp       int64                           `json:"total_top_up"`
	TotalSpent       int64                           `json:"total_spent"`
	TotalRefunded    int64                           `json:"total_refunded"`
	TransactionCount int64                           `json:"transaction_count"`
	ByType           map[types.TransactionType]int64 `json:"by_type"`
}

// WalletService owns every wallet balance mutation. Each mutation runs in a
// serializable transaction holding the user row lock, appends exactly one
// ledger entry and keeps BalanceBefore/BalanceAfter chained.
type WalletService interface {
	Deduct(ctx context.Context, req DebitRequest) (*wallet.Transaction, error)
	Credit(ctx context.Context, req CreditRequest) (*wallet.Transaction, error)
	AdminAdjust(ctx context.Context, userID string, delta int64, adminID, description string) (*wallet.Transaction, error)
	RecordFailedCharge(ctx context.Context, req DebitRequest, reason string) (*wallet.Transaction, error)

	InitiateTopUp(ctx context.Context, req TopUpRequest) (*wallet.Transaction, error)
	CompleteTopUp(ctx context.Context, paymentReference string) (*wallet.Transaction, error)
	FailTopUp(ctx context.Context, paymentReference, reason string) error

	CheckCredit(ctx context.Context, userID string, amount int64) error
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetStatistics(ctx context.Context, userID string) (*WalletStatistics, error)
	ListTransactions(ctx context.Context, userID string, filter types.Filter) ([]*wallet.Transaction, int64, error)
}

type walletService struct {
	ServiceParams
}

func NewWalletService(params ServiceParams) WalletService {
	return &walletService{ServiceParams: params}
}

func (s *walletService) Deduct(ctx context.Context, req DebitRequest) (*wallet.Transaction, error) {
	if req.Amount < 0 {
		return nil, ierr.NewError("deduction amount cannot be negative").
			Mark(ierr.ErrValidation)
	}

	var txn *wallet.Transaction
	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		// A completed entry under the same key means the charge already
		// happened; a failed one is retried and settled in place.
		var retried *wallet.Transaction
		if req.IdempotencyKey != "" {
			existing, err := s.WalletRepo.GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
			if err == nil && existing.IsCompleted() {
				txn = existing
				return nil
			}
			if err != nil && !ierr.IsNotFound(err) {
				return err
			}
			retried = existing
		}

		u, err := s.UserRepo.GetForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}
		if u.CreditBalance < req.Amount {
			return ierr.NewError("insufficient credit").
				WithHintf("Balance %d is below the required %d", u.CreditBalance, req.Amount).
				WithReportableDetails(map[string]any{
					"balance":  u.CreditBalance,
					"required": req.Amount,
				}).
				Mark(ierr.ErrInsufficientCredit)
		}

		before := u.CreditBalance
		u.CreditBalance -= req.Amount
		u.TotalSpent += req.Amount
		if err := s.UserRepo.Update(ctx, u); err != nil {
			return err
		}

		if retried != nil {
			now := time.Now().UTC()
			retried.TxStatus = types.TransactionStatusCompleted
			retried.Amount = req.Amount
			retried.BalanceBefore = before
			retried.BalanceAfter = u.CreditBalance
			retried.FailureReason = ""
			retried.CompletedAt = &now
			retried.UpdatedAt = now
			txn = retried
			return s.WalletRepo.UpdateTransaction(ctx, retried)
		}

		txn = s.newTransaction(req.UserID, req.Type, req.Amount, before, u.CreditBalance)
		txn.SubscriptionID = req.SubscriptionID
		txn.Description = req.Description
		txn.IdempotencyKey = req.IdempotencyKey
		txn.Metadata = req.Metadata
		return s.WalletRepo.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Infow("wallet debited",
		"user_id", req.UserID, "amount", req.Amount, "type", req.Type, "txn_id", txn.ID)
	return txn, nil
}

func (s *walletService) Credit(ctx context.Context, req CreditRequest) (*wallet.Transaction, error) {
	if req.Amount < 0 {
		return nil, ierr.NewError("credit amount cannot be negative").
			Mark(ierr.ErrValidation)
	}

	var txn *wallet.Transaction
	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		if req.IdempotencyKey != "" {
			existing, err := s.WalletRepo.GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
			if err == nil {
				txn = existing
				return nil
			}
			if !ierr.IsNotFound(err) {
				return err
			}
		}

		u, err := s.UserRepo.GetForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}

		before := u.CreditBalance
		u.CreditBalance += req.Amount
		switch req.Type {
		case types.TransactionTypeTopUp:
			u.TotalTopUp += req.Amount
		case types.TransactionTypeRefund:
			// A refund returns spend; the counter never goes negative.
			if req.Amount < u.TotalSpent {
				u.TotalSpent -= req.Amount
			} else {
				u.TotalSpent = 0
			}
		}
		if err := s.UserRepo.Update(ctx, u); err != nil {
			return err
		}

		txn = s.newTransaction(req.UserID, req.Type, req.Amount, before, u.CreditBalance)
		txn.SubscriptionID = req.SubscriptionID
		txn.Description = req.Description
		txn.IdempotencyKey = req.IdempotencyKey
		txn.ProcessedBy = req.ProcessedBy
		txn.Metadata = req.Metadata
		return s.WalletRepo.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Infow("wallet credited",
		"user_id", req.UserID, "amount", req.Amount, "type", req.Type, "txn_id", txn.ID)
	return txn, nil
}

// AdminAdjust applies a signed balance correction. Negative deltas never push
// the balance below zero.
func (s *walletService) AdminAdjust(ctx context.Context, userID string, delta int64, adminID, description string) (*wallet.Transaction, error) {
	if delta == 0 {
		return nil, ierr.NewError("adjustment delta cannot be zero").
			Mark(ierr.ErrValidation)
	}

	var txn *wallet.Transaction
	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		u, err := s.UserRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if u.CreditBalance+delta < 0 {
			return ierr.NewError("adjustment would make the balance negative").
				WithHintf("Balance is %d, delta %d", u.CreditBalance, delta).
				Mark(ierr.ErrInsufficientCredit)
		}

		before := u.CreditBalance
		u.CreditBalance += delta
		if err := s.UserRepo.Update(ctx, u); err != nil {
			return err
		}

		amount := delta
		if amount < 0 {
			amount = -amount
		}
		txn = s.newTransaction(userID, types.TransactionTypeAdminAdjustment, amount, before, u.CreditBalance)
		txn.Description = description
		txn.ProcessedBy = adminID
		return s.WalletRepo.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Infow("wallet adjusted",
		"user_id", userID, "delta", delta, "admin_id", adminID, "txn_id", txn.ID)
	return txn, nil
}

// RecordFailedCharge appends a FAILED ledger entry without touching the
// balance, so declined renewals stay auditable.
func (s *walletService) RecordFailedCharge(ctx context.Context, req DebitRequest, reason string) (*wallet.Transaction, error) {
	var txn *wallet.Transaction
	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		if req.IdempotencyKey != "" {
			existing, err := s.WalletRepo.GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
			if err == nil {
				txn = existing
				return nil
			}
			if !ierr.IsNotFound(err) {
				return err
			}
		}

		u, err := s.UserRepo.Get(ctx, req.UserID)
		if err != nil {
			return err
		}

		txn = &wallet.Transaction{
			ID:             types.GenerateUUIDWithPrefix(types.UUIDPrefixTransaction),
			UserID:         req.UserID,
			Type:           req.Type,
			TxStatus:       types.TransactionStatusFailed,
			Amount:         req.Amount,
			BalanceBefore:  u.CreditBalance,
			BalanceAfter:   u.CreditBalance,
			SubscriptionID: req.SubscriptionID,
			Description:    req.Description,
			IdempotencyKey: req.IdempotencyKey,
			FailureReason:  reason,
			CreatedAt:      time.Now().UTC(),
			UpdatedAt:      time.Now().UTC(),
		}
		return s.WalletRepo.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *walletService) InitiateTopUp(ctx context.Context, req TopUpRequest) (*wallet.Transaction, error) {
	if req.Amount <= 0 {
		return nil, ierr.NewError("top-up amount must be positive").
			Mark(ierr.ErrValidation)
	}

	u, err := s.UserRepo.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	txn := &wallet.Transaction{
		ID:               types.GenerateUUIDWithPrefix(types.UUIDPrefixTransaction),
		UserID:           u.ID,
		Type:             types.TransactionTypeTopUp,
		TxStatus:         types.TransactionStatusPending,
		Amount:           req.Amount,
		BalanceBefore:    u.CreditBalance,
		BalanceAfter:     u.CreditBalance,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Description:      "wallet top-up",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.WalletRepo.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// CompleteTopUp settles a pending top-up after the gateway confirms payment.
// Settling an already-completed reference is a no-op.
func (s *walletService) CompleteTopUp(ctx context.Context, paymentReference string) (*wallet.Transaction, error) {
	var txn *wallet.Transaction
	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		pending, err := s.WalletRepo.GetTransactionByReference(ctx, paymentReference)
		if err != nil {
			return err
		}
		if pending.TxStatus == types.TransactionStatusCompleted {
			txn = pending
			return nil
		}
		if pending.TxStatus != types.TransactionStatusPending {
			return ierr.NewErrorf("top-up %s is %s, not settleable", pending.ID, pending.TxStatus).
				Mark(ierr.ErrInvalidTransition)
		}

		u, err := s.UserRepo.GetForUpdate(ctx, pending.UserID)
		if err != nil {
			return err
		}

		pending.BalanceBefore = u.CreditBalance
		u.CreditBalance += pending.Amount
		u.TotalTopUp += pending.Amount
		pending.BalanceAfter = u.CreditBalance
		if err := s.UserRepo.Update(ctx, u); err != nil {
			return err
		}

		now := time.Now().UTC()
		pending.TxStatus = types.TransactionStatusCompleted
		pending.CompletedAt = &now
		pending.UpdatedAt = now
		if err := s.WalletRepo.UpdateTransaction(ctx, pending); err != nil {
			return err
		}
		txn = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Infow("top-up settled",
		"user_id", txn.UserID, "amount", txn.Amount, "reference", paymentReference)
	return txn, nil
}

func (s *walletService) FailTopUp(ctx context.Context, paymentReference, reason string) error {
	return s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		pending, err := s.WalletRepo.GetTransactionByReference(ctx, paymentReference)
		if err != nil {
			return err
		}
		if pending.TxStatus != types.TransactionStatusPending {
			return nil
		}
		pending.TxStatus = types.TransactionStatusFailed
		pending.FailureReason = reason
		pending.UpdatedAt = time.Now().UTC()
		return s.WalletRepo.UpdateTransaction(ctx, pending)
	})
}

func (s *walletService) CheckCredit(ctx context.Context, userID string, amount int64) error {
	u, err := s.UserRepo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.CreditBalance < amount {
		return ierr.NewError("insufficient credit").
			WithHintf("Balance %d is below the required %d", u.CreditBalance, amount).
			Mark(ierr.ErrInsufficientCredit)
	}
	return nil
}

func (s *walletService) GetBalance(ctx context.Context, userID string) (int64, error) {
	u, err := s.UserRepo.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.CreditBalance, nil
}

func (s *walletService) GetStatistics(ctx context.Context, userID string) (*WalletStatistics, error) {
	u, err := s.UserRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	byType, err := s.WalletRepo.SumByType(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.WalletRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &WalletStatistics{
		Balance:          u.CreditBalance,
		TotalTopUp:       u.TotalTopUp,
		TotalSpent:       u.TotalSpent,
		TotalRefunded:    byType[types.TransactionTypeRefund],
		TransactionCount: count,
		ByType:           byType,
	}, nil
}

func (s *walletService) ListTransactions(ctx context.Context, userID string, filter types.Filter) ([]*wallet.Transaction, int64, error) {
	txns, err := s.WalletRepo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.WalletRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return txns, count, nil
}

func (s *walletService) newTransaction(userID string, txType types.TransactionType, amount, before, after int64) *wallet.Transaction {
	now := time.Now().UTC()
	return &wallet.Transaction{
		ID:            types.GenerateUUIDWithPrefix(types.UUIDPrefixTransaction),
		UserID:        userID,
		Type:          txType,
		TxStatus:      types.TransactionStatusCompleted,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CompletedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
