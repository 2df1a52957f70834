package wallet

import (
	"time"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// Transaction is an append-only wallet ledger entry. BalanceBefore and
// BalanceAfter snapshot the user balance around the mutation so the ledger can
// be audited and replayed. Amounts are integer minor units and never negative;
// direction is carried by the type.
type Transaction struct {
	ID     string `db:"id" json:"id" gorm:"primaryKey"`
	UserID string `db:"user_id" json:"user_id" gorm:"index:idx_transactions_user_created,priority:1"`

	Type     types.TransactionType   `db:"type" json:"type"`
	TxStatus types.TransactionStatus `db:"tx_status" json:"tx_status"`

	Amount        int64 `db:"amount" json:"amount"`
	BalanceBefore int64 `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64 `db:"balance_after" json:"balance_after"`

	PaymentMethod    string `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference string `db:"payment_reference" json:"payment_reference,omitempty"`
	SubscriptionID   string `db:"subscription_id" json:"subscription_id,omitempty" gorm:"index"`

	Description string         `db:"description" json:"description"`
	Metadata    types.Metadata `db:"metadata" json:"metadata" gorm:"type:jsonb;serializer:json"`

	// IdempotencyKey deduplicates scheduler-driven charges per billing cycle.
	IdempotencyKey string `db:"idempotency_key" json:"idempotency_key,omitempty" gorm:"uniqueIndex:idx_transactions_idem,where:idempotency_key <> ''"`

	// ProcessedBy records the administrator for ADMIN_ADJUSTMENT entries.
	ProcessedBy string `db:"processed_by" json:"processed_by,omitempty"`

	FailureReason string     `db:"failure_reason" json:"failure_reason,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at" gorm:"index:idx_transactions_user_created,priority:2"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (t *Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) Validate() error {
	if t.UserID == "" {
		return ierr.NewError("transaction requires a user").
			Mark(ierr.ErrValidation)
	}
	if !t.Type.Validate() {
		return ierr.NewError("invalid transaction type").
			WithReportableDetails(map[string]any{"type": t.Type}).
			Mark(ierr.ErrValidation)
	}
	if !t.TxStatus.Validate() {
		return ierr.NewError("invalid transaction status").
			WithReportableDetails(map[string]any{"status": t.TxStatus}).
			Mark(ierr.ErrValidation)
	}
	if t.Amount < 0 {
		return ierr.NewError("transaction amount cannot be negative").
			WithHint("Amounts are unsigned, the type carries the direction").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsCompleted reports whether the entry participates in the balance chain.
func (t *Transaction) IsCompleted() bool {
	return t.TxStatus == types.TransactionStatusCompleted
}
