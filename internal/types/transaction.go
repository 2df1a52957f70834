package types

// TransactionType classifies a wallet ledger entry.
type TransactionType string

const (
	TransactionTypeTopUp           TransactionType = "TOP_UP"
	TransactionTypeSubscription    TransactionType = "SUBSCRIPTION"
	TransactionTypeUpgrade         TransactionType = "UPGRADE"
	TransactionTypeRefund          TransactionType = "REFUND"
	TransactionTypeAdminAdjustment TransactionType = "ADMIN_ADJUSTMENT"
)

func (t TransactionType) Validate() bool {
	switch t {
	case TransactionTypeTopUp, TransactionTypeSubscription, TransactionTypeUpgrade,
		TransactionTypeRefund, TransactionTypeAdminAdjustment:
		return true
	}
	return false
}

// TransactionStatus is the settlement state of a ledger entry. Only COMPLETED
// entries participate in the balance chain.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

func (s TransactionStatus) Validate() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}
