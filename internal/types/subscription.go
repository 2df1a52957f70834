package types

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPendingPayment SubscriptionStatus = "PENDING_PAYMENT"
	SubscriptionStatusActive         SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPendingUpgrade SubscriptionStatus = "PENDING_UPGRADE"
	SubscriptionStatusCancelled      SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired        SubscriptionStatus = "EXPIRED"
	SubscriptionStatusSuspended      SubscriptionStatus = "SUSPENDED"
)

// BillableSubscriptionStatuses are the statuses that count against plan quota
// and the per-service exclusivity rule.
var BillableSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPendingUpgrade,
	SubscriptionStatusPendingPayment,
}

func (s SubscriptionStatus) Validate() bool {
	switch s {
	case SubscriptionStatusPendingPayment, SubscriptionStatusActive,
		SubscriptionStatusPendingUpgrade, SubscriptionStatusCancelled,
		SubscriptionStatusExpired, SubscriptionStatusSuspended:
		return true
	}
	return false
}

// IsBillable reports whether the status occupies a quota slot.
func (s SubscriptionStatus) IsBillable() bool {
	for _, b := range BillableSubscriptionStatuses {
		if s == b {
			return true
		}
	}
	return false
}

// BillingCycleDays is the length of one billing period.
const BillingCycleDays = 30
