package subscription

import (
	"time"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// Subscription ties one user to one plan of one service and produces at most
// one running instance. Prices are snapshots in integer minor units.
type Subscription struct {
	ID        string `db:"id" json:"id" gorm:"primaryKey"`
	UserID    string `db:"user_id" json:"user_id" gorm:"index:idx_subscriptions_user_service,priority:1"`
	ServiceID string `db:"service_id" json:"service_id" gorm:"index:idx_subscriptions_user_service,priority:2"`
	PlanID    string `db:"plan_id" json:"plan_id" gorm:"index"`

	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status" gorm:"index:idx_subscriptions_user_service,priority:3"`

	StartDate        time.Time  `db:"start_date" json:"start_date"`
	EndDate          time.Time  `db:"end_date" json:"end_date"`
	NextBilling      time.Time  `db:"next_billing" json:"next_billing" gorm:"index"`
	MonthlyPrice     int64      `db:"monthly_price" json:"monthly_price"`
	LastChargeAmount int64      `db:"last_charge_amount" json:"last_charge_amount"`
	AutoRenew        bool       `db:"auto_renew" json:"auto_renew"`
	GracePeriodEnd   *time.Time `db:"grace_period_end" json:"grace_period_end,omitempty"`

	PreviousPlanID string     `db:"previous_plan_id" json:"previous_plan_id,omitempty"`
	UpgradeDate    *time.Time `db:"upgrade_date" json:"upgrade_date,omitempty"`

	CancellationReason string     `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	types.BaseModel
}

func (s *Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) Validate() error {
	if s.UserID == "" || s.ServiceID == "" || s.PlanID == "" {
		return ierr.NewError("subscription references are incomplete").
			WithHint("User, service and plan are required").
			Mark(ierr.ErrValidation)
	}
	if !s.SubscriptionStatus.Validate() {
		return ierr.NewError("invalid subscription status").
			WithReportableDetails(map[string]any{"status": s.SubscriptionStatus}).
			Mark(ierr.ErrValidation)
	}
	if s.MonthlyPrice < 0 {
		return ierr.NewError("monthly price cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsBillable reports whether the subscription occupies a quota slot.
func (s *Subscription) IsBillable() bool {
	return s.SubscriptionStatus.IsBillable()
}

// InGracePeriod reports whether a failed renewal is still within its grace
// window at the given instant.
func (s *Subscription) InGracePeriod(now time.Time) bool {
	return s.GracePeriodEnd != nil && now.Before(*s.GracePeriodEnd)
}

// RemainingDays is the number of whole billing days left until EndDate,
// rounded up, never negative.
func (s *Subscription) RemainingDays(now time.Time) int {
	if !now.Before(s.EndDate) {
		return 0
	}
	d := s.EndDate.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// subscriptionTransitions enumerates the legal status transitions.
var subscriptionTransitions = map[types.SubscriptionStatus][]types.SubscriptionStatus{
	types.SubscriptionStatusPendingPayment: {
		types.SubscriptionStatusActive,
		types.SubscriptionStatusCancelled,
		types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusActive: {
		types.SubscriptionStatusPendingUpgrade,
		types.SubscriptionStatusCancelled,
		types.SubscriptionStatusSuspended,
		types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusPendingUpgrade: {
		types.SubscriptionStatusActive,
		types.SubscriptionStatusCancelled,
	},
	types.SubscriptionStatusCancelled: {
		// Re-enabling auto-renew within the paid-for period reactivates.
		types.SubscriptionStatusActive,
		types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusSuspended: {
		types.SubscriptionStatusActive,
		types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusExpired: {},
}

// CanTransition reports whether moving to the target status is legal from the
// current one.
func (s *Subscription) CanTransition(target types.SubscriptionStatus) bool {
	for _, t := range subscriptionTransitions[s.SubscriptionStatus] {
		if t == target {
			return true
		}
	}
	return false
}

// Transition moves the subscription to the target status or fails with an
// invalid-transition error.
func (s *Subscription) Transition(target types.SubscriptionStatus) error {
	if !s.CanTransition(target) {
		return ierr.NewErrorf("cannot transition subscription from %s to %s",
			s.SubscriptionStatus, target).
			WithHintf("Subscription is %s", s.SubscriptionStatus).
			WithReportableDetails(map[string]any{
				"from": s.SubscriptionStatus,
				"to":   target,
			}).
			Mark(ierr.ErrInvalidTransition)
	}
	s.SubscriptionStatus = target
	return nil
}
