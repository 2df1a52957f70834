package service

import (
	"context"
	"fmt"
	"time"

	"github.com/servorahq/servora/internal/domain/subscription"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/provisioner"
	"github.com/servorahq/servora/internal/types"
)

// BillingRunReport summarizes one driver pass for the cron surface.
type BillingRunReport struct {
	Renewed        int `json:"renewed"`
	GraceGranted   int `json:"grace_granted"`
	Suspended      int `json:"suspended"`
	Reactivated    int `json:"reactivated"`
	Expired        int `json:"expired"`
	TornDown       int `json:"torn_down"`
	LowCreditUsers int `json:"low_credit_users"`
	Errors         int `json:"errors"`
}

// BillingService is the scheduler-driven billing engine. Every job is
// idempotent: renewals are deduplicated per billing cycle, and state moves
// re-checked under the row lock, so overlapping driver runs are harmless.
type BillingService interface {
	ProcessDueRenewals(ctx context.Context, now time.Time) (*BillingRunReport, error)
	ProcessGracePeriods(ctx context.Context, now time.Time) (*BillingRunReport, error)
	ProcessSuspended(ctx context.Context, now time.Time) (*BillingRunReport, error)
	ProcessCancelledExpired(ctx context.Context, now time.Time) (*BillingRunReport, error)
	ProcessLowCreditNotifications(ctx context.Context, now time.Time) (*BillingRunReport, error)

	// RunAll executes every job in order; the scheduler tick and the cron
	// endpoint both land here.
	RunAll(ctx context.Context, now time.Time) (*BillingRunReport, error)
}

type billingService struct {
	ServiceParams
	wallet  WalletService
	catalog CatalogService
}

func NewBillingService(params ServiceParams, walletSvc WalletService, catalogSvc CatalogService) BillingService {
	return &billingService{
		ServiceParams: params,
		wallet:        walletSvc,
		catalog:       catalogSvc,
	}
}

// renewalKey deduplicates charges per subscription and billing cycle.
func renewalKey(sub *subscription.Subscription) string {
	return fmt.Sprintf("renewal:%s:%s", sub.ID, sub.NextBilling.UTC().Format(time.RFC3339))
}

func (s *billingService) ProcessDueRenewals(ctx context.Context, now time.Time) (*BillingRunReport, error) {
	report := &BillingRunReport{}

	due, err := s.SubRepo.ListDueForRenewal(ctx, now)
	if err != nil {
		return nil, err
	}

	for _, candidate := range due {
		if err := s.renewOne(ctx, candidate.ID, now, report); err != nil {
			report.Errors++
			s.Logger.Errorw("renewal failed",
				"subscription_id", candidate.ID, "error", err)
		}
	}
	return report, nil
}

func (s *billingService) renewOne(ctx context.Context, subscriptionID string, now time.Time, report *BillingRunReport) error {
	var insufficient bool
	var failedReq DebitRequest

	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		insufficient = false

		sub, err := s.SubRepo.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		// Re-check under the lock; another driver run may have renewed it.
		if sub.SubscriptionStatus != types.SubscriptionStatusActive ||
			!sub.AutoRenew || sub.NextBilling.After(now) {
			return nil
		}

		req := DebitRequest{
			UserID:         sub.UserID,
			Amount:         sub.MonthlyPrice,
			Type:           types.TransactionTypeSubscription,
			SubscriptionID: sub.ID,
			Description:    "subscription renewal",
			IdempotencyKey: renewalKey(sub),
		}
		if _, err := s.wallet.Deduct(ctx, req); err != nil {
			if ierr.IsInsufficientCredit(err) {
				// Grant the grace window but keep the subscription active.
				// The marker commits in this transaction; the ledger entry
				// is recorded outside it since this one stays open.
				if sub.GracePeriodEnd == nil {
					deadline := now.Add(s.Config.Billing.GraceDuration())
					sub.GracePeriodEnd = &deadline
					sub.UpdatedAt = now
					if err := s.SubRepo.Update(ctx, sub); err != nil {
						return err
					}
					report.GraceGranted++
				}
				insufficient = true
				failedReq = req
				return nil
			}
			return err
		}

		period := time.Duration(types.BillingCycleDays) * 24 * time.Hour
		sub.EndDate = sub.EndDate.Add(period)
		sub.NextBilling = sub.NextBilling.Add(period)
		sub.LastChargeAmount = sub.MonthlyPrice
		sub.GracePeriodEnd = nil
		sub.UpdatedAt = now
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		report.Renewed++
		return nil
	})
	if err != nil {
		return err
	}

	if insufficient {
		if _, err := s.wallet.RecordFailedCharge(ctx, failedReq, "insufficient credit"); err != nil {
			s.Logger.Warnw("failed to record declined renewal",
				"subscription_id", subscriptionID, "error", err)
		}
	}
	return nil
}

// ProcessGracePeriods suspends subscriptions whose grace window has run out.
// Suspension stops the workload and releases the quota slot.
func (s *billingService) ProcessGracePeriods(ctx context.Context, now time.Time) (*BillingRunReport, error) {
	report := &BillingRunReport{}

	inGrace, err := s.SubRepo.ListInGracePeriod(ctx)
	if err != nil {
		return nil, err
	}

	for _, candidate := range inGrace {
		suspended := false
		err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
			suspended = false

			sub, err := s.SubRepo.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.SubscriptionStatus != types.SubscriptionStatusActive ||
				sub.GracePeriodEnd == nil || now.Before(*sub.GracePeriodEnd) {
				return nil
			}

			if err := sub.Transition(types.SubscriptionStatusSuspended); err != nil {
				return err
			}
			sub.UpdatedAt = now
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
			if err := s.catalog.ReleaseQuota(ctx, sub.PlanID); err != nil {
				return err
			}
			suspended = true
			return nil
		})
		if err != nil {
			report.Errors++
			s.Logger.Errorw("grace processing failed",
				"subscription_id", candidate.ID, "error", err)
			continue
		}
		if suspended {
			report.Suspended++
			s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobStop, SubscriptionID: candidate.ID})
			s.Logger.Infow("subscription suspended",
				"subscription_id", candidate.ID, "user_id", candidate.UserID)
		}
	}
	return report, nil
}

// ProcessSuspended gives suspended subscriptions one more chance: a topped-up
// wallet reactivates them, and the rest expire once the retention window
// passes.
func (s *billingService) ProcessSuspended(ctx context.Context, now time.Time) (*BillingRunReport, error) {
	report := &BillingRunReport{}

	suspended, err := s.SubRepo.ListSuspended(ctx)
	if err != nil {
		return nil, err
	}

	for _, candidate := range suspended {
		var outcome provisioner.JobType
		err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
			outcome = ""

			sub, err := s.SubRepo.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.SubscriptionStatus != types.SubscriptionStatusSuspended {
				return nil
			}

			if err := s.wallet.CheckCredit(ctx, sub.UserID, sub.MonthlyPrice); err == nil {
				if err := s.reactivate(ctx, sub, now); err != nil {
					return err
				}
				report.Reactivated++
				outcome = provisioner.JobStart
				return nil
			}

			deadline := sub.NextBilling.Add(s.Config.Billing.GraceDuration()).Add(s.Config.Billing.ExpiryWindow())
			if sub.GracePeriodEnd != nil {
				deadline = sub.GracePeriodEnd.Add(s.Config.Billing.ExpiryWindow())
			}
			if now.Before(deadline) {
				return nil
			}

			if err := sub.Transition(types.SubscriptionStatusExpired); err != nil {
				return err
			}
			sub.UpdatedAt = now
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
			report.Expired++
			outcome = provisioner.JobTerminate
			return nil
		})
		if err != nil {
			report.Errors++
			s.Logger.Errorw("suspension processing failed",
				"subscription_id", candidate.ID, "error", err)
			continue
		}
		if outcome != "" {
			s.Queue.Enqueue(provisioner.Job{Type: outcome, SubscriptionID: candidate.ID})
		}
	}
	return report, nil
}

// reactivate charges the overdue cycle and restores the subscription; runs
// under the caller's row lock.
func (s *billingService) reactivate(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	if err := s.catalog.AllocateQuota(ctx, sub.PlanID); err != nil {
		return err
	}
	if _, err := s.wallet.Deduct(ctx, DebitRequest{
		UserID:         sub.UserID,
		Amount:         sub.MonthlyPrice,
		Type:           types.TransactionTypeSubscription,
		SubscriptionID: sub.ID,
		Description:    "subscription reactivation",
		IdempotencyKey: renewalKey(sub),
	}); err != nil {
		return err
	}

	period := time.Duration(types.BillingCycleDays) * 24 * time.Hour
	if err := sub.Transition(types.SubscriptionStatusActive); err != nil {
		return err
	}
	sub.EndDate = now.Add(period)
	sub.NextBilling = now.Add(period)
	sub.LastChargeAmount = sub.MonthlyPrice
	sub.GracePeriodEnd = nil
	sub.UpdatedAt = now
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	s.Logger.Infow("subscription reactivated",
		"subscription_id", sub.ID, "user_id", sub.UserID)
	return nil
}

// ProcessCancelledExpired tears down workloads of cancelled subscriptions
// whose paid-for period has ended.
func (s *billingService) ProcessCancelledExpired(ctx context.Context, now time.Time) (*BillingRunReport, error) {
	report := &BillingRunReport{}

	ended, err := s.SubRepo.ListCancelledExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	for _, candidate := range ended {
		expired := false
		err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
			expired = false

			sub, err := s.SubRepo.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.SubscriptionStatus != types.SubscriptionStatusCancelled || now.Before(sub.EndDate) {
				return nil
			}
			if err := sub.Transition(types.SubscriptionStatusExpired); err != nil {
				return err
			}
			sub.UpdatedAt = now
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
			expired = true
			return nil
		})
		if err != nil {
			report.Errors++
			s.Logger.Errorw("cancellation expiry failed",
				"subscription_id", candidate.ID, "error", err)
			continue
		}
		if expired {
			report.Expired++
			report.TornDown++
			s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobTerminate, SubscriptionID: candidate.ID})
		}
	}
	return report, nil
}

// ProcessLowCreditNotifications warns users whose balance cannot cover a
// renewal falling inside the lead window.
func (s *billingService) ProcessLowCreditNotifications(ctx context.Context, now time.Time) (*BillingRunReport, error) {
	report := &BillingRunReport{}

	lead := time.Duration(s.Config.Billing.LowCreditLeadDays) * 24 * time.Hour
	upcoming, err := s.SubRepo.ListActiveBillingSoon(ctx, now.Add(lead))
	if err != nil {
		return nil, err
	}

	warned := map[string]bool{}
	for _, sub := range upcoming {
		if !sub.AutoRenew || warned[sub.UserID] {
			continue
		}
		if err := s.wallet.CheckCredit(ctx, sub.UserID, sub.MonthlyPrice); err != nil {
			if !ierr.IsInsufficientCredit(err) {
				report.Errors++
				continue
			}
			warned[sub.UserID] = true
			report.LowCreditUsers++
			s.Logger.Warnw("low credit ahead of renewal",
				"user_id", sub.UserID, "subscription_id", sub.ID,
				"next_billing", sub.NextBilling, "monthly_price", sub.MonthlyPrice)
		}
	}
	return report, nil
}

func (s *billingService) RunAll(ctx context.Context, now time.Time) (*BillingRunReport, error) {
	total := &BillingRunReport{}

	jobs := []func(context.Context, time.Time) (*BillingRunReport, error){
		s.ProcessDueRenewals,
		s.ProcessGracePeriods,
		s.ProcessSuspended,
		s.ProcessCancelledExpired,
		s.ProcessLowCreditNotifications,
	}
	for _, job := range jobs {
		report, err := job(ctx, now)
		if err != nil {
			total.Errors++
			s.Logger.Errorw("billing job failed", "error", err)
			continue
		}
		total.Renewed += report.Renewed
		total.GraceGranted += report.GraceGranted
		total.Suspended += report.Suspended
		total.Reactivated += report.Reactivated
		total.Expired += report.Expired
		total.TornDown += report.TornDown
		total.LowCreditUsers += report.LowCreditUsers
		total.Errors += report.Errors
	}
	return total, nil
}
