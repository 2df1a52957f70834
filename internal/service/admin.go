package service

import (
	"context"
	"time"

	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/domain/subscription"
	"github.com/servorahq/servora/internal/domain/user"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/proration"
	"github.com/servorahq/servora/internal/provisioner"
	"github.com/servorahq/servora/internal/types"
)

// AdminService is the operator surface: account management, platform-wide
// listings and the interventions user-facing flows refuse.
type AdminService interface {
	ListUsers(ctx context.Context, filter types.Filter) ([]*user.User, int64, error)
	GetUser(ctx context.Context, id string) (*user.User, error)
	SetUserActive(ctx context.Context, id string, active bool) (*user.User, error)

	ListSubscriptions(ctx context.Context, filter types.Filter) ([]*subscription.Subscription, error)
	ListInstances(ctx context.Context, filter types.Filter) ([]*instance.Instance, error)

	// ForceCancel terminates a subscription immediately. When processRefund
	// is set, the unused remainder of the period is credited back.
	ForceCancel(ctx context.Context, adminID, subscriptionID, reason string, processRefund bool) (*subscription.Subscription, error)
	// ChangePlan applies a plan change on a user's behalf; unlike the user
	// flow it may move to a lower tier.
	ChangePlan(ctx context.Context, adminID, subscriptionID, newPlanID string) (*SubscriptionDetail, error)
}

type adminService struct {
	ServiceParams
	wallet   WalletService
	catalog  CatalogService
	subs     SubscriptionService
	prorator *proration.Calculator
}

func NewAdminService(params ServiceParams, walletSvc WalletService, catalogSvc CatalogService, subSvc SubscriptionService) AdminService {
	return &adminService{
		ServiceParams: params,
		wallet:        walletSvc,
		catalog:       catalogSvc,
		subs:          subSvc,
		prorator:      proration.NewCalculator(),
	}
}

func (s *adminService) ListUsers(ctx context.Context, filter types.Filter) ([]*user.User, int64, error) {
	users, err := s.UserRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.UserRepo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return users, count, nil
}

func (s *adminService) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.UserRepo.Get(ctx, id)
}

func (s *adminService) SetUserActive(ctx context.Context, id string, active bool) (*user.User, error) {
	u, err := s.UserRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	if err := s.UserRepo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.Logger.Infow("user activation changed", "user_id", id, "active", active)
	return u, nil
}

func (s *adminService) ListSubscriptions(ctx context.Context, filter types.Filter) ([]*subscription.Subscription, error) {
	return s.SubRepo.ListAll(ctx, filter)
}

func (s *adminService) ListInstances(ctx context.Context, filter types.Filter) ([]*instance.Instance, error) {
	return s.InstRepo.ListAll(ctx, filter)
}

func (s *adminService) ForceCancel(ctx context.Context, adminID, subscriptionID, reason string, processRefund bool) (*subscription.Subscription, error) {
	var sub *subscription.Subscription

	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}

		switch sub.SubscriptionStatus {
		case types.SubscriptionStatusCancelled, types.SubscriptionStatusExpired:
			return ierr.NewErrorf("subscription is already %s", sub.SubscriptionStatus).
				Mark(ierr.ErrInvalidTransition)
		}

		now := time.Now().UTC()
		wasBillable := sub.IsBillable()

		// Refund what the period still covers before closing it out.
		if processRefund && sub.SubscriptionStatus == types.SubscriptionStatusActive {
			refund := s.prorator.CreditForRemainder(sub.MonthlyPrice, now, sub.EndDate)
			if refund > 0 {
				if _, err := s.wallet.Credit(ctx, CreditRequest{
					UserID:         sub.UserID,
					Amount:         refund,
					Type:           types.TransactionTypeRefund,
					SubscriptionID: sub.ID,
					Description:    "forced cancellation refund",
					ProcessedBy:    adminID,
					Metadata:       types.Metadata{"refund_type": "PRORATED"},
				}); err != nil {
					return err
				}
			}
		}

		if err := sub.Transition(types.SubscriptionStatusCancelled); err != nil {
			return err
		}
		sub.AutoRenew = false
		sub.EndDate = now
		sub.CancellationReason = reason
		sub.CancelledAt = &now
		sub.UpdatedAt = now
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		if wasBillable {
			return s.catalog.ReleaseQuota(ctx, sub.PlanID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobTerminate, SubscriptionID: subscriptionID})
	s.Logger.Infow("subscription force-cancelled",
		"subscription_id", subscriptionID, "admin_id", adminID, "reason", reason)
	return sub, nil
}

func (s *adminService) ChangePlan(ctx context.Context, adminID, subscriptionID, newPlanID string) (*SubscriptionDetail, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	detail, err := s.subs.ChangePlan(ctx, sub.UserID, subscriptionID, newPlanID)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("plan changed by administrator",
		"subscription_id", subscriptionID, "admin_id", adminID, "new_plan_id", newPlanID)
	return detail, nil
}
