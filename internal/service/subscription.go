package service

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/domain/subscription"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/kube"
	"github.com/servorahq/servora/internal/proration"
	"github.com/servorahq/servora/internal/provisioner"
	"github.com/servorahq/servora/internal/types"
)

// CreateSubscriptionRequest opens a subscription on a plan. Name is the
// user-facing instance name; empty derives one from the service slug.
type CreateSubscriptionRequest struct {
	UserID     string
	PlanID     string
	Name       string
	CouponCode string
	// AutoRenew left nil defaults to on; new subscriptions renew unless the
	// caller opts out.
	AutoRenew *bool
	// EnvOverrides are optional instance environment values overlaid on the
	// service template.
	EnvOverrides types.Metadata
}

// SubscriptionDetail bundles a subscription with its workload for read
// surfaces.
type SubscriptionDetail struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Instance     *instance.Instance         `json:"instance,omitempty"`
	Service      *catalog.Service           `json:"service,omitempty"`
	Plan         *catalog.Plan              `json:"plan,omitempty"`
}

// BillingInfo is the renewal outlook for one subscription: when the next
// charge lands, for how much, and whether the current balance covers it.
type BillingInfo struct {
	SubscriptionID string     `json:"subscription_id"`
	NextBilling    time.Time  `json:"next_billing"`
	NextAmount     int64      `json:"next_amount"`
	DaysRemaining  int        `json:"days_remaining"`
	AutoRenew      bool       `json:"auto_renew"`
	InGracePeriod  bool       `json:"in_grace_period"`
	GracePeriodEnd *time.Time `json:"grace_period_end,omitempty"`
	Balance        int64      `json:"balance"`
	BalanceCovers  bool       `json:"balance_covers_renewal"`
}

// SubscriptionService owns the subscription lifecycle: purchase, plan
// changes, cancellation and the user-facing instance controls. Money, quota
// and state move in one serializable transaction; cluster work is enqueued
// after commit.
type SubscriptionService interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionDetail, error)
	Upgrade(ctx context.Context, userID, subscriptionID, newPlanID string) (*SubscriptionDetail, error)
	// ChangePlan is the administrator form of Upgrade: it may move to a
	// lower tier.
	ChangePlan(ctx context.Context, userID, subscriptionID, newPlanID string) (*SubscriptionDetail, error)
	Cancel(ctx context.Context, userID, subscriptionID, reason string) error
	ToggleAutoRenew(ctx context.Context, userID, subscriptionID string, autoRenew bool) (*subscription.Subscription, error)
	RetryProvisioning(ctx context.Context, userID, subscriptionID string) error

	Get(ctx context.Context, userID, subscriptionID string) (*SubscriptionDetail, error)
	ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*SubscriptionDetail, error)
	GetBillingInfo(ctx context.Context, userID, subscriptionID string) (*BillingInfo, error)

	StopInstance(ctx context.Context, userID, subscriptionID string) error
	StartInstance(ctx context.Context, userID, subscriptionID string) error
	RestartInstance(ctx context.Context, userID, subscriptionID string) error
}

type subscriptionService struct {
	ServiceParams
	wallet   WalletService
	catalog  CatalogService
	coupons  CouponService
	prorator *proration.Calculator
}

func NewSubscriptionService(params ServiceParams, walletSvc WalletService, catalogSvc CatalogService, couponSvc CouponService) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		wallet:        walletSvc,
		catalog:       catalogSvc,
		coupons:       couponSvc,
		prorator:      proration.NewCalculator(),
	}
}

func (s *subscriptionService) Create(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionDetail, error) {
	plan, err := s.CatalogRepo.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	svc, err := s.CatalogRepo.GetService(ctx, plan.ServiceID)
	if err != nil {
		return nil, err
	}

	var sub *subscription.Subscription
	var inst *instance.Instance

	err = s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		// One billable subscription per user and service.
		existing, err := s.SubRepo.CountBillable(ctx, req.UserID, svc.ID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return ierr.NewError("duplicate subscription").
				WithHintf("You already have an active subscription to %s", svc.Name).
				WithReportableDetails(map[string]any{"service_id": svc.ID}).
				Mark(ierr.ErrAlreadyExists)
		}

		if err := s.catalog.AllocateQuota(ctx, plan.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		subID := types.GenerateUUIDWithPrefix(types.UUIDPrefixSubscription)

		charge := plan.MonthlyPrice
		if req.CouponCode != "" {
			discount, err := s.coupons.RedeemForSubscription(ctx, req.CouponCode, req.UserID, subID, svc.ID, plan.MonthlyPrice)
			if err != nil {
				return err
			}
			charge -= discount
		}

		if _, err := s.wallet.Deduct(ctx, DebitRequest{
			UserID:         req.UserID,
			Amount:         charge,
			Type:           types.TransactionTypeSubscription,
			SubscriptionID: subID,
			Description:    fmt.Sprintf("%s %s subscription", svc.Name, plan.Name),
		}); err != nil {
			return err
		}

		autoRenew := true
		if req.AutoRenew != nil {
			autoRenew = *req.AutoRenew
		}

		period := time.Duration(types.BillingCycleDays) * 24 * time.Hour
		sub = &subscription.Subscription{
			ID:                 subID,
			UserID:             req.UserID,
			ServiceID:          svc.ID,
			PlanID:             plan.ID,
			SubscriptionStatus: types.SubscriptionStatusActive,
			StartDate:          now,
			EndDate:            now.Add(period),
			NextBilling:        now.Add(period),
			MonthlyPrice:       plan.MonthlyPrice,
			LastChargeAmount:   charge,
			AutoRenew:          autoRenew,
			BaseModel:          types.GetDefaultBaseModel(),
		}
		if err := sub.Validate(); err != nil {
			return err
		}
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}

		inst = s.newInstance(sub, svc, req, now)
		return s.InstRepo.Create(ctx, inst)
	})
	if err != nil {
		return nil, err
	}

	s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobProvision, SubscriptionID: sub.ID})
	s.Logger.Infow("subscription created",
		"subscription_id", sub.ID, "user_id", sub.UserID, "plan_id", plan.ID,
		"charge", sub.LastChargeAmount)

	return &SubscriptionDetail{Subscription: sub, Instance: inst, Service: svc, Plan: plan}, nil
}

func (s *subscriptionService) newInstance(sub *subscription.Subscription, svc *catalog.Service, req CreateSubscriptionRequest, now time.Time) *instance.Instance {
	name := req.Name
	if name == "" {
		name = svc.Slug + "-" + types.GenerateShortID()
	}
	name = kube.SanitizeName(name)

	names := kube.NamesFor(sub.UserID, name)
	subdomain := kube.BuildSubdomain(svc.Slug, sub.UserID, now) + "." + s.Config.Kubernetes.Zone
	sslEnabled := s.Config.Kubernetes.ClusterIssuer != ""

	scheme := "http"
	if sslEnabled {
		scheme = "https"
	}

	return &instance.Instance{
		ID:             types.GenerateUUIDWithPrefix(types.UUIDPrefixInstance),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		ServiceID:      svc.ID,
		InstanceStatus: types.InstanceStatusPending,
		Name:           name,
		Namespace:      names.Namespace,
		DeploymentName: names.Deployment,
		ServiceName:    names.Service,
		IngressName:    names.Ingress,
		ConfigMapName:  names.ConfigMap,
		PVCName:        names.PVC,
		Subdomain:      subdomain,
		PublicURL:      fmt.Sprintf("%s://%s", scheme, subdomain),
		SSLEnabled:     sslEnabled,
		EnvOverrides:   req.EnvOverrides,
		BaseModel:      types.GetDefaultBaseModel(),
	}
}

// Upgrade moves an active subscription to a higher tier of the same service.
// The price difference is prorated over the days left in the period and
// charged immediately; the workload is re-provisioned after commit.
func (s *subscriptionService) Upgrade(ctx context.Context, userID, subscriptionID, newPlanID string) (*SubscriptionDetail, error) {
	detail, err := s.upgrade(ctx, userID, subscriptionID, newPlanID, false)
	if err != nil {
		return nil, err
	}
	s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobUpdate, SubscriptionID: subscriptionID})
	return detail, nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, userID, subscriptionID, newPlanID string) (*SubscriptionDetail, error) {
	detail, err := s.upgrade(ctx, userID, subscriptionID, newPlanID, true)
	if err != nil {
		return nil, err
	}
	s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobUpdate, SubscriptionID: subscriptionID})
	return detail, nil
}

func (s *subscriptionService) upgrade(ctx context.Context, userID, subscriptionID, newPlanID string, allowDowngrade bool) (*SubscriptionDetail, error) {
	var detail *SubscriptionDetail

	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubRepo.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if err := s.requireOwner(sub, userID); err != nil {
			return err
		}
		if sub.SubscriptionStatus != types.SubscriptionStatusActive {
			return ierr.NewErrorf("subscription is %s, only active subscriptions change plans",
				sub.SubscriptionStatus).
				Mark(ierr.ErrInvalidTransition)
		}
		if sub.PlanID == newPlanID {
			return ierr.NewError("subscription already uses this plan").
				Mark(ierr.ErrValidation)
		}

		oldPlan, err := s.CatalogRepo.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		newPlan, err := s.CatalogRepo.GetPlan(ctx, newPlanID)
		if err != nil {
			return err
		}
		if newPlan.ServiceID != sub.ServiceID {
			return ierr.NewError("target plan belongs to a different service").
				Mark(ierr.ErrValidation)
		}
		if !allowDowngrade && newPlan.PlanType.Compare(oldPlan.PlanType) <= 0 {
			return ierr.NewError("target plan is not an upgrade").
				WithHint("Plan changes must move to a higher tier").
				WithReportableDetails(map[string]any{
					"current_tier": oldPlan.PlanType,
					"target_tier":  newPlan.PlanType,
				}).
				Mark(ierr.ErrValidation)
		}

		// Claim the new slot before releasing the old one so a full plan
		// rejects the change instead of stranding the subscription.
		if err := s.catalog.AllocateQuota(ctx, newPlan.ID); err != nil {
			return err
		}
		if err := s.catalog.ReleaseQuota(ctx, oldPlan.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		pro, err := s.prorator.Calculate(proration.Params{
			OldMonthlyPrice: sub.MonthlyPrice,
			NewMonthlyPrice: newPlan.MonthlyPrice,
			PeriodEnd:       sub.EndDate,
			ChangeDate:      now,
		})
		if err != nil {
			return err
		}

		// A zero net difference still appends a ledger entry so every plan
		// change leaves an audit trail.
		desc := fmt.Sprintf("plan change %s to %s", oldPlan.Name, newPlan.Name)
		if pro.NetAmount >= 0 {
			if _, err := s.wallet.Deduct(ctx, DebitRequest{
				UserID:         sub.UserID,
				Amount:         pro.NetAmount,
				Type:           types.TransactionTypeUpgrade,
				SubscriptionID: sub.ID,
				Description:    desc,
			}); err != nil {
				return err
			}
		} else {
			if _, err := s.wallet.Credit(ctx, CreditRequest{
				UserID:         sub.UserID,
				Amount:         -pro.NetAmount,
				Type:           types.TransactionTypeRefund,
				SubscriptionID: sub.ID,
				Description:    desc,
			}); err != nil {
				return err
			}
		}

		sub.PreviousPlanID = sub.PlanID
		sub.PlanID = newPlan.ID
		sub.MonthlyPrice = newPlan.MonthlyPrice
		sub.LastChargeAmount = pro.NetAmount
		sub.UpgradeDate = &now
		sub.UpdatedAt = now
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		inst, err := s.InstRepo.GetBySubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
		detail = &SubscriptionDetail{Subscription: sub, Instance: inst, Plan: newPlan}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription plan changed",
		"subscription_id", subscriptionID, "new_plan_id", newPlanID,
		"net_amount", detail.Subscription.LastChargeAmount)
	return detail, nil
}

// Cancel turns off renewal, releases the quota slot and schedules the
// workload teardown. The subscription record stays until the billing driver
// expires it at period end.
func (s *subscriptionService) Cancel(ctx context.Context, userID, subscriptionID, reason string) error {
	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubRepo.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if err := s.requireOwner(sub, userID); err != nil {
			return err
		}
		wasBillable := sub.IsBillable()
		if err := sub.Transition(types.SubscriptionStatusCancelled); err != nil {
			return err
		}

		now := time.Now().UTC()
		sub.AutoRenew = false
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
		return err
	}
	s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobTerminate, SubscriptionID: subscriptionID})
	s.Logger.Infow("subscription cancelled",
		"subscription_id", subscriptionID, "user_id", userID, "reason", reason)
	return nil
}

// ToggleAutoRenew flips renewal. Re-enabling renewal on a cancelled
// subscription whose period has not ended reactivates it, re-claiming a quota
// slot. Cancellation tears the workload down, so reactivation re-provisions
// it.
func (s *subscriptionService) ToggleAutoRenew(ctx context.Context, userID, subscriptionID string, autoRenew bool) (*subscription.Subscription, error) {
	var sub *subscription.Subscription
	var reactivated bool
	err := s.DB.WithRetryableTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if err := s.requireOwner(sub, userID); err != nil {
			return err
		}

		now := time.Now().UTC()
		if autoRenew && sub.SubscriptionStatus == types.SubscriptionStatusCancelled {
			if !now.Before(sub.EndDate) {
				return ierr.NewError("subscription period has already ended").
					WithHint("Create a new subscription instead").
					Mark(ierr.ErrInvalidTransition)
			}
			if err := s.catalog.AllocateQuota(ctx, sub.PlanID); err != nil {
				return err
			}
			if err := sub.Transition(types.SubscriptionStatusActive); err != nil {
				return err
			}
			sub.CancellationReason = ""
			sub.CancelledAt = nil
			if err := s.resetInstanceForProvision(ctx, sub.ID); err != nil {
				return err
			}
			reactivated = true
		} else if sub.SubscriptionStatus != types.SubscriptionStatusActive {
			return ierr.NewErrorf("subscription is %s, renewal cannot change",
				sub.SubscriptionStatus).
				Mark(ierr.ErrInvalidTransition)
		}

		sub.AutoRenew = autoRenew
		sub.UpdatedAt = now
		return s.SubRepo.Update(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	if reactivated {
		s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobProvision, SubscriptionID: subscriptionID})
	}
	return sub, nil
}

// resetInstanceForProvision moves a torn-down or errored instance back to
// PENDING so the next provision run rebuilds it. A live instance is left
// alone; provisioning a running workload is a no-op anyway.
func (s *subscriptionService) resetInstanceForProvision(ctx context.Context, subscriptionID string) error {
	inst, err := s.InstRepo.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	switch inst.InstanceStatus {
	case types.InstanceStatusError, types.InstanceStatusTerminated:
		if err := inst.Transition(types.InstanceStatusPending); err != nil {
			return err
		}
		inst.HealthStatus = ""
		return s.InstRepo.Update(ctx, inst)
	}
	return nil
}

// RetryProvisioning re-runs provisioning for an errored or torn-down
// instance.
func (s *subscriptionService) RetryProvisioning(ctx context.Context, userID, subscriptionID string) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(sub, userID); err != nil {
		return err
	}
	inst, err := s.InstRepo.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if inst.InstanceStatus != types.InstanceStatusError && inst.InstanceStatus != types.InstanceStatusTerminated {
		return ierr.NewErrorf("instance is %s, only errored or terminated instances retry",
			inst.InstanceStatus).
			Mark(ierr.ErrInvalidTransition)
	}
	if err := inst.Transition(types.InstanceStatusPending); err != nil {
		return err
	}
	inst.HealthStatus = ""
	if err := s.InstRepo.Update(ctx, inst); err != nil {
		return err
	}
	s.Queue.Enqueue(provisioner.Job{Type: provisioner.JobProvision, SubscriptionID: subscriptionID})
	return nil
}

func (s *subscriptionService) Get(ctx context.Context, userID, subscriptionID string) (*SubscriptionDetail, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(sub, userID); err != nil {
		return nil, err
	}
	return s.detail(ctx, sub), nil
}

func (s *subscriptionService) ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*SubscriptionDetail, error) {
	subs, err := s.SubRepo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	return lo.Map(subs, func(sub *subscription.Subscription, _ int) *SubscriptionDetail {
		return s.detail(ctx, sub)
	}), nil
}

func (s *subscriptionService) GetBillingInfo(ctx context.Context, userID, subscriptionID string) (*BillingInfo, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(sub, userID); err != nil {
		return nil, err
	}
	balance, err := s.wallet.GetBalance(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &BillingInfo{
		SubscriptionID: sub.ID,
		NextBilling:    sub.NextBilling,
		NextAmount:     sub.MonthlyPrice,
		DaysRemaining:  sub.RemainingDays(now),
		AutoRenew:      sub.AutoRenew,
		InGracePeriod:  sub.InGracePeriod(now),
		GracePeriodEnd: sub.GracePeriodEnd,
		Balance:        balance,
		BalanceCovers:  balance >= sub.MonthlyPrice,
	}, nil
}

// detail resolves the related records best-effort; a missing instance leaves
// the field empty rather than failing the read.
func (s *subscriptionService) detail(ctx context.Context, sub *subscription.Subscription) *SubscriptionDetail {
	d := &SubscriptionDetail{Subscription: sub}
	if inst, err := s.InstRepo.GetBySubscription(ctx, sub.ID); err == nil {
		d.Instance = inst
	}
	if svc, err := s.catalog.GetService(ctx, sub.ServiceID); err == nil {
		d.Service = svc
	}
	if plan, err := s.CatalogRepo.GetPlan(ctx, sub.PlanID); err == nil {
		d.Plan = plan
	}
	return d
}

func (s *subscriptionService) StopInstance(ctx context.Context, userID, subscriptionID string) error {
	return s.enqueueInstanceOp(ctx, userID, subscriptionID, provisioner.JobStop)
}

func (s *subscriptionService) StartInstance(ctx context.Context, userID, subscriptionID string) error {
	return s.enqueueInstanceOp(ctx, userID, subscriptionID, provisioner.JobStart)
}

func (s *subscriptionService) RestartInstance(ctx context.Context, userID, subscriptionID string) error {
	return s.enqueueInstanceOp(ctx, userID, subscriptionID, provisioner.JobRestart)
}

func (s *subscriptionService) enqueueInstanceOp(ctx context.Context, userID, subscriptionID string, op provisioner.JobType) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(sub, userID); err != nil {
		return err
	}
	if sub.SubscriptionStatus != types.SubscriptionStatusActive {
		return ierr.NewErrorf("subscription is %s, instance controls need an active subscription",
			sub.SubscriptionStatus).
			Mark(ierr.ErrInvalidTransition)
	}
	if !s.Queue.Enqueue(provisioner.Job{Type: op, SubscriptionID: subscriptionID}) {
		return ierr.NewError("instance operation queue is full").
			WithHint("Try again shortly").
			Mark(ierr.ErrOrchestratorTransient)
	}
	return nil
}

func (s *subscriptionService) requireOwner(sub *subscription.Subscription, userID string) error {
	if sub.UserID != userID {
		return ierr.NewError("subscription belongs to another account").
			Mark(ierr.ErrPermissionDenied)
	}
	return nil
}
