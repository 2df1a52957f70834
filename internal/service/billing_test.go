package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/servorahq/servora/internal/domain/subscription"
	"github.com/servorahq/servora/internal/provisioner"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
)

type BillingServiceSuite struct {
	testutil.BaseServiceTestSuite
	billing BillingService
	subs    SubscriptionService
	wallet  WalletService
	catalog CatalogService
}

func TestBillingService(t *testing.T) {
	suite.Run(t, new(BillingServiceSuite))
}

func (s *BillingServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := paramsFromSuite(&s.BaseServiceTestSuite)
	s.wallet = NewWalletService(params)
	s.catalog = NewCatalogService(params)
	coupons := NewCouponService(params, s.wallet)
	s.subs = NewSubscriptionService(params, s.wallet, s.catalog, coupons)
	s.billing = NewBillingService(params, s.wallet, s.catalog)
}

// activeSubscription creates a funded subscription and rewinds its billing
// dates so the next renewal is already due.
func (s *BillingServiceSuite) activeSubscription(userID string, price, balance int64, autoRenew bool) *subscription.Subscription {
	seedUser(&s.BaseServiceTestSuite, userID, balance+price)
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "pg-"+userID, price, 5)

	detail, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{
		UserID:    userID,
		PlanID:    plan.ID,
		AutoRenew: lo.ToPtr(autoRenew),
	})
	s.Require().NoError(err)
	s.GetQueue().Clear()

	sub := detail.Subscription
	sub.NextBilling = time.Now().UTC().Add(-time.Hour)
	sub.EndDate = sub.NextBilling
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))
	return sub
}

func (s *BillingServiceSuite) TestRenewalChargesAndExtends() {
	sub := s.activeSubscription("user_1", 3000, 3000, true)
	now := time.Now().UTC()

	report, err := s.billing.ProcessDueRenewals(s.GetContext(), now)
	s.NoError(err)
	s.Equal(1, report.Renewed)
	s.Equal(0, report.Errors)

	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.True(renewed.NextBilling.After(now))
	s.True(renewed.EndDate.After(now))
	s.Equal(int64(3000), renewed.LastChargeAmount)
	s.Nil(renewed.GracePeriodEnd)

	balance, err := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(0), balance)

	// Nothing is due anymore; a second run is a no-op.
	report, err = s.billing.ProcessDueRenewals(s.GetContext(), now)
	s.NoError(err)
	s.Equal(0, report.Renewed)
}

func (s *BillingServiceSuite) TestRenewalChargeIsIdempotentPerCycle() {
	sub := s.activeSubscription("user_1", 3000, 6000, true)
	due := sub.NextBilling

	_, err := s.billing.ProcessDueRenewals(s.GetContext(), time.Now().UTC())
	s.NoError(err)
	balanceAfterFirst, err := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)

	// Simulate a crashed run that committed the charge but not the date
	// advance: rewinding the dates to the same cycle must not charge again.
	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	renewed.NextBilling = due
	renewed.EndDate = due
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), renewed))

	_, err = s.billing.ProcessDueRenewals(s.GetContext(), time.Now().UTC())
	s.NoError(err)

	balanceAfterSecond, err := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(balanceAfterFirst, balanceAfterSecond)
}

func (s *BillingServiceSuite) TestFailedRenewalGrantsGraceOnce() {
	sub := s.activeSubscription("user_1", 3000, 0, true)
	now := time.Now().UTC()

	report, err := s.billing.ProcessDueRenewals(s.GetContext(), now)
	s.NoError(err)
	s.Equal(0, report.Renewed)
	s.Equal(1, report.GraceGranted)

	inGrace, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, inGrace.SubscriptionStatus)
	s.Require().NotNil(inGrace.GracePeriodEnd)
	s.True(inGrace.GracePeriodEnd.After(now))

	// The declined charge lands as a FAILED ledger entry.
	failed, err := s.GetStores().WalletRepo.GetTransactionByIdempotencyKey(
		s.GetContext(), "renewal:"+sub.ID+":"+sub.NextBilling.UTC().Format(time.RFC3339))
	s.NoError(err)
	s.Equal(types.TransactionStatusFailed, failed.TxStatus)

	// A second pass neither extends the grace window nor duplicates the row.
	report, err = s.billing.ProcessDueRenewals(s.GetContext(), now)
	s.NoError(err)
	s.Equal(0, report.GraceGranted)
	s.Equal(0, report.Errors)
}

func (s *BillingServiceSuite) TestExpiredGraceSuspends() {
	sub := s.activeSubscription("user_1", 3000, 0, true)
	now := time.Now().UTC()

	deadline := now.Add(-time.Minute)
	sub.GracePeriodEnd = &deadline
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	report, err := s.billing.ProcessGracePeriods(s.GetContext(), now)
	s.NoError(err)
	s.Equal(1, report.Suspended)

	suspended, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusSuspended, suspended.SubscriptionStatus)

	plan, err := s.catalog.GetPlan(s.GetContext(), sub.PlanID)
	s.NoError(err)
	s.Equal(0, plan.UsedQuota)

	stops := s.GetQueue().JobsOfType(provisioner.JobStop)
	s.Len(stops, 1)
	s.Equal(sub.ID, stops[0].SubscriptionID)
}

func (s *BillingServiceSuite) TestSuspendedReactivatesWhenFunded() {
	sub := s.activeSubscription("user_1", 3000, 0, true)
	now := time.Now().UTC()

	deadline := now.Add(-time.Minute)
	sub.GracePeriodEnd = &deadline
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))
	_, err := s.billing.ProcessGracePeriods(s.GetContext(), now)
	s.Require().NoError(err)
	s.GetQueue().Clear()

	_, err = s.wallet.Credit(s.GetContext(), CreditRequest{
		UserID: "user_1", Amount: 5000, Type: types.TransactionTypeTopUp,
	})
	s.Require().NoError(err)

	report, err := s.billing.ProcessSuspended(s.GetContext(), now)
	s.NoError(err)
	s.Equal(1, report.Reactivated)
	s.Equal(0, report.Expired)

	active, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, active.SubscriptionStatus)
	s.True(active.NextBilling.After(now))
	s.Nil(active.GracePeriodEnd)

	balance, err := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(2000), balance)

	plan, err := s.catalog.GetPlan(s.GetContext(), sub.PlanID)
	s.NoError(err)
	s.Equal(1, plan.UsedQuota)

	s.Len(s.GetQueue().JobsOfType(provisioner.JobStart), 1)
}

func (s *BillingServiceSuite) TestSuspendedExpiresAfterRetentionWindow() {
	sub := s.activeSubscription("user_1", 3000, 0, true)
	now := time.Now().UTC()

	// Grace ended long enough ago that the retention window has passed too.
	deadline := now.Add(-s.GetConfig().Billing.ExpiryWindow()).Add(-time.Hour)
	sub.GracePeriodEnd = &deadline
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))
	_, err := s.billing.ProcessGracePeriods(s.GetContext(), now)
	s.Require().NoError(err)
	s.GetQueue().Clear()

	report, err := s.billing.ProcessSuspended(s.GetContext(), now)
	s.NoError(err)
	s.Equal(1, report.Expired)
	s.Equal(0, report.Reactivated)

	expired, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusExpired, expired.SubscriptionStatus)

	s.Len(s.GetQueue().JobsOfType(provisioner.JobTerminate), 1)
}

func (s *BillingServiceSuite) TestSuspendedKeptInsideRetentionWindow() {
	sub := s.activeSubscription("user_1", 3000, 0, true)
	now := time.Now().UTC()

	deadline := now.Add(-time.Minute)
	sub.GracePeriodEnd = &deadline
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))
	_, err := s.billing.ProcessGracePeriods(s.GetContext(), now)
	s.Require().NoError(err)

	report, err := s.billing.ProcessSuspended(s.GetContext(), now)
	s.NoError(err)
	s.Equal(0, report.Expired)
	s.Equal(0, report.Reactivated)

	kept, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusSuspended, kept.SubscriptionStatus)
}

func (s *BillingServiceSuite) TestCancelledSubscriptionTornDownAfterPeriod() {
	sub := s.activeSubscription("user_1", 3000, 3000, false)
	now := time.Now().UTC()

	s.Require().NoError(s.subs.Cancel(s.GetContext(), "user_1", sub.ID, "done"))
	s.GetQueue().Clear()

	report, err := s.billing.ProcessCancelledExpired(s.GetContext(), now)
	s.NoError(err)
	s.Equal(1, report.Expired)
	s.Equal(1, report.TornDown)

	expired, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusExpired, expired.SubscriptionStatus)

	terms := s.GetQueue().JobsOfType(provisioner.JobTerminate)
	s.Len(terms, 1)
	s.Equal(sub.ID, terms[0].SubscriptionID)
}

func (s *BillingServiceSuite) TestCancelledSubscriptionKeptUntilPeriodEnd() {
	sub := s.activeSubscription("user_1", 3000, 3000, false)
	now := time.Now().UTC()

	// Push the paid-for period back into the future before cancelling.
	sub.EndDate = now.Add(10 * 24 * time.Hour)
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))
	s.Require().NoError(s.subs.Cancel(s.GetContext(), "user_1", sub.ID, ""))
	s.GetQueue().Clear()

	report, err := s.billing.ProcessCancelledExpired(s.GetContext(), now)
	s.NoError(err)
	s.Equal(0, report.Expired)
	s.Empty(s.GetQueue().Jobs())
}

func (s *BillingServiceSuite) TestLowCreditWarningsDedupePerUser() {
	now := time.Now().UTC()
	seedUser(&s.BaseServiceTestSuite, "user_1", 12000)
	_, pgPlan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)
	_, redisPlan := seedCatalog(&s.BaseServiceTestSuite, "redis", 3000, 5)

	first, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{
		UserID: "user_1", PlanID: pgPlan.ID, AutoRenew: lo.ToPtr(true),
	})
	s.Require().NoError(err)
	second, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{
		UserID: "user_1", PlanID: redisPlan.ID, AutoRenew: lo.ToPtr(true),
	})
	s.Require().NoError(err)

	// Both renewals fall inside the lead window while the remaining balance
	// covers neither.
	for _, sub := range []*subscription.Subscription{first.Subscription, second.Subscription} {
		sub.NextBilling = now.Add(24 * time.Hour)
		s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))
	}
	_, err = s.wallet.Deduct(s.GetContext(), DebitRequest{
		UserID: "user_1", Amount: 5500, Type: types.TransactionTypeSubscription,
	})
	s.Require().NoError(err)

	report, err := s.billing.ProcessLowCreditNotifications(s.GetContext(), now)
	s.NoError(err)
	s.Equal(1, report.LowCreditUsers)
}

func (s *BillingServiceSuite) TestRunAllAggregates() {
	s.activeSubscription("user_1", 3000, 3000, true)

	report, err := s.billing.RunAll(s.GetContext(), time.Now().UTC())
	s.NoError(err)
	s.Equal(1, report.Renewed)
	s.Equal(0, report.Errors)
}
