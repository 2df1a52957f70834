package service

import (
	"testing"
	"time"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/provisioner"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
)

type AdminServiceSuite struct {
	testutil.BaseServiceTestSuite
	admin   AdminService
	subs    SubscriptionService
	wallet  WalletService
	catalog CatalogService
}

func TestAdminService(t *testing.T) {
	suite.Run(t, new(AdminServiceSuite))
}

func (s *AdminServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := paramsFromSuite(&s.BaseServiceTestSuite)
	s.wallet = NewWalletService(params)
	s.catalog = NewCatalogService(params)
	coupons := NewCouponService(params, s.wallet)
	s.subs = NewSubscriptionService(params, s.wallet, s.catalog, coupons)
	s.admin = NewAdminService(params, s.wallet, s.catalog, s.subs)
}

func (s *AdminServiceSuite) TestSetUserActive() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 0)

	u, err := s.admin.SetUserActive(s.GetContext(), "user_1", false)
	s.NoError(err)
	s.False(u.Active)

	u, err = s.admin.SetUserActive(s.GetContext(), "user_1", true)
	s.NoError(err)
	s.True(u.Active)
}

func (s *AdminServiceSuite) TestForceCancelRefundsRemainder() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 3000)
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)

	created, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{UserID: "user_1", PlanID: plan.ID})
	s.Require().NoError(err)
	s.GetQueue().Clear()

	sub, err := s.admin.ForceCancel(s.GetContext(), "user_admin", created.Subscription.ID, "abuse", true)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, sub.SubscriptionStatus)
	s.False(sub.AutoRenew)
	s.Equal("abuse", sub.CancellationReason)
	// The period ends immediately.
	s.WithinDuration(time.Now().UTC(), sub.EndDate, time.Minute)

	// A freshly created subscription has its whole period left; the refund
	// is close to the full monthly price.
	balance, err := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Greater(balance, int64(2800))
	s.LessOrEqual(balance, int64(3000))

	txns, _, err := s.wallet.ListTransactions(s.GetContext(), "user_1", types.Filter{})
	s.NoError(err)
	s.Equal(types.TransactionTypeRefund, txns[0].Type)
	s.Equal("user_admin", txns[0].ProcessedBy)
	s.Equal("PRORATED", txns[0].Metadata["refund_type"])

	updated, err := s.catalog.GetPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(0, updated.UsedQuota)

	terms := s.GetQueue().JobsOfType(provisioner.JobTerminate)
	s.Len(terms, 1)
	s.Equal(created.Subscription.ID, terms[0].SubscriptionID)
}

func (s *AdminServiceSuite) TestForceCancelRejectsTerminalStates() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 3000)
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)

	created, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{UserID: "user_1", PlanID: plan.ID})
	s.Require().NoError(err)
	s.Require().NoError(s.subs.Cancel(s.GetContext(), "user_1", created.Subscription.ID, ""))

	_, err = s.admin.ForceCancel(s.GetContext(), "user_admin", created.Subscription.ID, "", true)
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))
}

func (s *AdminServiceSuite) TestForceCancelCanSkipRefund() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 3000)
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)

	created, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{UserID: "user_1", PlanID: plan.ID})
	s.Require().NoError(err)
	s.GetQueue().Clear()

	sub, err := s.admin.ForceCancel(s.GetContext(), "user_admin", created.Subscription.ID, "chargeback", false)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, sub.SubscriptionStatus)

	// The subscription charge stands; nothing is credited back.
	balance, err := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(0), balance)

	txns, _, err := s.wallet.ListTransactions(s.GetContext(), "user_1", types.Filter{})
	s.NoError(err)
	for _, txn := range txns {
		s.NotEqual(types.TransactionTypeRefund, txn.Type)
	}

	s.Len(s.GetQueue().JobsOfType(provisioner.JobTerminate), 1)
}

func (s *AdminServiceSuite) TestChangePlanActsOnBehalfOfOwner() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 20000)
	svc, _ := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)
	pro := seedPlan(&s.BaseServiceTestSuite, svc.ID, "plan_pro", types.PlanTypePro, 6000, 5)
	basic, err := s.catalog.ListPlansByService(s.GetContext(), svc.ID)
	s.Require().NoError(err)

	created, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{UserID: "user_1", PlanID: pro.ID})
	s.Require().NoError(err)

	// Downgrade, which the user-facing flow refuses.
	detail, err := s.admin.ChangePlan(s.GetContext(), "user_admin", created.Subscription.ID, basic[0].ID)
	s.NoError(err)
	s.Equal(basic[0].ID, detail.Subscription.PlanID)
}

func (s *AdminServiceSuite) TestListUsersCounts() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 0)
	seedUser(&s.BaseServiceTestSuite, "user_2", 0)

	users, total, err := s.admin.ListUsers(s.GetContext(), types.Filter{})
	s.NoError(err)
	s.Equal(int64(2), total)
	s.Len(users, 2)
}
