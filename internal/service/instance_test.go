package service

import (
	"bytes"
	"testing"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
)

type InstanceServiceSuite struct {
	testutil.BaseServiceTestSuite
	instances InstanceService
	subs      SubscriptionService
}

func TestInstanceService(t *testing.T) {
	suite.Run(t, new(InstanceServiceSuite))
}

func (s *InstanceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := paramsFromSuite(&s.BaseServiceTestSuite)
	wallet := NewWalletService(params)
	catalog := NewCatalogService(params)
	coupons := NewCouponService(params, wallet)
	s.subs = NewSubscriptionService(params, wallet, catalog, coupons)
	s.instances = NewInstanceService(params)
}

// runningInstance creates a subscription and forces its instance RUNNING, as
// the provisioner would after a successful rollout.
func (s *InstanceServiceSuite) runningInstance(userID string) string {
	seedUser(&s.BaseServiceTestSuite, userID, 5000)
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)

	created, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{UserID: userID, PlanID: plan.ID})
	s.Require().NoError(err)

	inst := created.Instance
	inst.InstanceStatus = types.InstanceStatusRunning
	inst.PodName = "db-5f6d8-xk2pq"
	s.Require().NoError(s.GetStores().InstRepo.Update(s.GetContext(), inst))
	return inst.ID
}

func (s *InstanceServiceSuite) TestGetEnforcesOwnership() {
	instID := s.runningInstance("user_1")
	seedUser(&s.BaseServiceTestSuite, "user_2", 0)

	inst, err := s.instances.Get(s.GetContext(), "user_1", instID)
	s.NoError(err)
	s.Equal(instID, inst.ID)

	_, err = s.instances.Get(s.GetContext(), "user_2", instID)
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))
}

func (s *InstanceServiceSuite) TestStreamLogsUsesServiceContainer() {
	instID := s.runningInstance("user_1")
	s.GetKube().Logs = "ready to accept connections\n"

	var sink bytes.Buffer
	s.NoError(s.instances.StreamLogs(s.GetContext(), "user_1", instID, &sink))
	s.Equal("ready to accept connections\n", sink.String())
}

func (s *InstanceServiceSuite) TestStreamLogsRequiresRunningInstance() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 5000)
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)
	created, err := s.subs.Create(s.GetContext(), CreateSubscriptionRequest{UserID: "user_1", PlanID: plan.ID})
	s.Require().NoError(err)

	var sink bytes.Buffer
	err = s.instances.StreamLogs(s.GetContext(), "user_1", created.Instance.ID, &sink)
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))
}

func (s *InstanceServiceSuite) TestStreamLogsResolvesPodWhenUnset() {
	instID := s.runningInstance("user_1")

	inst, err := s.GetStores().InstRepo.Get(s.GetContext(), instID)
	s.Require().NoError(err)
	inst.PodName = ""
	s.Require().NoError(s.GetStores().InstRepo.Update(s.GetContext(), inst))

	s.GetKube().PodName = "db-7c9f-zzz11"
	s.GetKube().Logs = "ok"

	var sink bytes.Buffer
	s.NoError(s.instances.StreamLogs(s.GetContext(), "user_1", instID, &sink))
	s.Equal("ok", sink.String())
}

func (s *InstanceServiceSuite) TestStreamLogsFailsWithoutAnyPod() {
	instID := s.runningInstance("user_1")

	inst, err := s.GetStores().InstRepo.Get(s.GetContext(), instID)
	s.Require().NoError(err)
	inst.PodName = ""
	s.Require().NoError(s.GetStores().InstRepo.Update(s.GetContext(), inst))

	var sink bytes.Buffer
	err = s.instances.StreamLogs(s.GetContext(), "user_1", instID, &sink)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *InstanceServiceSuite) TestListByUser() {
	s.runningInstance("user_1")
	seedUser(&s.BaseServiceTestSuite, "user_2", 0)

	mine, err := s.instances.ListByUser(s.GetContext(), "user_1", types.Filter{})
	s.NoError(err)
	s.Len(mine, 1)

	theirs, err := s.instances.ListByUser(s.GetContext(), "user_2", types.Filter{})
	s.NoError(err)
	s.Empty(theirs)
}
