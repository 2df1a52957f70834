package provisioner_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/domain/subscription"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/kube"
	"github.com/servorahq/servora/internal/provisioner"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

type ProvisionerSuite struct {
	testutil.BaseServiceTestSuite
	prov *provisioner.Provisioner
}

func TestProvisioner(t *testing.T) {
	suite.Run(t, new(ProvisionerSuite))
}

func (s *ProvisionerSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	stores := s.GetStores()
	s.prov = provisioner.New(
		s.GetConfig(),
		s.GetKube(),
		stores.InstRepo,
		stores.SubRepo,
		stores.CatalogRepo,
		s.GetLogger(),
	)
}

// seedWorkload creates an active subscription with a pending instance and its
// catalog entries, returning the subscription ID.
func (s *ProvisionerSuite) seedWorkload() (string, *instance.Instance) {
	ctx := s.GetContext()
	stores := s.GetStores()

	svc := &catalog.Service{
		ID:            "svc_postgres",
		Name:          "postgres",
		Slug:          "postgres",
		DockerImage:   "postgres:16",
		ContainerPort: 5432,
		EnvTemplate:   types.Metadata{"LOG_LEVEL": "info"},
		MountPath:     "/var/lib/postgresql",
		BaseModel:     types.GetDefaultBaseModel(),
	}
	s.Require().NoError(stores.CatalogRepo.CreateService(ctx, svc))

	plan := &catalog.Plan{
		ID:           "plan_basic",
		ServiceID:    svc.ID,
		Name:         "Basic",
		PlanType:     types.PlanTypeBasic,
		MonthlyPrice: 3000,
		CPUMilli:     500,
		MemoryMB:     512,
		StorageGB:    10,
		TotalQuota:   5,
		BaseModel:    types.GetDefaultBaseModel(),
	}
	s.Require().NoError(stores.CatalogRepo.CreatePlan(ctx, plan))

	now := time.Now().UTC()
	sub := &subscription.Subscription{
		ID:                 "sub_1",
		UserID:             "user_1",
		ServiceID:          svc.ID,
		PlanID:             plan.ID,
		SubscriptionStatus: types.SubscriptionStatusActive,
		StartDate:          now,
		EndDate:            now.Add(30 * 24 * time.Hour),
		NextBilling:        now.Add(30 * 24 * time.Hour),
		MonthlyPrice:       plan.MonthlyPrice,
		AutoRenew:          true,
		BaseModel:          types.GetDefaultBaseModel(),
	}
	s.Require().NoError(stores.SubRepo.Create(ctx, sub))

	names := kube.NamesFor(sub.UserID, "db-one")
	inst := &instance.Instance{
		ID:             "inst_1",
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		ServiceID:      svc.ID,
		InstanceStatus: types.InstanceStatusPending,
		Name:           "db-one",
		Namespace:      names.Namespace,
		DeploymentName: names.Deployment,
		ServiceName:    names.Service,
		IngressName:    names.Ingress,
		ConfigMapName:  names.ConfigMap,
		PVCName:        names.PVC,
		Subdomain:      "postgres-user-1-abc.apps.servora.test",
		PublicURL:      "https://postgres-user-1-abc.apps.servora.test",
		BaseModel:      types.GetDefaultBaseModel(),
	}
	s.Require().NoError(stores.InstRepo.Create(ctx, inst))
	return sub.ID, inst
}

func (s *ProvisionerSuite) getInstance(subID string) *instance.Instance {
	inst, err := s.GetStores().InstRepo.GetBySubscription(s.GetContext(), subID)
	s.Require().NoError(err)
	return inst
}

func (s *ProvisionerSuite) TestProvisionHappyPath() {
	subID, _ := s.seedWorkload()
	s.GetKube().PodName = "db-one-5f6d8-xk2pq"

	s.NoError(s.prov.Provision(s.GetContext(), subID))

	inst := s.getInstance(subID)
	s.Equal(types.InstanceStatusRunning, inst.InstanceStatus)
	s.Equal("db-one-5f6d8-xk2pq", inst.PodName)
	s.Equal("healthy", inst.HealthStatus)
	s.NotNil(inst.LastStarted)

	// Namespace, config map, PVC, deployment, service, ingress.
	s.Len(s.GetKube().Applied(), 6)
}

func (s *ProvisionerSuite) TestProvisionIsIdempotentOnceRunning() {
	subID, _ := s.seedWorkload()
	s.Require().NoError(s.prov.Provision(s.GetContext(), subID))

	applied := len(s.GetKube().Applied())
	s.NoError(s.prov.Provision(s.GetContext(), subID))
	s.Len(s.GetKube().Applied(), applied)
}

func (s *ProvisionerSuite) TestProvisionFailureLandsInError() {
	subID, _ := s.seedWorkload()
	s.GetKube().ApplyErr = errors.New("apiserver unavailable")

	err := s.prov.Provision(s.GetContext(), subID)
	s.Error(err)

	inst := s.getInstance(subID)
	s.Equal(types.InstanceStatusError, inst.InstanceStatus)
	s.Contains(inst.HealthStatus, "apiserver unavailable")

	// Whatever the attempt created is cleaned up again.
	s.NotEmpty(s.GetKube().Deleted())
}

func (s *ProvisionerSuite) TestProvisionFailureCleansUpInReverseOrder() {
	subID, _ := s.seedWorkload()
	s.GetKube().WaitReadyErr = errors.New("deployment never became ready")

	err := s.prov.Provision(s.GetContext(), subID)
	s.Error(err)
	s.Equal(types.InstanceStatusError, s.getInstance(subID).InstanceStatus)

	// Everything applied before the failure is deleted best-effort in reverse
	// apply order; the shared namespace stays.
	deleted := s.GetKube().Deleted()
	s.Require().Len(deleted, 5)
	s.True(strings.HasPrefix(deleted[0], string(kube.KindIngress)+"/"))
	s.True(strings.HasPrefix(deleted[1], string(kube.KindService)+"/"))
	s.True(strings.HasPrefix(deleted[2], string(kube.KindDeployment)+"/"))
	s.True(strings.HasPrefix(deleted[3], string(kube.KindPVC)+"/"))
	s.True(strings.HasPrefix(deleted[4], string(kube.KindConfigMap)+"/"))
	for _, d := range deleted {
		s.NotContains(d, string(kube.KindNamespace)+"/")
	}
}

func (s *ProvisionerSuite) TestProvisionRetryAfterError() {
	subID, _ := s.seedWorkload()
	s.GetKube().ApplyErr = errors.New("apiserver unavailable")
	s.Require().Error(s.prov.Provision(s.GetContext(), subID))

	// Reset the instance, clear the fault and run again; the same manifests
	// are regenerated so the partial apply is harmless.
	s.GetKube().ApplyErr = nil
	s.Require().NoError(s.prov.Reset(s.GetContext(), subID))
	s.Equal(types.InstanceStatusPending, s.getInstance(subID).InstanceStatus)

	s.NoError(s.prov.Provision(s.GetContext(), subID))
	s.Equal(types.InstanceStatusRunning, s.getInstance(subID).InstanceStatus)
}

func (s *ProvisionerSuite) TestProvisionAbortsWhenCancelledMidApply() {
	subID, _ := s.seedWorkload()

	// Cancel the subscription as soon as the workload deployment lands, which
	// is the realistic race: user cancels while provisioning runs.
	s.GetKube().OnApply = func(obj runtime.Object) error {
		if _, ok := obj.(*appsv1.Deployment); ok {
			sub, err := s.GetStores().SubRepo.Get(s.GetContext(), subID)
			if err != nil {
				return err
			}
			sub.SubscriptionStatus = types.SubscriptionStatusCancelled
			return s.GetStores().SubRepo.Update(s.GetContext(), sub)
		}
		return nil
	}

	s.NoError(s.prov.Provision(s.GetContext(), subID))

	inst := s.getInstance(subID)
	s.Equal(types.InstanceStatusTerminated, inst.InstanceStatus)
	s.NotEmpty(s.GetKube().Deleted())
}

func (s *ProvisionerSuite) TestTerminateDeletesInReverseApplyOrder() {
	subID, _ := s.seedWorkload()
	s.Require().NoError(s.prov.Provision(s.GetContext(), subID))

	s.NoError(s.prov.Terminate(s.GetContext(), subID))

	deleted := s.GetKube().Deleted()
	s.Require().Len(deleted, 5)
	s.True(strings.HasPrefix(deleted[0], string(kube.KindIngress)+"/"))
	s.True(strings.HasPrefix(deleted[1], string(kube.KindService)+"/"))
	s.True(strings.HasPrefix(deleted[2], string(kube.KindDeployment)+"/"))
	s.True(strings.HasPrefix(deleted[3], string(kube.KindPVC)+"/"))
	s.True(strings.HasPrefix(deleted[4], string(kube.KindConfigMap)+"/"))

	// The shared per-user namespace is never deleted.
	for _, d := range deleted {
		s.NotContains(d, string(kube.KindNamespace)+"/")
	}

	after := s.getInstance(subID)
	s.Equal(types.InstanceStatusTerminated, after.InstanceStatus)
	s.Empty(after.PodName)

	// Terminating again is a no-op.
	s.NoError(s.prov.Terminate(s.GetContext(), subID))
	s.Len(s.GetKube().Deleted(), 5)
}

func (s *ProvisionerSuite) TestStopAndStart() {
	subID, _ := s.seedWorkload()
	s.Require().NoError(s.prov.Provision(s.GetContext(), subID))

	s.NoError(s.prov.Stop(s.GetContext(), subID))
	inst := s.getInstance(subID)
	s.Equal(types.InstanceStatusStopped, inst.InstanceStatus)
	s.NotNil(inst.LastStopped)

	replicas, ok := s.GetKube().ScaleOf(inst.Namespace, inst.DeploymentName)
	s.True(ok)
	s.Equal(int32(0), replicas)

	// Stop again is a no-op; start scales back to one.
	s.NoError(s.prov.Stop(s.GetContext(), subID))
	s.NoError(s.prov.Start(s.GetContext(), subID))

	inst = s.getInstance(subID)
	s.Equal(types.InstanceStatusRunning, inst.InstanceStatus)
	replicas, _ = s.GetKube().ScaleOf(inst.Namespace, inst.DeploymentName)
	s.Equal(int32(1), replicas)
}

func (s *ProvisionerSuite) TestRestartRequiresRunning() {
	subID, _ := s.seedWorkload()

	err := s.prov.Restart(s.GetContext(), subID)
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))

	s.Require().NoError(s.prov.Provision(s.GetContext(), subID))
	s.NoError(s.prov.Restart(s.GetContext(), subID))

	inst := s.getInstance(subID)
	s.Equal([]string{inst.Namespace + "/" + inst.DeploymentName}, s.GetKube().Restarts())
}

func (s *ProvisionerSuite) TestUpdateReappliesManifests() {
	subID, _ := s.seedWorkload()
	s.Require().NoError(s.prov.Provision(s.GetContext(), subID))
	before := len(s.GetKube().Applied())

	s.NoError(s.prov.Update(s.GetContext(), subID))
	s.Len(s.GetKube().Applied(), before*2)
	s.Equal(types.InstanceStatusRunning, s.getInstance(subID).InstanceStatus)
}

func (s *ProvisionerSuite) TestSweepStaleResumesStuckInstances() {
	subID, inst := s.seedWorkload()

	// Simulate a crash mid-provision: the instance sat in PROVISIONING for
	// longer than the stale threshold.
	inst.InstanceStatus = types.InstanceStatusProvisioning
	inst.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(s.GetStores().InstRepo.Update(s.GetContext(), inst))

	pool := provisioner.NewPool(s.prov, s.GetLogger())
	s.NoError(pool.SweepStale(s.GetContext()))

	// The queued job is the resumption of our subscription. Drain it by hand.
	s.Require().NoError(s.prov.Provision(s.GetContext(), subID))
	s.Equal(types.InstanceStatusRunning, s.getInstance(subID).InstanceStatus)
}
