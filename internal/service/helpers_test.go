package service

import (
	"time"

	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/user"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
)

func paramsFromSuite(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger:      s.GetLogger(),
		Config:      s.GetConfig(),
		DB:          s.GetDB(),
		Kube:        s.GetKube(),
		Queue:       s.GetQueue(),
		UserRepo:    stores.UserRepo,
		CatalogRepo: stores.CatalogRepo,
		SubRepo:     stores.SubRepo,
		InstRepo:    stores.InstRepo,
		WalletRepo:  stores.WalletRepo,
		CouponRepo:  stores.CouponRepo,
	}
}

func seedUser(s *testutil.BaseServiceTestSuite, id string, balance int64) *user.User {
	u := &user.User{
		ID:            id,
		Email:         id + "@example.com",
		Name:          "Test User",
		Role:          types.UserRoleUser,
		CreditBalance: balance,
		Active:        true,
		BaseModel:     types.GetDefaultBaseModel(),
	}
	s.Require().NoError(s.GetStores().UserRepo.Create(s.GetContext(), u))
	return u
}

// seedCatalog creates one category, one service and one plan with the given
// price and quota, returning the service and plan.
func seedCatalog(s *testutil.BaseServiceTestSuite, slug string, price int64, quota int) (*catalog.Service, *catalog.Plan) {
	ctx := s.GetContext()
	repo := s.GetStores().CatalogRepo

	cat := &catalog.Category{
		ID:        "cat_" + slug,
		Name:      "Databases",
		Slug:      "databases-" + slug,
		BaseModel: types.GetDefaultBaseModel(),
	}
	s.Require().NoError(repo.CreateCategory(ctx, cat))

	svc := &catalog.Service{
		ID:            "svc_" + slug,
		CategoryID:    cat.ID,
		Name:          slug,
		Slug:          slug,
		DockerImage:   slug + ":latest",
		ContainerPort: 5432,
		EnvTemplate:   types.Metadata{"LOG_LEVEL": "info"},
		MountPath:     "/var/lib/data",
		BaseModel:     types.GetDefaultBaseModel(),
	}
	s.Require().NoError(repo.CreateService(ctx, svc))

	plan := seedPlan(s, svc.ID, "plan_"+slug, types.PlanTypeBasic, price, quota)
	return svc, plan
}

func seedPlan(s *testutil.BaseServiceTestSuite, serviceID, id string, tier types.PlanType, price int64, quota int) *catalog.Plan {
	plan := &catalog.Plan{
		ID:           id,
		ServiceID:    serviceID,
		Name:         string(tier),
		PlanType:     tier,
		MonthlyPrice: price,
		CPUMilli:     500,
		MemoryMB:     512,
		StorageGB:    10,
		TotalQuota:   quota,
		BaseModel:    types.GetDefaultBaseModel(),
	}
	s.Require().NoError(s.GetStores().CatalogRepo.CreatePlan(s.GetContext(), plan))
	return plan
}

func daysFromNow(days int) time.Time {
	return time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
}
