package service

import (
	"testing"

	"github.com/servorahq/servora/internal/domain/catalog"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
)

type CatalogServiceSuite struct {
	testutil.BaseServiceTestSuite
	catalog CatalogService
}

func TestCatalogService(t *testing.T) {
	suite.Run(t, new(CatalogServiceSuite))
}

func (s *CatalogServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.catalog = NewCatalogService(paramsFromSuite(&s.BaseServiceTestSuite))
}

func (s *CatalogServiceSuite) TestAllocateAndReleaseQuota() {
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 2)

	s.NoError(s.catalog.AllocateQuota(s.GetContext(), plan.ID))
	s.NoError(s.catalog.AllocateQuota(s.GetContext(), plan.ID))

	err := s.catalog.AllocateQuota(s.GetContext(), plan.ID)
	s.Error(err)
	s.True(ierr.IsQuotaExceeded(err))

	s.NoError(s.catalog.ReleaseQuota(s.GetContext(), plan.ID))
	s.NoError(s.catalog.AllocateQuota(s.GetContext(), plan.ID))

	p, err := s.catalog.GetPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(2, p.UsedQuota)
}

func (s *CatalogServiceSuite) TestReleaseQuotaToleratesDoubleRelease() {
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 2)

	s.NoError(s.catalog.ReleaseQuota(s.GetContext(), plan.ID))
	s.NoError(s.catalog.ReleaseQuota(s.GetContext(), plan.ID))

	p, err := s.catalog.GetPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(0, p.UsedQuota)
}

func (s *CatalogServiceSuite) TestShrinkingQuotaBlocksAdmissionsUntilDrained() {
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)
	s.NoError(s.catalog.AllocateQuota(s.GetContext(), plan.ID))
	s.NoError(s.catalog.AllocateQuota(s.GetContext(), plan.ID))
	s.NoError(s.catalog.AllocateQuota(s.GetContext(), plan.ID))

	// Shrinking below current usage needs the explicit force flag.
	_, err := s.catalog.SetTotalQuota(s.GetContext(), plan.ID, 2, false)
	s.Error(err)
	s.True(ierr.IsValidation(err))

	// Forced shrink: existing subscriptions keep running but no new
	// admissions go through.
	p, err := s.catalog.SetTotalQuota(s.GetContext(), plan.ID, 2, true)
	s.NoError(err)
	s.True(p.OverAllocated)
	s.Equal(3, p.UsedQuota)

	err = s.catalog.AllocateQuota(s.GetContext(), plan.ID)
	s.Error(err)
	s.True(ierr.IsQuotaExceeded(err))

	// Draining usage back under the cap clears the flag.
	s.NoError(s.catalog.ReleaseQuota(s.GetContext(), plan.ID))
	p, err = s.catalog.GetPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.False(p.OverAllocated)

	// 2/2 used: still full, but for the ordinary reason.
	err = s.catalog.AllocateQuota(s.GetContext(), plan.ID)
	s.Error(err)
	s.True(ierr.IsQuotaExceeded(err))

	s.NoError(s.catalog.ReleaseQuota(s.GetContext(), plan.ID))
	s.NoError(s.catalog.AllocateQuota(s.GetContext(), plan.ID))
}

func (s *CatalogServiceSuite) TestSetTotalQuotaRejectsNegative() {
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)

	_, err := s.catalog.SetTotalQuota(s.GetContext(), plan.ID, -1, false)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *CatalogServiceSuite) TestGrowingQuotaNeedsNoForce() {
	_, plan := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 2)
	s.NoError(s.catalog.AllocateQuota(s.GetContext(), plan.ID))

	p, err := s.catalog.SetTotalQuota(s.GetContext(), plan.ID, 10, false)
	s.NoError(err)
	s.Equal(10, p.TotalQuota)
	s.False(p.OverAllocated)
}

func (s *CatalogServiceSuite) TestCreatePlanRequiresExistingService() {
	err := s.catalog.CreatePlan(s.GetContext(), &catalog.Plan{
		ServiceID:    "svc_missing",
		Name:         "Basic",
		PlanType:     types.PlanTypeBasic,
		MonthlyPrice: 3000,
		TotalQuota:   5,
	})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *CatalogServiceSuite) TestCreatePlanRejectsDuplicateTier() {
	svc, _ := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)

	err := s.catalog.CreatePlan(s.GetContext(), &catalog.Plan{
		ServiceID:    svc.ID,
		Name:         "Basic again",
		PlanType:     types.PlanTypeBasic,
		MonthlyPrice: 4000,
		TotalQuota:   5,
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *CatalogServiceSuite) TestCategoryListingIsCachedUntilWrite() {
	cat := &catalog.Category{Name: "Databases", Slug: "databases"}
	s.Require().NoError(s.catalog.CreateCategory(s.GetContext(), cat))

	first, err := s.catalog.ListCategories(s.GetContext())
	s.NoError(err)
	s.Len(first, 1)

	// Write through the repository directly; the cached listing does not see
	// it until a service-level write flushes the cache.
	s.Require().NoError(s.GetStores().CatalogRepo.CreateCategory(s.GetContext(), &catalog.Category{
		ID:        types.GenerateUUIDWithPrefix(types.UUIDPrefixCategory),
		Name:      "Queues",
		Slug:      "queues",
		BaseModel: types.GetDefaultBaseModel(),
	}))

	cached, err := s.catalog.ListCategories(s.GetContext())
	s.NoError(err)
	s.Len(cached, 1)

	s.Require().NoError(s.catalog.CreateCategory(s.GetContext(), &catalog.Category{
		Name: "Caches", Slug: "caches",
	}))

	fresh, err := s.catalog.ListCategories(s.GetContext())
	s.NoError(err)
	s.Len(fresh, 3)
}

func (s *CatalogServiceSuite) TestSearchMatchesNameAndDescription() {
	svc, _ := seedCatalog(&s.BaseServiceTestSuite, "postgres", 3000, 5)
	svc.Description = "relational database"
	s.Require().NoError(s.GetStores().CatalogRepo.UpdateService(s.GetContext(), svc))

	byName, err := s.catalog.SearchServices(s.GetContext(), "POSTGRES", types.Filter{})
	s.NoError(err)
	s.Len(byName, 1)

	byDesc, err := s.catalog.SearchServices(s.GetContext(), "relational", types.Filter{})
	s.NoError(err)
	s.Len(byDesc, 1)

	none, err := s.catalog.SearchServices(s.GetContext(), "mongo", types.Filter{})
	s.NoError(err)
	s.Empty(none)
}
