package testutil

import (
	"context"
	"time"

	"github.com/servorahq/servora/internal/config"
	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/coupon"
	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/domain/subscription"
	"github.com/servorahq/servora/internal/domain/user"
	"github.com/servorahq/servora/internal/domain/wallet"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing.
type Stores struct {
	UserRepo    user.Repository
	CatalogRepo catalog.Repository
	SubRepo     subscription.Repository
	InstRepo    instance.Repository
	WalletRepo  wallet.Repository
	CouponRepo  coupon.Repository
}

// BaseServiceTestSuite provides common functionality for service test suites:
// fresh in-memory stores per test, a transaction-passthrough database client,
// a fake cluster client and a recording provisioner queue.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	stores Stores
	db     postgres.IClient
	kube   *FakeKubeClient
	queue  *RecordingQueue
	logger *logger.Logger
	config *config.Configuration
	now    time.Time
}

func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Now().UTC()
	s.config = config.GetDefaultConfig()
	s.logger = NewTestLogger()
	s.db = NewMockPostgresClient()
	s.kube = NewFakeKubeClient()
	s.queue = NewRecordingQueue()
	s.stores = Stores{
		UserRepo:    NewInMemoryUserStore(),
		CatalogRepo: NewInMemoryCatalogStore(),
		SubRepo:     NewInMemorySubscriptionStore(),
		InstRepo:    NewInMemoryInstanceStore(),
		WalletRepo:  NewInMemoryWalletStore(),
		CouponRepo:  NewInMemoryCouponStore(),
	}
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// ContextWithUser returns a context carrying the authenticated identity the
// way the auth middleware would.
func (s *BaseServiceTestSuite) ContextWithUser(userID string, role types.UserRole) context.Context {
	ctx := context.WithValue(s.ctx, types.CtxUserID, userID)
	return context.WithValue(ctx, types.CtxUserRole, role)
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

func (s *BaseServiceTestSuite) GetKube() *FakeKubeClient {
	return s.kube
}

func (s *BaseServiceTestSuite) GetQueue() *RecordingQueue {
	return s.queue
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
