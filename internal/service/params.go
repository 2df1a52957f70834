package service

import (
	"github.com/servorahq/servora/internal/config"
	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/coupon"
	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/domain/subscription"
	"github.com/servorahq/servora/internal/domain/user"
	"github.com/servorahq/servora/internal/domain/wallet"
	"github.com/servorahq/servora/internal/kube"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/provisioner"
)

// ProvisionQueue decouples services from the worker pool; jobs enqueued here
// run after the enclosing transaction has committed.
type ProvisionQueue interface {
	Enqueue(job provisioner.Job) bool
}

// NewServiceParams assembles the common dependency set injected into services.
func NewServiceParams(
	log *logger.Logger,
	cfg *config.Configuration,
	db postgres.IClient,
	kubeClient kube.Client,
	queue ProvisionQueue,
	userRepo user.Repository,
	catalogRepo catalog.Repository,
	subRepo subscription.Repository,
	instRepo instance.Repository,
	walletRepo wallet.Repository,
	couponRepo coupon.Repository,
) ServiceParams {
	return ServiceParams{
		Logger:      log,
		Config:      cfg,
		DB:          db,
		Kube:        kubeClient,
		Queue:       queue,
		UserRepo:    userRepo,
		CatalogRepo: catalogRepo,
		SubRepo:     subRepo,
		InstRepo:    instRepo,
		WalletRepo:  walletRepo,
		CouponRepo:  couponRepo,
	}
}

// ServiceParams holds common dependencies for services.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	Kube  kube.Client
	Queue ProvisionQueue

	// Repositories
	UserRepo    user.Repository
	CatalogRepo catalog.Repository
	SubRepo     subscription.Repository
	InstRepo    instance.Repository
	WalletRepo  wallet.Repository
	CouponRepo  coupon.Repository
}
