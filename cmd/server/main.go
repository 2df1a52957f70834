package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/api/cron"
	v1 "github.com/servorahq/servora/internal/api/v1"
	"github.com/servorahq/servora/internal/auth"
	"github.com/servorahq/servora/internal/config"
	"github.com/servorahq/servora/internal/kube"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/provisioner"
	"github.com/servorahq/servora/internal/repository"
	"github.com/servorahq/servora/internal/repository/store"
	"github.com/servorahq/servora/internal/router"
	"github.com/servorahq/servora/internal/scheduler"
	"github.com/servorahq/servora/internal/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func init() {
	// Billing math and idempotency keys assume UTC everywhere.
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,

			postgres.NewDB,
			postgres.NewClient,

			auth.NewService,
			kube.NewClient,

			repository.NewUserRepository,
			repository.NewCatalogRepository,
			repository.NewSubscriptionRepository,
			repository.NewInstanceRepository,
			repository.NewWalletRepository,
			repository.NewCouponRepository,

			provisioner.New,
			provisioner.NewPool,
			provideQueue,

			service.NewServiceParams,
			service.NewUserService,
			service.NewWalletService,
			service.NewCatalogService,
			service.NewCouponService,
			service.NewSubscriptionService,
			service.NewInstanceService,
			service.NewPaymentService,
			service.NewBillingService,
			service.NewAdminService,

			scheduler.New,
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(startServer),
	)
	app.Run()
}

func provideQueue(pool *provisioner.Pool) service.ProvisionQueue {
	return pool
}

func provideHandlers(
	log *logger.Logger,
	kubeClient kube.Client,
	userService service.UserService,
	walletService service.WalletService,
	catalogService service.CatalogService,
	couponService service.CouponService,
	subscriptionService service.SubscriptionService,
	instanceService service.InstanceService,
	paymentService service.PaymentService,
	billingService service.BillingService,
	adminService service.AdminService,
) router.Handlers {
	return router.Handlers{
		Health:       v1.NewHealthHandler(kubeClient),
		Auth:         v1.NewAuthHandler(userService, log),
		Catalog:      v1.NewCatalogHandler(catalogService, log),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, log),
		Instance:     v1.NewInstanceHandler(instanceService, subscriptionService, log),
		Wallet:       v1.NewWalletHandler(walletService, paymentService, couponService, log),
		Coupon:       v1.NewCouponHandler(couponService, catalogService, log),
		Admin:        v1.NewAdminHandler(adminService, walletService, log),
		Webhook:      v1.NewWebhookHandler(paymentService, log),
		CronBilling:  cron.NewBillingHandler(billingService, log),
	}
}

func provideRouter(cfg *config.Configuration, authSvc *auth.Service, handlers router.Handlers) *gin.Engine {
	return router.New(cfg, authSvc, handlers)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db *gorm.DB,
	pool *provisioner.Pool,
	sched *scheduler.Scheduler,
	log *logger.Logger,
) {
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.Postgres.AutoMigrate {
				if err := store.AutoMigrate(db); err != nil {
					return err
				}
				log.Infow("schema migration completed")
			}

			go pool.Run(workerCtx)
			if err := pool.SweepStale(ctx); err != nil {
				log.Warnw("stale instance sweep failed", "error", err)
			}
			go sched.Run(workerCtx)

			go func() {
				log.Infow("starting server", "address", cfg.Server.Address)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalw("server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("shutting down server")
			cancelWorkers()
			return server.Shutdown(ctx)
		},
	})
}
