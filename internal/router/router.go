package router

import (
	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/api/cron"
	v1 "github.com/servorahq/servora/internal/api/v1"
	"github.com/servorahq/servora/internal/auth"
	"github.com/servorahq/servora/internal/config"
	"github.com/servorahq/servora/internal/rest/middleware"
	"github.com/servorahq/servora/internal/types"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Health       *v1.HealthHandler
	Auth         *v1.AuthHandler
	Catalog      *v1.CatalogHandler
	Subscription *v1.SubscriptionHandler
	Instance     *v1.InstanceHandler
	Wallet       *v1.WalletHandler
	Coupon       *v1.CouponHandler
	Admin        *v1.AdminHandler
	Webhook      *v1.WebhookHandler
	CronBilling  *cron.BillingHandler
}

func New(cfg *config.Configuration, authSvc *auth.Service, handlers Handlers) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)
	router.GET("/ready", handlers.Health.Ready)

	public := router.Group("/v1")
	{
		public.POST("/auth/signup", handlers.Auth.SignUp)
		public.POST("/auth/login", handlers.Auth.Login)

		// Catalog browsing needs no account.
		public.GET("/categories", handlers.Catalog.ListCategories)
		public.GET("/services", handlers.Catalog.ListServices)
		public.GET("/services/featured", handlers.Catalog.ListFeatured)
		public.GET("/services/:id", handlers.Catalog.GetService)
		public.GET("/services/:id/plans", handlers.Catalog.ListPlans)

		public.POST("/webhooks/payment", handlers.Webhook.PaymentNotification)

		// External scheduler trigger; every job is idempotent.
		public.POST("/cron/billing", handlers.CronBilling.Run)
	}

	private := router.Group("/v1", middleware.AuthMiddleware(authSvc))
	{
		private.GET("/auth/me", handlers.Auth.Me)

		private.POST("/subscriptions", handlers.Subscription.Create)
		private.GET("/subscriptions", handlers.Subscription.List)
		private.GET("/subscriptions/:id", handlers.Subscription.Get)
		private.GET("/subscriptions/:id/billing", handlers.Subscription.GetBillingInfo)
		private.POST("/subscriptions/:id/upgrade", handlers.Subscription.Upgrade)
		private.POST("/subscriptions/:id/cancel", handlers.Subscription.Cancel)
		private.PUT("/subscriptions/:id/auto-renew", handlers.Subscription.SetAutoRenew)
		private.POST("/subscriptions/:id/retry", handlers.Subscription.RetryProvisioning)

		private.GET("/instances", handlers.Instance.List)
		private.GET("/instances/:id", handlers.Instance.Get)
		private.GET("/instances/:id/logs", handlers.Instance.Logs)
		private.POST("/instances/:id/stop", handlers.Instance.Stop)
		private.POST("/instances/:id/start", handlers.Instance.Start)
		private.POST("/instances/:id/restart", handlers.Instance.Restart)

		private.GET("/wallet", handlers.Wallet.GetStatistics)
		private.GET("/wallet/transactions", handlers.Wallet.ListTransactions)
		private.POST("/wallet/topup", handlers.Wallet.TopUp)
		private.POST("/wallet/redeem", handlers.Wallet.RedeemCoupon)

		private.POST("/coupons/validate", handlers.Coupon.Validate)
	}

	admin := router.Group("/v1/admin", middleware.AuthMiddleware(authSvc), middleware.AdminRequired())
	{
		admin.GET("/users", handlers.Admin.ListUsers)
		admin.GET("/users/:id", handlers.Admin.GetUser)
		admin.PUT("/users/:id/active", handlers.Admin.SetUserActive)
		admin.POST("/users/:id/balance", handlers.Admin.AdjustBalance)

		admin.GET("/subscriptions", handlers.Admin.ListSubscriptions)
		admin.POST("/subscriptions/:id/force-cancel", handlers.Admin.ForceCancel)
		admin.POST("/subscriptions/:id/change-plan", handlers.Admin.ChangePlan)

		admin.GET("/instances", handlers.Admin.ListInstances)

		admin.POST("/categories", handlers.Catalog.CreateCategory)
		admin.POST("/services", handlers.Catalog.CreateService)
		admin.POST("/plans", handlers.Catalog.CreatePlan)
		admin.PUT("/plans/:id/quota", handlers.Catalog.SetPlanQuota)

		admin.POST("/coupons", handlers.Coupon.Create)
		admin.GET("/coupons", handlers.Coupon.List)
		admin.GET("/coupons/:id", handlers.Coupon.Get)
		admin.PUT("/coupons/:id/status", handlers.Coupon.UpdateStatus)
		admin.GET("/coupons/:id/redemptions", handlers.Coupon.ListRedemptions)
	}

	return router
}
