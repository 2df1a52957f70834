package repository

import (
	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/coupon"
	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/domain/subscription"
	"github.com/servorahq/servora/internal/domain/user"
	"github.com/servorahq/servora/internal/domain/wallet"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/postgres"
	"github.com/servorahq/servora/internal/repository/store"
)

func NewUserRepository(client postgres.IClient, log *logger.Logger) user.Repository {
	return store.NewUserRepository(client, log)
}

func NewCatalogRepository(client postgres.IClient, log *logger.Logger) catalog.Repository {
	return store.NewCatalogRepository(client, log)
}

func NewSubscriptionRepository(client postgres.IClient, log *logger.Logger) subscription.Repository {
	return store.NewSubscriptionRepository(client, log)
}

func NewInstanceRepository(client postgres.IClient, log *logger.Logger) instance.Repository {
	return store.NewInstanceRepository(client, log)
}

func NewWalletRepository(client postgres.IClient, log *logger.Logger) wallet.Repository {
	return store.NewWalletRepository(client, log)
}

func NewCouponRepository(client postgres.IClient, log *logger.Logger) coupon.Repository {
	return store.NewCouponRepository(client, log)
}
