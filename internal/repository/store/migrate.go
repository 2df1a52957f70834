package store

import (
	catalogdomain "github.com/servorahq/servora/internal/domain/catalog"
	coupondomain "github.com/servorahq/servora/internal/domain/coupon"
	instdomain "github.com/servorahq/servora/internal/domain/instance"
	subdomain "github.com/servorahq/servora/internal/domain/subscription"
	userdomain "github.com/servorahq/servora/internal/domain/user"
	walletdomain "github.com/servorahq/servora/internal/domain/wallet"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the schema for all domain models. Intended
// for local development; production uses versioned migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userdomain.User{},
		&catalogdomain.Category{},
		&catalogdomain.Service{},
		&catalogdomain.Plan{},
		&subdomain.Subscription{},
		&instdomain.Instance{},
		&walletdomain.Transaction{},
		&coupondomain.Coupon{},
		&coupondomain.Redemption{},
	)
}
