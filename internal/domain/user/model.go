package user

import (
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// User is an account holding a prepaid credit wallet. Balances are integer
// minor units.
type User struct {
	ID            string         `db:"id" json:"id" gorm:"primaryKey"`
	Email         string         `db:"email" json:"email" gorm:"uniqueIndex"`
	Name          string         `db:"name" json:"name"`
	PasswordHash  string         `db:"password_hash" json:"-"`
	Role          types.UserRole `db:"role" json:"role"`
	CreditBalance int64          `db:"credit_balance" json:"credit_balance"`
	TotalTopUp    int64          `db:"total_top_up" json:"total_top_up"`
	TotalSpent    int64          `db:"total_spent" json:"total_spent"`
	Active        bool           `db:"active" json:"active"`

	types.BaseModel
}

func (u *User) TableName() string {
	return "users"
}

func (u *User) Validate() error {
	if u.Email == "" {
		return ierr.NewError("email is required").
			WithHint("Email is required").
			Mark(ierr.ErrValidation)
	}
	if !u.Role.Validate() {
		return ierr.NewError("invalid user role").
			WithHint("Role must be USER or ADMINISTRATOR").
			WithReportableDetails(map[string]any{"role": u.Role}).
			Mark(ierr.ErrValidation)
	}
	if u.CreditBalance < 0 {
		return ierr.NewError("credit balance cannot be negative").
			WithHint("Credit balance cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == types.UserRoleAdministrator
}
