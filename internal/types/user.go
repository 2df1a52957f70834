package types

// UserRole determines the permission level of a user.
type UserRole string

const (
	UserRoleUser          UserRole = "USER"
	UserRoleAdministrator UserRole = "ADMINISTRATOR"
)

func (r UserRole) Validate() bool {
	switch r {
	case UserRoleUser, UserRoleAdministrator:
		return true
	}
	return false
}
