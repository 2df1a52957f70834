package types

import "context"

type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxUserID        ContextKey = "ctx_user_id"
	CtxUserRole      ContextKey = "ctx_user_role"
	CtxDBTransaction ContextKey = "ctx_db_transaction"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderAuthorization = "Authorization"
)

// DefaultUserID is used for background work that is not attributed to a
// request-scoped user (scheduler ticks, startup sweeps).
const DefaultUserID = "system"

func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxUserID).(string); ok {
		return id
	}
	return ""
}

func GetUserRole(ctx context.Context) UserRole {
	if role, ok := ctx.Value(CtxUserRole).(UserRole); ok {
		return role
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxRequestID).(string); ok {
		return id
	}
	return ""
}

// IsAdmin reports whether the request context carries the administrator role.
func IsAdmin(ctx context.Context) bool {
	return GetUserRole(ctx) == UserRoleAdministrator
}
