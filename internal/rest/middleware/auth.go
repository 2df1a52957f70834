package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/auth"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// AuthMiddleware verifies the bearer token and stores the caller's identity
// on the request context.
func AuthMiddleware(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(types.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.Error(ierr.NewError("missing bearer token").
				WithHint("Authentication required").
				Mark(ierr.ErrPermissionDenied))
			c.Abort()
			return
		}

		claims, err := authSvc.ValidateToken(token)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, types.CtxUserID, claims.UserID)
		ctx = context.WithValue(ctx, types.CtxUserRole, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// AdminRequired gates a route on the administrator role; must run after
// AuthMiddleware.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !types.IsAdmin(c.Request.Context()) {
			c.Error(ierr.NewError("administrator role required").
				WithHint("This operation is restricted to administrators").
				Mark(ierr.ErrPermissionDenied))
			c.Abort()
			return
		}
		c.Next()
	}
}
