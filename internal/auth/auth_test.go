package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/servorahq/servora/internal/config"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(config.GetDefaultConfig())
}

func TestPasswordHashing(t *testing.T) {
	svc := newTestService()

	hash, err := svc.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.NoError(t, svc.ComparePassword(hash, "correct horse battery staple"))

	err = svc.ComparePassword(hash, "wrong")
	assert.Error(t, err)
	assert.True(t, ierr.IsPermissionDenied(err))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	svc := newTestService()

	_, err := svc.HashPassword("")
	assert.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService()

	token, err := svc.GenerateToken("user_123", types.UserRoleAdministrator)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user_123", claims.UserID)
	assert.Equal(t, types.UserRoleAdministrator, claims.Role)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Auth.Secret = "other-secret"
	other := NewService(cfg)

	token, err := newTestService().GenerateToken("user_123", types.UserRoleUser)
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
	assert.True(t, ierr.IsPermissionDenied(err))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := config.GetDefaultConfig()
	claims := jwt.MapClaims{
		"user_id": "user_123",
		"role":    string(types.UserRoleUser),
		"exp":     time.Now().Add(-time.Hour).Unix(),
		"iat":     time.Now().Add(-2 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.Secret))
	require.NoError(t, err)

	_, err = NewService(cfg).ValidateToken(token)
	assert.Error(t, err)
	assert.True(t, ierr.IsPermissionDenied(err))
}

func TestValidateTokenDefaultsUnknownRole(t *testing.T) {
	cfg := config.GetDefaultConfig()
	claims := jwt.MapClaims{
		"user_id": "user_123",
		"role":    "SUPERUSER",
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.Secret))
	require.NoError(t, err)

	parsed, err := NewService(cfg).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, types.UserRoleUser, parsed.Role)
}

func TestValidateTokenRequiresUserID(t *testing.T) {
	cfg := config.GetDefaultConfig()
	claims := jwt.MapClaims{
		"role": string(types.UserRoleUser),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.Secret))
	require.NoError(t, err)

	_, err = NewService(cfg).ValidateToken(token)
	assert.Error(t, err)
	assert.True(t, ierr.IsPermissionDenied(err))
}
