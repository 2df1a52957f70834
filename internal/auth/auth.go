package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/servorahq/servora/internal/config"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
	"golang.org/x/crypto/bcrypt"
)

// Claims are the verified fields carried by a bearer token.
type Claims struct {
	UserID string
	Role   types.UserRole
}

// Service issues and verifies bearer tokens and handles password hashing.
type Service struct {
	cfg config.AuthConfig
}

func NewService(cfg *config.Configuration) *Service {
	return &Service{cfg: cfg.Auth}
}

func (s *Service) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ierr.NewError("password is required").
			WithHint("Password is required").
			Mark(ierr.ErrValidation)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to hash password").
			Mark(ierr.ErrSystem)
	}
	return string(hashed), nil
}

func (s *Service) ComparePassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ierr.NewError("invalid credentials").
			WithHint("Email or password is incorrect").
			Mark(ierr.ErrPermissionDenied)
	}
	return nil
}

func (s *Service) GenerateToken(userID string, role types.UserRole) (string, error) {
	expiry := time.Duration(s.cfg.TokenExpiryHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     time.Now().Add(expiry).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

func (s *Service) ValidateToken(token string) (*Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ierr.NewError("unexpected signing method").
				WithHint(fmt.Sprintf("unexpected signing method: %v", t.Header["alg"])).
				Mark(ierr.ErrPermissionDenied)
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Token parse error").
			Mark(ierr.ErrPermissionDenied)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ierr.NewError("invalid token claims").
			WithHint("Invalid token claims").
			Mark(ierr.ErrPermissionDenied)
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ierr.NewError("token missing user ID").
			WithHint("Token missing user ID").
			Mark(ierr.ErrPermissionDenied)
	}

	role := types.UserRoleUser
	if r, ok := claims["role"].(string); ok && types.UserRole(r).Validate() {
		role = types.UserRole(r)
	}

	return &Claims{UserID: userID, Role: role}, nil
}
