package service

import (
	"context"
	"strings"

	"github.com/servorahq/servora/internal/auth"
	"github.com/servorahq/servora/internal/domain/user"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string
	Name     string
	Password string
}

// AuthResult is a signed-in session: the account plus its bearer token.
type AuthResult struct {
	User  *user.User `json:"user"`
	Token string     `json:"token"`
}

// UserService handles account registration, sign-in and profile reads.
type UserService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Get(ctx context.Context, id string) (*user.User, error)
}

type userService struct {
	ServiceParams
	auth *auth.Service
}

func NewUserService(params ServiceParams, authSvc *auth.Service) UserService {
	return &userService{ServiceParams: params, auth: authSvc}
}

func (s *userService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		ID:           types.GenerateUUIDWithPrefix(types.UUIDPrefixUser),
		Email:        email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         types.UserRoleUser,
		Active:       true,
		BaseModel:    types.GetDefaultBaseModel(),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.UserRepo.Create(ctx, u); err != nil {
		return nil, err
	}

	token, err := s.auth.GenerateToken(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	s.Logger.Infow("user registered", "user_id", u.ID, "email", email)
	return &AuthResult{User: u, Token: token}, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.UserRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.NewError("invalid credentials").
				WithHint("Email or password is incorrect").
				Mark(ierr.ErrPermissionDenied)
		}
		return nil, err
	}
	if !u.Active {
		return nil, ierr.NewError("account is deactivated").
			WithHint("Contact support to restore access").
			Mark(ierr.ErrPermissionDenied)
	}
	if err := s.auth.ComparePassword(u.PasswordHash, password); err != nil {
		return nil, err
	}

	token, err := s.auth.GenerateToken(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token}, nil
}

func (s *userService) Get(ctx context.Context, id string) (*user.User, error) {
	return s.UserRepo.Get(ctx, id)
}
