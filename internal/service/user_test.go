package service

import (
	"testing"

	"github.com/servorahq/servora/internal/auth"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
)

type UserServiceSuite struct {
	testutil.BaseServiceTestSuite
	users UserService
	auth  *auth.Service
}

func TestUserService(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.auth = auth.NewService(s.GetConfig())
	s.users = NewUserService(paramsFromSuite(&s.BaseServiceTestSuite), s.auth)
}

func (s *UserServiceSuite) TestRegisterNormalizesEmailAndIssuesToken() {
	res, err := s.users.Register(s.GetContext(), RegisterRequest{
		Email:    "  Alice@Example.COM ",
		Name:     "Alice",
		Password: "s3cret-pass",
	})
	s.NoError(err)
	s.Equal("alice@example.com", res.User.Email)
	s.Equal(types.UserRoleUser, res.User.Role)
	s.True(res.User.Active)
	s.NotEqual("s3cret-pass", res.User.PasswordHash)

	claims, err := s.auth.ValidateToken(res.Token)
	s.NoError(err)
	s.Equal(res.User.ID, claims.UserID)
	s.Equal(types.UserRoleUser, claims.Role)
}

func (s *UserServiceSuite) TestRegisterRejectsDuplicateEmail() {
	_, err := s.users.Register(s.GetContext(), RegisterRequest{
		Email: "alice@example.com", Name: "Alice", Password: "s3cret-pass",
	})
	s.Require().NoError(err)

	_, err = s.users.Register(s.GetContext(), RegisterRequest{
		Email: "ALICE@example.com", Name: "Alice again", Password: "other-pass",
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *UserServiceSuite) TestRegisterRequiresPassword() {
	_, err := s.users.Register(s.GetContext(), RegisterRequest{
		Email: "alice@example.com", Name: "Alice",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *UserServiceSuite) TestLoginVerifiesPassword() {
	_, err := s.users.Register(s.GetContext(), RegisterRequest{
		Email: "alice@example.com", Name: "Alice", Password: "s3cret-pass",
	})
	s.Require().NoError(err)

	res, err := s.users.Login(s.GetContext(), "Alice@Example.com", "s3cret-pass")
	s.NoError(err)
	s.NotEmpty(res.Token)

	_, err = s.users.Login(s.GetContext(), "alice@example.com", "wrong-pass")
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))
}

func (s *UserServiceSuite) TestLoginHidesUnknownAccounts() {
	// Unknown email reads the same as a wrong password.
	_, err := s.users.Login(s.GetContext(), "nobody@example.com", "whatever")
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))
	s.False(ierr.IsNotFound(err))
}

func (s *UserServiceSuite) TestLoginRejectsDeactivatedAccount() {
	res, err := s.users.Register(s.GetContext(), RegisterRequest{
		Email: "alice@example.com", Name: "Alice", Password: "s3cret-pass",
	})
	s.Require().NoError(err)

	u := res.User
	u.Active = false
	s.Require().NoError(s.GetStores().UserRepo.Update(s.GetContext(), u))

	_, err = s.users.Login(s.GetContext(), "alice@example.com", "s3cret-pass")
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))
}
