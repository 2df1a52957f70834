package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/api/dto"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/service"
	"github.com/servorahq/servora/internal/types"
)

type AuthHandler struct {
	userService service.UserService
	logger      *logger.Logger
}

func NewAuthHandler(userService service.UserService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req dto.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	result, err := h.userService.Register(c.Request.Context(), service.RegisterRequest{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, authResponse(result))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	result, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, authResponse(result))
}

func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.userService.Get(c.Request.Context(), types.GetUserID(c.Request.Context()))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func authResponse(result *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		UserID: result.User.ID,
		Email:  result.User.Email,
		Name:   result.User.Name,
		Role:   result.User.Role,
		Token:  result.Token,
	}
}
