package dto

import "github.com/servorahq/servora/internal/types"

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	UserID string         `json:"user_id"`
	Email  string         `json:"email"`
	Name   string         `json:"name"`
	Role   types.UserRole `json:"role"`
	Token  string         `json:"token"`
}
