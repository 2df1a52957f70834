package dto

import "github.com/servorahq/servora/internal/domain/user"

type ForceCancelRequest struct {
	Reason string `json:"reason" binding:"required"`
	// ProcessRefund left unset defaults to refunding the unused remainder.
	ProcessRefund *bool `json:"process_refund"`
}

type ChangePlanRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type SetUserActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type UserListResponse struct {
	Items []*user.User `json:"items"`
	Total int64        `json:"total"`
}
