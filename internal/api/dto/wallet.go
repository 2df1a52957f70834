package dto

import "github.com/servorahq/servora/internal/domain/wallet"

type TopUpRequest struct {
	// Amount is in minor units.
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

type TopUpResponse struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

type AdjustBalanceRequest struct {
	// Delta is signed; negative values remove credit.
	Delta       int64  `json:"delta" binding:"required"`
	Description string `json:"description" binding:"required"`
}

type RedeemCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

type TransactionListResponse struct {
	Items []*wallet.Transaction `json:"items"`
	Total int64                 `json:"total"`
}
