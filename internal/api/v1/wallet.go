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

type WalletHandler struct {
	walletService  service.WalletService
	paymentService service.PaymentService
	couponService  service.CouponService
	logger         *logger.Logger
}

func NewWalletHandler(walletService service.WalletService, paymentService service.PaymentService, couponService service.CouponService, logger *logger.Logger) *WalletHandler {
	return &WalletHandler{
		walletService:  walletService,
		paymentService: paymentService,
		couponService:  couponService,
		logger:         logger,
	}
}

func (h *WalletHandler) GetStatistics(c *gin.Context) {
	stats, err := h.walletService.GetStatistics(c.Request.Context(), types.GetUserID(c.Request.Context()))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *WalletHandler) ListTransactions(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	txns, total, err := h.walletService.ListTransactions(c.Request.Context(), types.GetUserID(c.Request.Context()), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.TransactionListResponse{Items: txns, Total: total})
}

func (h *WalletHandler) TopUp(c *gin.Context) {
	var req dto.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	txn, err := h.paymentService.CreateTopUp(c.Request.Context(), types.GetUserID(c.Request.Context()), req.Amount, req.PaymentMethod)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.TopUpResponse{
		TransactionID: txn.ID,
		OrderID:       txn.PaymentReference,
		Amount:        txn.Amount,
		Status:        string(txn.TxStatus),
	})
}

func (h *WalletHandler) RedeemCoupon(c *gin.Context) {
	var req dto.RedeemCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	txn, err := h.couponService.RedeemCredit(c.Request.Context(), req.Code, types.GetUserID(c.Request.Context()))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, txn)
}
