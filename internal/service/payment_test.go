package service

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
)

const testServerKey = "SB-Mid-server-test"

type PaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	payments PaymentService
	wallet   WalletService
	gateway  *httptest.Server

	// gatewayStatus is what the fake gateway reports for every status
	// re-check; empty disables the endpoint.
	gatewayStatus string
}

func TestPaymentService(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	s.gateway = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.gatewayStatus == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"transaction_status":%q}`, s.gatewayStatus)
	}))

	cfg := s.GetConfig()
	cfg.Payment.MidtransServerKey = testServerKey
	cfg.Payment.MidtransBaseURL = s.gateway.URL

	params := paramsFromSuite(&s.BaseServiceTestSuite)
	s.wallet = NewWalletService(params)
	s.payments = NewPaymentService(params, s.wallet)
}

func (s *PaymentServiceSuite) TearDownTest() {
	s.gateway.Close()
}

func signedNotification(orderID, statusCode, grossAmount, txStatus string) PaymentNotification {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + testServerKey))
	return PaymentNotification{
		OrderID:           orderID,
		StatusCode:        statusCode,
		GrossAmount:       grossAmount,
		SignatureKey:      hex.EncodeToString(sum[:]),
		TransactionStatus: txStatus,
	}
}

func (s *PaymentServiceSuite) pendingTopUp(userID string, amount int64) string {
	seedUser(&s.BaseServiceTestSuite, userID, 0)
	txn, err := s.payments.CreateTopUp(s.GetContext(), userID, amount, "midtrans")
	s.Require().NoError(err)
	s.Require().Equal(types.TransactionStatusPending, txn.TxStatus)
	return txn.PaymentReference
}

func (s *PaymentServiceSuite) TestSettlementCreditsWallet() {
	orderID := s.pendingTopUp("user_1", 150000)
	s.gatewayStatus = "settlement"

	notif := signedNotification(orderID, "200", "1500.00", "settlement")
	s.NoError(s.payments.HandleNotification(s.GetContext(), notif))

	balance, err := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(150000), balance)

	// Replayed webhooks settle once.
	s.NoError(s.payments.HandleNotification(s.GetContext(), notif))
	balance, _ = s.wallet.GetBalance(s.GetContext(), "user_1")
	s.Equal(int64(150000), balance)
}

func (s *PaymentServiceSuite) TestBadSignatureRejectedBeforeAnyLookup() {
	orderID := s.pendingTopUp("user_1", 150000)

	notif := signedNotification(orderID, "200", "1500.00", "settlement")
	notif.SignatureKey = "forged"

	err := s.payments.HandleNotification(s.GetContext(), notif)
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))

	balance, _ := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.Zero(balance)
}

func (s *PaymentServiceSuite) TestGatewayStatusOverridesWebhookBody() {
	orderID := s.pendingTopUp("user_1", 150000)

	// The webhook claims settlement but the gateway says the order expired.
	s.gatewayStatus = "expire"
	notif := signedNotification(orderID, "200", "1500.00", "settlement")
	s.NoError(s.payments.HandleNotification(s.GetContext(), notif))

	txn, err := s.GetStores().WalletRepo.GetTransactionByReference(s.GetContext(), orderID)
	s.NoError(err)
	s.Equal(types.TransactionStatusFailed, txn.TxStatus)

	balance, _ := s.wallet.GetBalance(s.GetContext(), "user_1")
	s.Zero(balance)
}

func (s *PaymentServiceSuite) TestFraudChallengeFailsTopUp() {
	orderID := s.pendingTopUp("user_1", 150000)
	s.gatewayStatus = "capture"

	notif := signedNotification(orderID, "200", "1500.00", "capture")
	notif.FraudStatus = "challenge"
	s.NoError(s.payments.HandleNotification(s.GetContext(), notif))

	txn, err := s.GetStores().WalletRepo.GetTransactionByReference(s.GetContext(), orderID)
	s.NoError(err)
	s.Equal(types.TransactionStatusFailed, txn.TxStatus)
}

func (s *PaymentServiceSuite) TestPendingStatusLeavesTopUpOpen() {
	orderID := s.pendingTopUp("user_1", 150000)
	s.gatewayStatus = "pending"

	notif := signedNotification(orderID, "201", "1500.00", "pending")
	s.NoError(s.payments.HandleNotification(s.GetContext(), notif))

	txn, err := s.GetStores().WalletRepo.GetTransactionByReference(s.GetContext(), orderID)
	s.NoError(err)
	s.Equal(types.TransactionStatusPending, txn.TxStatus)
}
