package service

import (
	"testing"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/testutil"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/suite"
)

type WalletServiceSuite struct {
	testutil.BaseServiceTestSuite
	walletService WalletService
}

func TestWalletService(t *testing.T) {
	suite.Run(t, new(WalletServiceSuite))
}

func (s *WalletServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.walletService = NewWalletService(paramsFromSuite(&s.BaseServiceTestSuite))
}

func (s *WalletServiceSuite) TestDeductHappyPath() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 10000)

	txn, err := s.walletService.Deduct(s.GetContext(), DebitRequest{
		UserID:      "user_1",
		Amount:      2500,
		Type:        types.TransactionTypeSubscription,
		Description: "monthly charge",
	})
	s.NoError(err)
	s.Equal(types.TransactionStatusCompleted, txn.TxStatus)
	s.Equal(int64(10000), txn.BalanceBefore)
	s.Equal(int64(7500), txn.BalanceAfter)

	balance, err := s.walletService.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(7500), balance)

	u, err := s.GetStores().UserRepo.Get(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(2500), u.TotalSpent)
}

func (s *WalletServiceSuite) TestDeductInsufficientCredit() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 100)

	_, err := s.walletService.Deduct(s.GetContext(), DebitRequest{
		UserID: "user_1",
		Amount: 500,
		Type:   types.TransactionTypeSubscription,
	})
	s.Error(err)
	s.True(ierr.IsInsufficientCredit(err))

	// Balance untouched, no completed ledger entry appended.
	balance, err := s.walletService.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(100), balance)

	count, err := s.GetStores().WalletRepo.CountByUser(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(0), count)
}

func (s *WalletServiceSuite) TestDeductIdempotency() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 10000)

	req := DebitRequest{
		UserID:         "user_1",
		Amount:         3000,
		Type:           types.TransactionTypeSubscription,
		IdempotencyKey: "renewal:sub_1:2026-08-01T00:00:00Z",
	}
	first, err := s.walletService.Deduct(s.GetContext(), req)
	s.NoError(err)

	second, err := s.walletService.Deduct(s.GetContext(), req)
	s.NoError(err)
	s.Equal(first.ID, second.ID)

	balance, err := s.walletService.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(7000), balance)
}

func (s *WalletServiceSuite) TestDeductRetriesFailedCharge() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 0)
	key := "renewal:sub_1:2026-08-01T00:00:00Z"

	req := DebitRequest{
		UserID:         "user_1",
		Amount:         3000,
		Type:           types.TransactionTypeSubscription,
		IdempotencyKey: key,
	}
	failed, err := s.walletService.RecordFailedCharge(s.GetContext(), req, "insufficient credit")
	s.NoError(err)
	s.Equal(types.TransactionStatusFailed, failed.TxStatus)

	// Top up, then retry the same charge; the failed row settles in place
	// rather than inserting a duplicate under the unique key.
	_, err = s.walletService.Credit(s.GetContext(), CreditRequest{
		UserID: "user_1",
		Amount: 5000,
		Type:   types.TransactionTypeTopUp,
	})
	s.NoError(err)

	settled, err := s.walletService.Deduct(s.GetContext(), req)
	s.NoError(err)
	s.Equal(failed.ID, settled.ID)
	s.Equal(types.TransactionStatusCompleted, settled.TxStatus)
	s.Equal(int64(5000), settled.BalanceBefore)
	s.Equal(int64(2000), settled.BalanceAfter)
	s.Empty(settled.FailureReason)
	s.NotNil(settled.CompletedAt)
}

func (s *WalletServiceSuite) TestCreditAccumulatesTopUp() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 0)

	_, err := s.walletService.Credit(s.GetContext(), CreditRequest{
		UserID: "user_1",
		Amount: 4000,
		Type:   types.TransactionTypeTopUp,
	})
	s.NoError(err)
	_, err = s.walletService.Credit(s.GetContext(), CreditRequest{
		UserID: "user_1",
		Amount: 1500,
		Type:   types.TransactionTypeRefund,
	})
	s.NoError(err)

	stats, err := s.walletService.GetStatistics(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(5500), stats.Balance)
	s.Equal(int64(4000), stats.TotalTopUp)
	s.Equal(int64(1500), stats.TotalRefunded)
	s.Equal(int64(2), stats.TransactionCount)
}

func (s *WalletServiceSuite) TestRefundRestoresTotalSpent() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 10000)

	_, err := s.walletService.Deduct(s.GetContext(), DebitRequest{
		UserID: "user_1",
		Amount: 4000,
		Type:   types.TransactionTypeSubscription,
	})
	s.Require().NoError(err)

	_, err = s.walletService.Credit(s.GetContext(), CreditRequest{
		UserID: "user_1",
		Amount: 3000,
		Type:   types.TransactionTypeRefund,
	})
	s.NoError(err)

	u, err := s.GetStores().UserRepo.Get(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(1000), u.TotalSpent)

	// Over-refunding floors the counter at zero instead of going negative.
	_, err = s.walletService.Credit(s.GetContext(), CreditRequest{
		UserID: "user_1",
		Amount: 2000,
		Type:   types.TransactionTypeRefund,
	})
	s.NoError(err)

	u, err = s.GetStores().UserRepo.Get(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(0), u.TotalSpent)
}

func (s *WalletServiceSuite) TestAdminAdjustFloorsAtZero() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 1000)

	_, err := s.walletService.AdminAdjust(s.GetContext(), "user_1", -2000, "user_admin", "correction")
	s.Error(err)
	s.True(ierr.IsInsufficientCredit(err))

	txn, err := s.walletService.AdminAdjust(s.GetContext(), "user_1", -400, "user_admin", "correction")
	s.NoError(err)
	s.Equal(int64(400), txn.Amount)
	s.Equal("user_admin", txn.ProcessedBy)

	balance, err := s.walletService.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(600), balance)
}

func (s *WalletServiceSuite) TestTopUpLifecycle() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 0)

	pending, err := s.walletService.InitiateTopUp(s.GetContext(), TopUpRequest{
		UserID:           "user_1",
		Amount:           10000,
		PaymentMethod:    "midtrans",
		PaymentReference: "topup-abc123",
	})
	s.NoError(err)
	s.Equal(types.TransactionStatusPending, pending.TxStatus)

	// Pending entries never move the balance.
	balance, err := s.walletService.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(0), balance)

	settled, err := s.walletService.CompleteTopUp(s.GetContext(), "topup-abc123")
	s.NoError(err)
	s.Equal(types.TransactionStatusCompleted, settled.TxStatus)

	// Gateway retries deliver the settlement twice; the second is a no-op.
	again, err := s.walletService.CompleteTopUp(s.GetContext(), "topup-abc123")
	s.NoError(err)
	s.Equal(settled.ID, again.ID)

	balance, err = s.walletService.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(10000), balance)
}

func (s *WalletServiceSuite) TestFailTopUp() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 0)

	_, err := s.walletService.InitiateTopUp(s.GetContext(), TopUpRequest{
		UserID:           "user_1",
		Amount:           10000,
		PaymentReference: "topup-dead",
	})
	s.NoError(err)

	s.NoError(s.walletService.FailTopUp(s.GetContext(), "topup-dead", "expired"))

	txn, err := s.GetStores().WalletRepo.GetTransactionByReference(s.GetContext(), "topup-dead")
	s.NoError(err)
	s.Equal(types.TransactionStatusFailed, txn.TxStatus)
	s.Equal("expired", txn.FailureReason)

	balance, err := s.walletService.GetBalance(s.GetContext(), "user_1")
	s.NoError(err)
	s.Equal(int64(0), balance)
}

func (s *WalletServiceSuite) TestLedgerChainStaysContiguous() {
	seedUser(&s.BaseServiceTestSuite, "user_1", 0)

	amounts := []int64{5000, 1200, 300}
	_, err := s.walletService.Credit(s.GetContext(), CreditRequest{
		UserID: "user_1", Amount: amounts[0], Type: types.TransactionTypeTopUp,
	})
	s.NoError(err)
	_, err = s.walletService.Deduct(s.GetContext(), DebitRequest{
		UserID: "user_1", Amount: amounts[1], Type: types.TransactionTypeSubscription,
	})
	s.NoError(err)
	_, err = s.walletService.Deduct(s.GetContext(), DebitRequest{
		UserID: "user_1", Amount: amounts[2], Type: types.TransactionTypeUpgrade,
	})
	s.NoError(err)

	txns, total, err := s.walletService.ListTransactions(s.GetContext(), "user_1", types.Filter{Order: "desc"})
	s.NoError(err)
	s.Equal(int64(3), total)
	s.Len(txns, 3)

	// Newest first: each entry's BalanceBefore equals the next-older entry's
	// BalanceAfter.
	for i := 0; i < len(txns)-1; i++ {
		s.Equal(txns[i+1].BalanceAfter, txns[i].BalanceBefore)
	}
	s.Equal(int64(3500), txns[0].BalanceAfter)
}
