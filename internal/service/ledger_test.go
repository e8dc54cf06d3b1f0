package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/careforall/settlement/internal/logger"
	"github.com/careforall/settlement/internal/model"
	"github.com/careforall/settlement/internal/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// The payment orchestrator programs against BankAPI; the ledger must
// keep satisfying it.
var _ BankAPI = (*LedgerService)(nil)

func newLedger(t *testing.T) (*LedgerService, context.Context) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:ledger%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Account{}, &model.Hold{}, &model.Transaction{}))

	log, _ := logger.NewLogger("test")
	repository := repo.NewRepository(db, nil, log)
	return NewLedgerService(repository, log), context.Background()
}

func seedAccount(t *testing.T, svc *LedgerService, ctx context.Context, number string, balance int64) {
	_, err := svc.CreateAccount(ctx, number, "Test Holder", "holder@example.com", decimal.NewFromInt(balance))
	assert.NoError(t, err)
}

func TestLedger_AuthorizeCaptureFlow(t *testing.T) {
	svc, ctx := newLedger(t)
	seedAccount(t, svc, ctx, "ACC001", 500)

	// authorize reserves funds without touching balance
	h1, err := svc.AuthorizePayment(ctx, "ACC001", decimal.NewFromInt(100), "pledge_7")
	assert.NoError(t, err)
	assert.NotEmpty(t, h1)

	view, err := svc.GetAccount(ctx, "ACC001")
	assert.NoError(t, err)
	assert.Equal(t, "500", view.Balance.StringFixed(0))
	assert.Equal(t, "400", view.AvailableBalance.StringFixed(0))

	// second authorize that would overdraw the available balance
	_, err = svc.AuthorizePayment(ctx, "ACC001", decimal.NewFromInt(450), "pledge_8")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// capture debits balance exactly once
	txID, err := svc.CapturePayment(ctx, h1)
	assert.NoError(t, err)
	assert.NotEmpty(t, txID)

	view, err = svc.GetAccount(ctx, "ACC001")
	assert.NoError(t, err)
	assert.Equal(t, "400", view.Balance.StringFixed(0))
	assert.Equal(t, "400", view.AvailableBalance.StringFixed(0))

	// second capture observes the non-active hold and mutates nothing
	_, err = svc.CapturePayment(ctx, h1)
	assert.ErrorIs(t, err, ErrHoldNotActive)

	view, err = svc.GetAccount(ctx, "ACC001")
	assert.NoError(t, err)
	assert.Equal(t, "400", view.Balance.StringFixed(0))

	txs, err := svc.GetTransactions(ctx, "ACC001", 10)
	assert.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, model.TxTypeDebit, txs[0].Type)
	assert.Equal(t, "500", txs[0].BalanceBefore.StringFixed(0))
	assert.Equal(t, "400", txs[0].BalanceAfter.StringFixed(0))
	assert.Equal(t, "pledge_7", txs[0].Reference)
}

func TestLedger_AuthorizeIdempotentPerReference(t *testing.T) {
	svc, ctx := newLedger(t)
	seedAccount(t, svc, ctx, "ACC002", 300)

	h1, err := svc.AuthorizePayment(ctx, "ACC002", decimal.NewFromInt(50), "pledge_1")
	assert.NoError(t, err)
	h2, err := svc.AuthorizePayment(ctx, "ACC002", decimal.NewFromInt(50), "pledge_1")
	assert.NoError(t, err)
	assert.Equal(t, h1, h2, "retried authorize must return the existing hold")

	// only one hold reserves funds
	view, err := svc.GetAccount(ctx, "ACC002")
	assert.NoError(t, err)
	assert.Equal(t, "250", view.AvailableBalance.StringFixed(0))
}

func TestLedger_AuthorizeErrors(t *testing.T) {
	svc, ctx := newLedger(t)

	_, err := svc.AuthorizePayment(ctx, "NOPE", decimal.NewFromInt(10), "pledge_1")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = svc.AuthorizePayment(ctx, "NOPE", decimal.Zero, "pledge_1")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	seedAccount(t, svc, ctx, "ACC003", 100)
	assert.NoError(t, svc.repo.DB(ctx).Model(&model.Account{}).
		Where("account_number = ?", "ACC003").Update("active", false).Error)

	_, err = svc.AuthorizePayment(ctx, "ACC003", decimal.NewFromInt(10), "pledge_2")
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestLedger_ReleaseHold(t *testing.T) {
	svc, ctx := newLedger(t)
	seedAccount(t, svc, ctx, "ACC004", 200)

	h1, err := svc.AuthorizePayment(ctx, "ACC004", decimal.NewFromInt(80), "pledge_9")
	assert.NoError(t, err)

	assert.NoError(t, svc.ReleaseHold(ctx, h1))

	// funds are available again, balance untouched
	view, err := svc.GetAccount(ctx, "ACC004")
	assert.NoError(t, err)
	assert.Equal(t, "200", view.Balance.StringFixed(0))
	assert.Equal(t, "200", view.AvailableBalance.StringFixed(0))

	// releasing again reports the current status
	err = svc.ReleaseHold(ctx, h1)
	assert.ErrorIs(t, err, ErrHoldNotActive)
	assert.Contains(t, err.Error(), "already RELEASED")

	// captured holds cannot be released either
	h2, err := svc.AuthorizePayment(ctx, "ACC004", decimal.NewFromInt(30), "pledge_10")
	assert.NoError(t, err)
	_, err = svc.CapturePayment(ctx, h2)
	assert.NoError(t, err)
	err = svc.ReleaseHold(ctx, h2)
	assert.ErrorIs(t, err, ErrHoldNotActive)
	assert.Contains(t, err.Error(), "already CAPTURED")

	assert.ErrorIs(t, svc.ReleaseHold(ctx, "missing"), ErrHoldNotFound)
}

func TestLedger_CaptureExpiredHold(t *testing.T) {
	svc, ctx := newLedger(t)
	seedAccount(t, svc, ctx, "ACC005", 100)

	h1, err := svc.AuthorizePayment(ctx, "ACC005", decimal.NewFromInt(40), "pledge_11")
	assert.NoError(t, err)

	// age the hold past its deadline
	assert.NoError(t, svc.repo.DB(ctx).Model(&model.Hold{}).
		Where("hold_id = ?", h1).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = svc.CapturePayment(ctx, h1)
	assert.ErrorIs(t, err, ErrHoldExpired)

	var hold model.Hold
	assert.NoError(t, svc.repo.DB(ctx).Where("hold_id = ?", h1).First(&hold).Error)
	assert.Equal(t, model.HoldExpired, hold.Status)

	// balance never moved
	view, err := svc.GetAccount(ctx, "ACC005")
	assert.NoError(t, err)
	assert.Equal(t, "100", view.Balance.StringFixed(0))
	assert.Equal(t, "100", view.AvailableBalance.StringFixed(0))
}

func TestLedger_ExpireStaleHolds(t *testing.T) {
	svc, ctx := newLedger(t)
	seedAccount(t, svc, ctx, "ACC006", 100)

	h1, err := svc.AuthorizePayment(ctx, "ACC006", decimal.NewFromInt(10), "pledge_12")
	assert.NoError(t, err)
	h2, err := svc.AuthorizePayment(ctx, "ACC006", decimal.NewFromInt(10), "pledge_13")
	assert.NoError(t, err)

	assert.NoError(t, svc.repo.DB(ctx).Model(&model.Hold{}).
		Where("hold_id = ?", h1).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	n, err := svc.ExpireStaleHolds(ctx)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var holds []model.Hold
	assert.NoError(t, svc.repo.DB(ctx).Order("id").Find(&holds).Error)
	assert.Equal(t, model.HoldExpired, holds[0].Status)
	assert.Equal(t, model.HoldActive, holds[1].Status)
	_ = h2
}

func TestLedger_ReadsOnMissingAccount(t *testing.T) {
	svc, ctx := newLedger(t)

	view, err := svc.GetAccount(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, view)

	txs, err := svc.GetTransactions(ctx, "missing", 10)
	assert.NoError(t, err)
	assert.Empty(t, txs)

	_, err = svc.CheckBalance(ctx, "missing", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
