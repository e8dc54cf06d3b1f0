package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careforall/settlement/internal/model"
	"github.com/careforall/settlement/internal/repo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HoldTTL is how long an authorization reserves funds before it
// auto-expires.
const HoldTTL = 24 * time.Hour

// LedgerService owns account balances, holds and the append-only
// transaction log. Authorize reserves funds without touching balance;
// capture is the only operation that debits, and it commits the
// transaction row, the balance change and the hold status in one
// database transaction.
type LedgerService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewLedgerService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, log: logger}
}

// AccountView is the read projection returned by GetAccount.
type AccountView struct {
	AccountNumber    string          `json:"accountNumber"`
	HolderName       string          `json:"accountHolderName"`
	Email            string          `json:"email"`
	Balance          decimal.Decimal `json:"balance"`
	HeldAmount       decimal.Decimal `json:"heldAmount"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Currency         string          `json:"currency"`
	Active           bool            `json:"isActive"`
}

// CreateAccount opens an account with an opening balance. Used by
// seeding and the admin endpoint.
func (s *LedgerService) CreateAccount(ctx context.Context, number, holder, email string, opening decimal.Decimal) (*model.Account, error) {
	if opening.IsNegative() {
		return nil, ErrInvalidAmount
	}
	a := &model.Account{
		AccountNumber: number,
		HolderName:    holder,
		Email:         email,
		Balance:       opening,
		Currency:      "USD",
		Active:        true,
	}
	if err := s.repo.CreateAccount(ctx, s.repo.DB(ctx), a); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckBalance computes available = balance - sum(active holds) and
// returns ErrInsufficientFunds alongside the available figure when the
// requested amount does not fit.
func (s *LedgerService) CheckBalance(ctx context.Context, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	db := s.repo.DB(ctx)
	account, err := s.repo.GetAccountByNumber(ctx, db, accountNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	if !account.Active {
		return decimal.Zero, ErrAccountInactive
	}
	held, err := s.repo.SumActiveHolds(ctx, db, account.ID)
	if err != nil {
		return decimal.Zero, err
	}
	available := account.Balance.Sub(held)
	if available.LessThan(amount) {
		return available, ErrInsufficientFunds
	}
	return available, nil
}

// AuthorizePayment places a hold on funds. Repeated calls with the same
// reference return the existing hold unchanged, so provider retries are
// safe. The account row lock serializes the available-balance check
// against concurrent authorizes on the same account.
func (s *LedgerService) AuthorizePayment(ctx context.Context, accountNumber string, amount decimal.Decimal, reference string) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidAmount
	}
	var holdID string
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.GetAccountForUpdate(ctx, tx, accountNumber)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if !account.Active {
			return ErrAccountInactive
		}

		existing, err := s.repo.FindActiveHold(ctx, tx, account.ID, reference)
		if err == nil {
			holdID = existing.HoldID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		held, err := s.repo.SumActiveHolds(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		available := account.Balance.Sub(held)
		if available.LessThan(amount) {
			return ErrInsufficientFunds
		}

		h := &model.Hold{
			HoldID:    uuid.NewString(),
			AccountID: account.ID,
			Amount:    amount,
			Reference: reference,
			Status:    model.HoldActive,
			ExpiresAt: time.Now().Add(HoldTTL),
		}
		if err := s.repo.CreateHold(ctx, tx, h); err != nil {
			return err
		}
		holdID = h.HoldID
		return nil
	})
	if err != nil {
		return "", err
	}
	s.log.Infof("payment authorized: hold=%s account=%s", holdID, accountNumber)
	return holdID, nil
}

// CapturePayment converts a hold into a ledger debit. The transaction
// row insert, the balance decrement and the hold transition commit
// together or not at all. Expiry is checked lazily here.
func (s *LedgerService) CapturePayment(ctx context.Context, holdID string) (string, error) {
	var transactionID string
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		hold, err := s.repo.GetHoldForUpdate(ctx, tx, holdID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHoldNotFound
			}
			return err
		}
		if hold.Status != model.HoldActive {
			return fmt.Errorf("hold is %s: %w", hold.Status, ErrHoldNotActive)
		}
		if time.Now().After(hold.ExpiresAt) {
			if _, err := s.repo.TransitionHold(ctx, tx, hold.ID, model.HoldActive, model.HoldExpired); err != nil {
				return err
			}
			return ErrHoldExpired
		}

		var account model.Account
		if err := tx.WithContext(ctx).Where("id = ?", hold.AccountID).First(&account).Error; err != nil {
			return err
		}
		balanceBefore := account.Balance
		balanceAfter := balanceBefore.Sub(hold.Amount)

		t := &model.Transaction{
			TransactionID: uuid.NewString(),
			AccountID:     account.ID,
			Type:          model.TxTypeDebit,
			Amount:        hold.Amount,
			BalanceBefore: balanceBefore,
			BalanceAfter:  balanceAfter,
			Reference:     hold.Reference,
			Status:        model.TxStatusCompleted,
			Description:   "Payment capture for " + hold.Reference,
		}
		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		if err := s.repo.UpdateAccountBalance(ctx, tx, account.ID, balanceAfter, account.Version); err != nil {
			return err
		}
		moved, err := s.repo.TransitionHold(ctx, tx, hold.ID, model.HoldActive, model.HoldCaptured)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("hold is no longer active: %w", ErrHoldNotActive)
		}
		transactionID = t.TransactionID
		return nil
	})
	if err != nil {
		return "", err
	}
	s.log.Infof("payment captured: hold=%s transaction=%s", holdID, transactionID)
	return transactionID, nil
}

// ReleaseHold cancels an authorization. Balance never moves here; funds
// were only reserved, not debited.
func (s *LedgerService) ReleaseHold(ctx context.Context, holdID string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		hold, err := s.repo.GetHoldForUpdate(ctx, tx, holdID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHoldNotFound
			}
			return err
		}
		if hold.Status != model.HoldActive {
			return fmt.Errorf("hold is already %s: %w", hold.Status, ErrHoldNotActive)
		}
		moved, err := s.repo.TransitionHold(ctx, tx, hold.ID, model.HoldActive, model.HoldReleased)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("hold is no longer active: %w", ErrHoldNotActive)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Infof("hold released: %s", holdID)
	return nil
}

// GetAccount returns nil, nil when the account does not exist.
func (s *LedgerService) GetAccount(ctx context.Context, accountNumber string) (*AccountView, error) {
	db := s.repo.DB(ctx)
	account, err := s.repo.GetAccountByNumber(ctx, db, accountNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	held, err := s.repo.SumActiveHolds(ctx, db, account.ID)
	if err != nil {
		return nil, err
	}
	return &AccountView{
		AccountNumber:    account.AccountNumber,
		HolderName:       account.HolderName,
		Email:            account.Email,
		Balance:          account.Balance,
		HeldAmount:       held,
		AvailableBalance: account.Balance.Sub(held),
		Currency:         account.Currency,
		Active:           account.Active,
	}, nil
}

// GetTransactions returns an empty slice when the account does not
// exist.
func (s *LedgerService) GetTransactions(ctx context.Context, accountNumber string, limit int) ([]model.Transaction, error) {
	account, err := s.repo.GetAccountByNumber(ctx, s.repo.DB(ctx), accountNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []model.Transaction{}, nil
		}
		return nil, err
	}
	return s.repo.ListTransactions(ctx, account.ID, limit)
}

// ExpireStaleHolds is the periodic sweep. Lazy expiry at capture keeps
// correctness either way; the sweep just stops expired-but-forgotten
// holds from tying up available balance.
func (s *LedgerService) ExpireStaleHolds(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireHoldsBefore(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Infof("expired %d stale holds", n)
	}
	return n, nil
}
