package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careforall/settlement/internal/model"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepositoryInterface restricts Repo methods so services can be unit
// tested against a narrow surface.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	GetAccountByNumber(ctx context.Context, tx *gorm.DB, accountNumber string) (*model.Account, error)
	GetAccountForUpdate(ctx context.Context, tx *gorm.DB, accountNumber string) (*model.Account, error)
	CreateAccount(ctx context.Context, tx *gorm.DB, a *model.Account) error
	UpdateAccountBalance(ctx context.Context, tx *gorm.DB, accountID uint64, newBalance decimal.Decimal, oldVersion uint64) error

	FindActiveHold(ctx context.Context, tx *gorm.DB, accountID uint64, reference string) (*model.Hold, error)
	GetHoldForUpdate(ctx context.Context, tx *gorm.DB, holdID string) (*model.Hold, error)
	SumActiveHolds(ctx context.Context, tx *gorm.DB, accountID uint64) (decimal.Decimal, error)
	CreateHold(ctx context.Context, tx *gorm.DB, h *model.Hold) error
	TransitionHold(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (bool, error)
	ExpireHoldsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	ListTransactions(ctx context.Context, accountID uint64, limit int) ([]model.Transaction, error)

	GetPledgeForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Pledge, error)
	CreatePledge(ctx context.Context, tx *gorm.DB, p *model.Pledge) error
	UpdatePledgeStatus(ctx context.Context, tx *gorm.DB, id uint64, status string) error

	IncrementCampaignAmount(ctx context.Context, tx *gorm.DB, campaignID uint64, amount decimal.Decimal) (decimal.Decimal, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	ClaimOutboxBatch(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, tx *gorm.DB, id uint64) error
	BumpOutboxAttempts(ctx context.Context, ids []uint64) error

	InvalidateCampaignCache(ctx context.Context, campaignID uint64) error
}

// Repository implements RepositoryInterface over gorm + redis.
type Repository struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func (r *Repository) GetAccountByNumber(ctx context.Context, tx *gorm.DB, accountNumber string) (*model.Account, error) {
	var a model.Account
	if err := tx.WithContext(ctx).Where("account_number = ?", accountNumber).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountForUpdate locks the account row. The authorize path holds
// this lock across the active-hold sum and the hold insert so two
// concurrent authorizes cannot both pass the available-balance check.
func (r *Repository) GetAccountForUpdate(ctx context.Context, tx *gorm.DB, accountNumber string) (*model.Account, error) {
	var a model.Account
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_number = ?", accountNumber).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) CreateAccount(ctx context.Context, tx *gorm.DB, a *model.Account) error {
	return tx.WithContext(ctx).Create(a).Error
}

// UpdateAccountBalance with optimistic lock on the version column.
func (r *Repository) UpdateAccountBalance(ctx context.Context, tx *gorm.DB, accountID uint64, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", accountID, oldVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("optimistic lock conflict")
	}
	return nil
}

func (r *Repository) FindActiveHold(ctx context.Context, tx *gorm.DB, accountID uint64, reference string) (*model.Hold, error) {
	var h model.Hold
	err := tx.WithContext(ctx).
		Where("account_id = ? AND reference = ? AND status = ?", accountID, reference, model.HoldActive).
		First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *Repository) GetHoldForUpdate(ctx context.Context, tx *gorm.DB, holdID string) (*model.Hold, error) {
	var h model.Hold
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("hold_id = ?", holdID).First(&h).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *Repository) SumActiveHolds(ctx context.Context, tx *gorm.DB, accountID uint64) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.WithContext(ctx).
		Model(&model.Hold{}).
		Select("SUM(amount)").
		Where("account_id = ? AND status = ?", accountID, model.HoldActive).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *Repository) CreateHold(ctx context.Context, tx *gorm.DB, h *model.Hold) error {
	return tx.WithContext(ctx).Create(h).Error
}

// TransitionHold moves a hold out of one status conditionally. The
// status column acts as a single-writer gate: whichever caller's update
// matches wins, everyone else sees rows affected 0.
func (r *Repository) TransitionHold(ctx context.Context, tx *gorm.DB, id uint64, from, to string) (bool, error) {
	now := time.Now()
	res := tx.WithContext(ctx).
		Model(&model.Hold{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "completed_at": &now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpireHoldsBefore flips ACTIVE holds whose deadline passed. Used by
// the periodic sweeper; capture also expires lazily.
func (r *Repository) ExpireHoldsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&model.Hold{}).
		Where("status = ? AND expires_at < ?", model.HoldActive, cutoff).
		Updates(map[string]interface{}{"status": model.HoldExpired, "completed_at": &now})
	return res.RowsAffected, res.Error
}

func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

func (r *Repository) ListTransactions(ctx context.Context, accountID uint64, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *Repository) GetPledgeForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Pledge, error) {
	var p model.Pledge
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreatePledge(ctx context.Context, tx *gorm.DB, p *model.Pledge) error {
	return tx.WithContext(ctx).Create(p).Error
}

func (r *Repository) UpdatePledgeStatus(ctx context.Context, tx *gorm.DB, id uint64, status string) error {
	return tx.WithContext(ctx).
		Model(&model.Pledge{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

func (r *Repository) IncrementCampaignAmount(ctx context.Context, tx *gorm.DB, campaignID uint64, amount decimal.Decimal) (decimal.Decimal, error) {
	res := tx.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]interface{}{
			"current_amount": gorm.Expr("current_amount + ?", amount),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, gorm.ErrRecordNotFound
	}
	var c model.Campaign
	if err := tx.WithContext(ctx).Where("id = ?", campaignID).First(&c).Error; err != nil {
		return decimal.Zero, err
	}
	return c.CurrentAmount, nil
}

// CreateOutboxEvent writes event. Must be called inside the same
// transaction as the domain change it describes.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// ClaimOutboxBatch selects unprocessed events oldest-first, skipping
// rows locked by a concurrent relay worker and rows past the attempt
// cap. SKIP LOCKED needs postgres; the sqlite test dialect falls back to
// a plain select.
func (r *Repository) ClaimOutboxBatch(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]model.OutboxEvent, error) {
	q := tx.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var evts []model.OutboxEvent
	err := q.
		Where("processed_at IS NULL AND attempts < ?", maxAttempts).
		Order("created_at").
		Limit(limit).
		Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed_at inside the relay transaction so
// a crash before commit leaves the row claimable again.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, tx *gorm.DB, id uint64) error {
	now := time.Now()
	return tx.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Update("processed_at", &now).Error
}

// BumpOutboxAttempts runs outside the rolled-back batch transaction so
// the failure count survives.
func (r *Repository) BumpOutboxAttempts(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id IN ?", ids).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

// InvalidateCampaignCache drops the per-campaign key and any listing
// pages that embed totals.
func (r *Repository) InvalidateCampaignCache(ctx context.Context, campaignID uint64) error {
	if err := r.rdb.Del(ctx, fmt.Sprintf("campaign:%d", campaignID)).Err(); err != nil {
		return err
	}
	keys, err := r.rdb.Keys(ctx, "campaigns:list:*").Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.rdb.Del(ctx, keys...).Err()
	}
	return nil
}
