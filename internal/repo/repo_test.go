package repo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/careforall/settlement/internal/logger"
	"github.com/careforall/settlement/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T, models ...interface{}) (*Repository, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:repo%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(models...))
	return NewRepository(db, nil, must(logger.NewLogger("test"))), db
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}

func TestOptimisticLock_ConcurrentBalanceUpdate(t *testing.T) {
	repo, db := newTestRepo(t, &model.Account{})

	db.Create(&model.Account{ID: 1, AccountNumber: "ACC001", HolderName: "A", Email: "a@x",
		Balance: decimal.NewFromInt(100), Currency: "USD", Active: true})

	wg := sync.WaitGroup{}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = db.Transaction(func(tx *gorm.DB) error {
				a, err := repo.GetAccountForUpdate(context.Background(), tx, "ACC001")
				if err != nil {
					return err
				}
				return repo.UpdateAccountBalance(context.Background(), tx, a.ID,
					a.Balance.Sub(decimal.NewFromInt(10)), a.Version)
			})
		}()
	}
	wg.Wait()

	var final model.Account
	assert.NoError(t, db.First(&final, 1).Error)
	// the version check lets exactly one writer through
	assert.Equal(t, "90", final.Balance.StringFixed(0))
	assert.EqualValues(t, 1, final.Version)
}

func TestHoldStatusGate_SingleWriterWins(t *testing.T) {
	repo, db := newTestRepo(t, &model.Hold{})

	db.Create(&model.Hold{ID: 1, HoldID: "h-1", AccountID: 1,
		Amount: decimal.NewFromInt(10), Reference: "pledge_1",
		Status: model.HoldActive, ExpiresAt: time.Now().Add(time.Hour)})

	ctx := context.Background()
	captured, err := repo.TransitionHold(ctx, db, 1, model.HoldActive, model.HoldCaptured)
	assert.NoError(t, err)
	assert.True(t, captured)

	// the loser observes a non-ACTIVE status and fails cleanly
	released, err := repo.TransitionHold(ctx, db, 1, model.HoldActive, model.HoldReleased)
	assert.NoError(t, err)
	assert.False(t, released)

	var h model.Hold
	assert.NoError(t, db.First(&h, 1).Error)
	assert.Equal(t, model.HoldCaptured, h.Status)
}

func TestClaimOutboxBatch_OrderAndAttemptCap(t *testing.T) {
	repo, db := newTestRepo(t, &model.OutboxEvent{})

	now := time.Now()
	db.Create(&model.OutboxEvent{AggregateType: "pledge", AggregateID: "1",
		EventType: "pledge.created", Payload: "{}", CreatedAt: now.Add(-time.Second)})
	db.Create(&model.OutboxEvent{AggregateType: "pledge", AggregateID: "2",
		EventType: "pledge.created", Payload: "{}", Attempts: 10, CreatedAt: now.Add(-2 * time.Second)})
	processed := now
	db.Create(&model.OutboxEvent{AggregateType: "pledge", AggregateID: "3",
		EventType: "pledge.created", Payload: "{}", CreatedAt: now.Add(-3 * time.Second), ProcessedAt: &processed})

	evts, err := repo.ClaimOutboxBatch(context.Background(), db, 10, 10)
	assert.NoError(t, err)
	// processed and quarantined rows are both invisible to the claim
	assert.Len(t, evts, 1)
	assert.Equal(t, "1", evts[0].AggregateID)
}
