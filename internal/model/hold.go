package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Hold statuses. A hold only ever leaves ACTIVE once; the transition is
// guarded by a conditional update on the status column.
const (
	HoldActive   = "ACTIVE"
	HoldCaptured = "CAPTURED"
	HoldReleased = "RELEASED"
	HoldExpired  = "EXPIRED"
)

type Hold struct {
	ID          uint64          `gorm:"primaryKey"`
	HoldID      string          `gorm:"size:36;not null;uniqueIndex"`
	AccountID   uint64          `gorm:"not null;index:idx_hold_account_ref"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Reference   string          `gorm:"size:64;not null;index:idx_hold_account_ref"`
	Status      string          `gorm:"size:16;not null;default:'ACTIVE';index"`
	ExpiresAt   time.Time       `gorm:"not null"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	CompletedAt *time.Time
}

func (Hold) TableName() string { return "bank_hold" }
