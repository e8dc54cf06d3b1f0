package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Campaign is owned by the campaign service; the settlement core only
// increments CurrentAmount when a pledge is captured.
type Campaign struct {
	ID            uint64          `gorm:"primaryKey"`
	Title         string          `gorm:"size:256;not null"`
	GoalAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CurrentAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

func (Campaign) TableName() string { return "campaign" }
