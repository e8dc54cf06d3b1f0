package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Pledge struct {
	ID         uint64          `gorm:"primaryKey"`
	CampaignID uint64          `gorm:"not null;index"`
	UserID     *uint64         `gorm:"index"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status     string          `gorm:"size:16;not null;default:'PENDING'"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

func (Pledge) TableName() string { return "pledge" }
