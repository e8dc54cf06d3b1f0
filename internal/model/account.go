package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID            uint64          `gorm:"primaryKey"`
	AccountNumber string          `gorm:"size:64;not null;uniqueIndex"`
	HolderName    string          `gorm:"size:128;not null"`
	Email         string          `gorm:"size:128;not null"`
	Balance       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	Currency      string          `gorm:"size:8;not null;default:'USD'"`
	Active        bool            `gorm:"not null;default:true"`
	Version       uint64          `gorm:"not null;default:0"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

func (Account) TableName() string { return "bank_account" }
