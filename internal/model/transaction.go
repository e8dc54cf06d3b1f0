package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxTypeDebit = "DEBIT"

	TxStatusCompleted = "COMPLETED"
)

// Transaction is an append-only audit record. Rows are written exactly
// once at capture time and never updated.
type Transaction struct {
	ID            uint64          `gorm:"primaryKey"`
	TransactionID string          `gorm:"size:36;not null;uniqueIndex"`
	AccountID     uint64          `gorm:"not null;index"`
	Type          string          `gorm:"size:16;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Reference     string          `gorm:"size:64"`
	Status        string          `gorm:"size:16;not null;default:'COMPLETED'"`
	Description   string          `gorm:"size:256"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
}

func (Transaction) TableName() string { return "bank_transaction" }
