package model

import "time"

// OutboxEvent is written in the same transaction as the domain change it
// describes. ProcessedAt is set exclusively by the relay worker; Attempts
// counts failed publish attempts so a poison event can be quarantined.
type OutboxEvent struct {
	ID            uint64     `gorm:"primaryKey"`
	AggregateType string     `gorm:"size:64;not null"`
	AggregateID   string     `gorm:"size:64;not null"`
	EventType     string     `gorm:"size:64;not null"`
	Payload       string     `gorm:"type:jsonb;not null"`
	Attempts      int        `gorm:"not null;default:0"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	ProcessedAt   *time.Time `gorm:"index"`
}

func (OutboxEvent) TableName() string { return "event_outbox" }
