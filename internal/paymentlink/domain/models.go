// Package domain models the payment-link boundary. Issuing and settling
// links happens elsewhere; lifecycle resets only inspect and clear them.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusOpen Status = "OPEN"
	StatusPaid Status = "PAID"
	StatusVoid Status = "VOID"
)

type PaymentLink struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	EventID         snowflake.ID `gorm:"not null;index"`
	PayorUserID     snowflake.ID `gorm:"not null;index"`
	Token           string       `gorm:"type:text;not null;uniqueIndex"`
	LockedAmountIrr int64        `gorm:"not null"`
	Status          Status       `gorm:"type:text;not null;default:OPEN"`
	CreatedAt       time.Time    `gorm:"not null"`
	PaidAt          *time.Time
}

func (PaymentLink) TableName() string { return "payment_links" }

type Repository interface {
	HasPaid(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (bool, error)
	DeleteForEvent(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error)
}
