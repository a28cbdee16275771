package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SplitMethod string

// SplitEqualAllAttending is the only supported method.
const SplitEqualAllAttending SplitMethod = "EQUAL_ALL_ATTENDING"

// SharedCost is an event-level expense such as a venue fee.
type SharedCost struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	EventID     snowflake.ID `gorm:"not null;index"`
	Name        string       `gorm:"type:text;not null"`
	AmountIrr   int64        `gorm:"not null"`
	SplitMethod SplitMethod  `gorm:"type:text;not null;default:EQUAL_ALL_ATTENDING"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (SharedCost) TableName() string { return "shared_costs" }
