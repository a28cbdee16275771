// Package domain contains food selections and how their cost is shared.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type ShareType string

const (
	ShareTypeEqual    ShareType = "EQUAL"
	ShareTypeWeighted ShareType = "WEIGHTED"
)

// Selection is an order of Quantity units of one menu item.
type Selection struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	EventID         snowflake.ID `gorm:"not null;index"`
	MenuItemID      snowflake.ID `gorm:"not null;index"`
	Quantity        int64        `gorm:"not null"`
	CreatedByUserID snowflake.ID `gorm:"not null;index"`
	Note            *string      `gorm:"type:text"`
	CreatedAt       time.Time    `gorm:"not null"`
	UpdatedAt       time.Time    `gorm:"not null"`
}

func (Selection) TableName() string { return "selections" }

// SelectionAllocation names one participant sharing a selection. Only EQUAL
// shares are priced; ShareWeight is carried for WEIGHTED rows.
type SelectionAllocation struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	SelectionID   snowflake.ID `gorm:"not null;index"`
	ParticipantID snowflake.ID `gorm:"not null;index"`
	ShareType     ShareType    `gorm:"type:text;not null;default:EQUAL"`
	ShareWeight   *int64
	CreatedAt     time.Time `gorm:"not null"`
}

func (SelectionAllocation) TableName() string { return "selection_allocations" }
