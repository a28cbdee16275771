package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Menu struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	EventID   snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`
	SortOrder int          `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Menu) TableName() string { return "menus" }

type MenuItem struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	MenuID    snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`
	PriceIrr  int64        `gorm:"not null"`
	IsActive  bool         `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (MenuItem) TableName() string { return "menu_items" }
