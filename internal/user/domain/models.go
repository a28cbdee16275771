package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is the boundary row of an account; credentials live elsewhere.
type User struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Email       string       `gorm:"type:text;not null;uniqueIndex"`
	DisplayName string       `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (User) TableName() string { return "users" }
