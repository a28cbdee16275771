// Package domain contains participants, attendance and payor routing rows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type AttendanceStatus string

const (
	AttendanceAttending AttendanceStatus = "ATTENDING"
	AttendanceTentative AttendanceStatus = "TENTATIVE"
	AttendanceDeclined  AttendanceStatus = "DECLINED"
)

// Participant is a person who can attend events. OwnerUserID is the account
// that represents them, e.g. a parent for a child.
type Participant struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OwnerUserID snowflake.ID `gorm:"not null;index"`
	DisplayName string       `gorm:"type:text;not null"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (Participant) TableName() string { return "participants" }

type EventParticipant struct {
	EventID          snowflake.ID     `gorm:"primaryKey"`
	ParticipantID    snowflake.ID     `gorm:"primaryKey"`
	ManagingUserID   snowflake.ID     `gorm:"not null;index"`
	AttendanceStatus AttendanceStatus `gorm:"type:text;not null;default:TENTATIVE"`
	CreatedAt        time.Time        `gorm:"not null"`
}

func (EventParticipant) TableName() string { return "event_participants" }

// ParticipantDefaultPayor applies to every event the participant attends.
type ParticipantDefaultPayor struct {
	ParticipantID snowflake.ID `gorm:"primaryKey"`
	PayorUserID   snowflake.ID `gorm:"not null"`
}

func (ParticipantDefaultPayor) TableName() string { return "participant_default_payors" }

type EventPayorOverride struct {
	EventID       snowflake.ID `gorm:"primaryKey"`
	ParticipantID snowflake.ID `gorm:"primaryKey"`
	PayorUserID   snowflake.ID `gorm:"not null"`
}

func (EventPayorOverride) TableName() string { return "event_payor_overrides" }
