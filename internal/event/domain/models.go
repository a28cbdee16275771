// Package domain contains the event aggregate and its lifecycle rules.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type EventState string

const (
	EventStateDraft     EventState = "DRAFT"
	EventStateOpen      EventState = "OPEN"
	EventStateLocked    EventState = "LOCKED"
	EventStateCompleted EventState = "COMPLETED"
)

// nextState is the only legal forward step from each state.
var nextState = map[EventState]EventState{
	EventStateDraft:  EventStateOpen,
	EventStateOpen:   EventStateLocked,
	EventStateLocked: EventStateCompleted,
}

func ParseEventState(raw string) (EventState, error) {
	state := EventState(strings.ToUpper(strings.TrimSpace(raw)))
	switch state {
	case EventStateDraft, EventStateOpen, EventStateLocked, EventStateCompleted:
		return state, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEventState, raw)
	}
}

// CanTransition reports whether target is the single step after s.
func (s EventState) CanTransition(target EventState) bool {
	next, ok := nextState[s]
	return ok && next == target
}

// BearsCharges reports whether entering s finalizes a charge snapshot.
func (s EventState) BearsCharges() bool {
	return s == EventStateLocked || s == EventStateCompleted
}

// IsReset reports whether force-setting s discards finalized charges.
func (s EventState) IsReset() bool {
	return s == EventStateDraft || s == EventStateOpen
}

type Event struct {
	ID                    snowflake.ID `gorm:"primaryKey"`
	Name                  string       `gorm:"type:text;not null"`
	HostUserID            snowflake.ID `gorm:"index"`
	State                 EventState   `gorm:"type:text;not null;default:DRAFT"`
	PayorExemptionEnabled bool         `gorm:"not null;default:false"`
	StartsAt              time.Time    `gorm:"not null"`
	CutoffAt              time.Time    `gorm:"not null"`
	CreatedAt             time.Time    `gorm:"not null"`
	UpdatedAt             time.Time    `gorm:"not null"`
}

func (Event) TableName() string { return "events" }

// EventHost lists the organizers of an event. With no rows the legacy
// Event.HostUserID is the only host.
type EventHost struct {
	EventID snowflake.ID `gorm:"primaryKey"`
	UserID  snowflake.ID `gorm:"primaryKey"`
}

func (EventHost) TableName() string { return "event_hosts" }
