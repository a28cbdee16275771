// Package domain contains charge computation inputs, results and the
// persisted finalization snapshot.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventCharge is one payor's finalized total for an event. All rows of an
// event share the FinalizationID of the snapshot that wrote them.
type EventCharge struct {
	EventID        snowflake.ID      `gorm:"primaryKey"`
	PayorUserID    snowflake.ID      `gorm:"primaryKey"`
	TotalIrr       int64             `gorm:"not null"`
	FinalizationID string            `gorm:"type:text;not null;index"`
	FinalizedAt    time.Time         `gorm:"not null"`
	Metadata       datatypes.JSONMap `gorm:"type:json"`
}

func (EventCharge) TableName() string { return "event_charges" }

// EventChargeView is a persisted row joined with the payor's account.
type EventChargeView struct {
	EventID        string    `json:"eventId"`
	PayorUserID    string    `json:"payorUserId"`
	PayorEmail     string    `json:"payorEmail"`
	PayorName      string    `json:"payorName"`
	TotalIrr       int64     `json:"totalIrr"`
	FinalizationID string    `json:"finalizationId"`
	FinalizedAtUtc time.Time `json:"finalizedAtUtc"`
}

type BreakdownLine struct {
	SelectionID    string `json:"selectionId"`
	ItemName       string `json:"itemName"`
	Quantity       int64  `json:"quantity"`
	UnitPriceIrr   int64  `json:"unitPriceIrr"`
	ShareCount     int64  `json:"shareCount"`
	ShareAmountIrr int64  `json:"shareAmountIrr"`
	// Fallback marks a host-only selection spread over the whole chargeable pool.
	Fallback bool `json:"fallback,omitempty"`
}

type ParticipantCharge struct {
	ParticipantID   string          `json:"participantId"`
	ParticipantName string          `json:"participantName"`
	PayorUserID     string          `json:"payorUserId"`
	PayorEmail      string          `json:"payorEmail"`
	TotalIrr        int64           `json:"totalIrr"`
	Breakdown       []BreakdownLine `json:"breakdown"`
}

type PayorParticipant struct {
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	AmountIrr       int64  `json:"amountIrr"`
}

type PayorSummary struct {
	PayorUserID  string             `json:"payorUserId"`
	PayorEmail   string             `json:"payorEmail"`
	TotalIrr     int64              `json:"totalIrr"`
	Participants []PayorParticipant `json:"participants"`
}

type SourceKind string

const (
	SourceSharedCost SourceKind = "shared_cost"
	SourceSelection  SourceKind = "selection"
)

// SkipReason explains why a cost produced no charge lines.
type SkipReason string

const (
	SkipInvalidAmount            SkipReason = "invalid_amount"
	SkipNoChargeableParticipants SkipReason = "no_chargeable_participants"
	SkipShareTooSmall            SkipReason = "share_too_small"
	SkipInvalidSelection         SkipReason = "invalid_selection"
	SkipNoAttendingAllocation    SkipReason = "no_attending_allocation"
	SkipEmptyFallbackPool        SkipReason = "empty_fallback_pool"
)

type Skip struct {
	SourceID string     `json:"sourceId"`
	Kind     SourceKind `json:"kind"`
	Reason   SkipReason `json:"reason"`
}

type Result struct {
	ParticipantCharges []ParticipantCharge `json:"participantCharges"`
	PayorSummaries     []PayorSummary      `json:"payorSummaries"`
	Skipped            []Skip              `json:"skipped"`
	// RoundingLossIrr is what floor division left unbilled across all costs.
	RoundingLossIrr int64 `json:"roundingLossIrr"`
}

// Finalization describes one written charge snapshot.
type Finalization struct {
	ID          string
	FinalizedAt time.Time
	Rows        int
	Result      *Result
}
