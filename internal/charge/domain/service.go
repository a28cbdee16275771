package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// ComputeEventCharges previews charges without writing anything.
	ComputeEventCharges(ctx context.Context, eventID string) (*Result, error)
	ListEventCharges(ctx context.Context, eventID string) ([]EventChargeView, error)
	// Finalize computes on tx and replaces the event's snapshot.
	Finalize(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) (*Finalization, error)
	// Clear drops the event's snapshot on tx.
	Clear(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) (int64, error)
}

type Repository interface {
	EventExists(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (bool, error)
	LoadSnapshot(ctx context.Context, db *gorm.DB, eventID snowflake.ID, opts LoadOptions) (*Snapshot, error)
	ReplaceEventCharges(ctx context.Context, db *gorm.DB, eventID snowflake.ID, finalizationID string, finalizedAt time.Time, summaries []PayorSummary) (int, error)
	DeleteEventCharges(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error)
	ListEventCharges(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]EventChargeView, error)
}

type LoadOptions struct {
	// Serial forces one read at a time. Required when db is a transaction.
	Serial bool
}

var (
	ErrInvalidEventID = errors.New("invalid_event_id")
	ErrEventNotFound  = errors.New("event_not_found")
	ErrInvalidPayorID = errors.New("invalid_payor_id")
)

// ComputeError hides storage failures behind one opaque error.
type ComputeError struct {
	EventID string
	Err     error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute charges for event %s: %v", e.EventID, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }
