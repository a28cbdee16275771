package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Selection, error)
	Update(ctx context.Context, req UpdateRequest) (*Selection, error)
	Delete(ctx context.Context, req DeleteRequest) error
}

// Repository holds the queries that span tables. Plain row access goes
// through the generic store.
type Repository interface {
	MenuItemInEvent(ctx context.Context, db *gorm.DB, eventID, menuItemID snowflake.ID) (bool, error)
	// CountManaged counts the given participants of the event managed by userID.
	CountManaged(ctx context.Context, db *gorm.DB, eventID, userID snowflake.ID, participantIDs []snowflake.ID) (int64, error)
	ReplaceAllocations(ctx context.Context, db *gorm.DB, selectionID snowflake.ID, allocations []SelectionAllocation) error
	DeleteSelection(ctx context.Context, db *gorm.DB, selectionID snowflake.ID) error
}

// AllocationsFor builds one EQUAL share row per participant.
func AllocationsFor(node *snowflake.Node, selectionID snowflake.ID, participantIDs []snowflake.ID, now time.Time) []SelectionAllocation {
	out := make([]SelectionAllocation, 0, len(participantIDs))
	for _, pid := range participantIDs {
		out = append(out, SelectionAllocation{
			ID:            node.Generate(),
			SelectionID:   selectionID,
			ParticipantID: pid,
			ShareType:     ShareTypeEqual,
			CreatedAt:     now,
		})
	}
	return out
}

type CreateRequest struct {
	EventID        string   `json:"-"`
	ActorUserID    string   `json:"-"`
	MenuItemID     string   `json:"menuItemId"`
	Quantity       int64    `json:"quantity"`
	ParticipantIDs []string `json:"participantIds"`
	Note           *string  `json:"note,omitempty"`
}

type UpdateRequest struct {
	SelectionID    string   `json:"-"`
	ActorUserID    string   `json:"-"`
	Quantity       int64    `json:"quantity"`
	ParticipantIDs []string `json:"participantIds"`
}

type DeleteRequest struct {
	SelectionID string
	ActorUserID string
}

var (
	ErrInvalidSelectionID = errors.New("invalid_selection_id")
	ErrInvalidEventID     = errors.New("invalid_event_id")
	ErrInvalidParticipant = errors.New("invalid_participant_id")
	ErrInvalidActor       = errors.New("invalid_actor")
	ErrInvalidMenuItem    = errors.New("invalid_menu_item")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrEmptyAllocation    = errors.New("empty_allocation")
	ErrSelectionNotFound  = errors.New("selection_not_found")
	ErrEventNotFound      = errors.New("event_not_found")
	ErrEventBusy          = errors.New("event_busy")
	ErrEventNotOpen       = errors.New("event_not_open")
	ErrCutoffPassed       = errors.New("cutoff_passed")
	ErrForbidden          = errors.New("forbidden")
)
