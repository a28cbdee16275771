package domain

import (
	"context"
	"errors"
	"fmt"
)

type Service interface {
	Get(ctx context.Context, eventID string) (*Event, error)
	// Transition performs one strict forward step.
	Transition(ctx context.Context, eventID string, target string) (*TransitionResult, error)
	// SetState force-sets any state, guarding resets against paid links.
	SetState(ctx context.Context, eventID string, target string) (*TransitionResult, error)
}

type TransitionResult struct {
	EventID        string     `json:"eventId"`
	PreviousState  EventState `json:"previousState"`
	NewState       EventState `json:"newState"`
	FinalizationID string     `json:"finalizationId,omitempty"`
	ChargeRows     int        `json:"chargeRows"`
}

var (
	ErrInvalidEventID    = errors.New("invalid_event_id")
	ErrInvalidEventState = errors.New("invalid_event_state")
	ErrEventNotFound     = errors.New("event_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrPaidLinksExist    = errors.New("paid_payment_links_exist")
	ErrEventBusy         = errors.New("event_busy")
)

// TransitionError names the rejected move.
type TransitionError struct {
	From EventState
	To   EventState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
