package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
	"github.com/smallbiznis/dongi/internal/clock"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	"github.com/smallbiznis/dongi/internal/eventlock"
	"github.com/smallbiznis/dongi/internal/observability/logger"
	"github.com/smallbiznis/dongi/internal/observability/metrics"
	"github.com/smallbiznis/dongi/internal/observability/tracing"
	paymentlinkdomain "github.com/smallbiznis/dongi/internal/paymentlink/domain"
	pkgdb "github.com/smallbiznis/dongi/pkg/db"
	"github.com/smallbiznis/dongi/pkg/db/option"
	"github.com/smallbiznis/dongi/pkg/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	modeStrict = "strict"
	modeAdmin  = "admin"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	locker  eventlock.Locker
	charges chargedomain.Service
	links   paymentlinkdomain.Repository
	events  repository.Repository[eventdomain.Event]
	metrics *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Locker    eventlock.Locker
	ChargeSvc chargedomain.Service
	LinkRepo  paymentlinkdomain.Repository
	Metrics   *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) eventdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("event.service"),
		clock:   p.Clock,
		locker:  p.Locker,
		charges: p.ChargeSvc,
		links:   p.LinkRepo,
		events:  repository.ProvideStore[eventdomain.Event](p.DB),
		metrics: p.Metrics,
	}
}

func (s *Service) Get(ctx context.Context, eventID string) (*eventdomain.Event, error) {
	id, err := parseEventID(eventID)
	if err != nil {
		return nil, err
	}

	ev, err := s.events.FindOne(ctx, &eventdomain.Event{ID: id})
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, eventdomain.ErrEventNotFound
	}
	return ev, nil
}

func (s *Service) Transition(ctx context.Context, eventID string, target string) (*eventdomain.TransitionResult, error) {
	return s.apply(ctx, modeStrict, eventID, target)
}

func (s *Service) SetState(ctx context.Context, eventID string, target string) (*eventdomain.TransitionResult, error) {
	return s.apply(ctx, modeAdmin, eventID, target)
}

func (s *Service) apply(ctx context.Context, mode, eventID, rawTarget string) (*eventdomain.TransitionResult, error) {
	id, err := parseEventID(eventID)
	if err != nil {
		return nil, err
	}
	target, err := eventdomain.ParseEventState(rawTarget)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "event.transition",
		attribute.String("event_id", id.String()),
		attribute.String("mode", mode),
		attribute.String("target", string(target)),
	)
	defer span.End()

	log := logger.WithEvent(logger.WithContext(ctx, s.log), id.String()).With(
		zap.String("mode", mode),
		zap.String("target", string(target)),
	)

	release, err := s.locker.Acquire(ctx, id.String())
	if err != nil {
		if errors.Is(err, eventlock.ErrLockTimeout) {
			err = eventdomain.ErrEventBusy
		}
		s.metrics.RecordTransition(mode, string(target), outcome(err))
		log.Warn("event lock not acquired", zap.Error(err))
		return nil, err
	}
	defer release()

	var result *eventdomain.TransitionResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.applyTx(ctx, tx, mode, id, target)
		return txErr
	})
	if err != nil {
		if pkgdb.IsLockConflict(err) {
			err = eventdomain.ErrEventBusy
		}
		s.metrics.RecordTransition(mode, string(target), outcome(err))
		if outcome(err) == metrics.ResultRejected {
			log.Info("transition rejected", zap.Error(err))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transition")
			log.Error("transition failed", zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordTransition(mode, string(target), metrics.ResultOK)
	log.Info("event state changed",
		zap.String("previous_state", string(result.PreviousState)),
		zap.String("finalization_id", result.FinalizationID),
		zap.Int("charge_rows", result.ChargeRows),
	)
	return result, nil
}

// applyTx runs every check and write of one state change on tx. The state is
// written last so a failed finalization leaves it untouched.
func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, mode string, id snowflake.ID, target eventdomain.EventState) (*eventdomain.TransitionResult, error) {
	events := s.events.WithTrx(tx)

	ev, err := events.FindOne(ctx, &eventdomain.Event{ID: id}, option.ForUpdate())
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, eventdomain.ErrEventNotFound
	}

	result := &eventdomain.TransitionResult{
		EventID:       id.String(),
		PreviousState: ev.State,
		NewState:      target,
	}

	var finalize bool
	switch mode {
	case modeStrict:
		if !ev.State.CanTransition(target) {
			return nil, &eventdomain.TransitionError{From: ev.State, To: target}
		}
		finalize = target == eventdomain.EventStateLocked
	case modeAdmin:
		if target.IsReset() {
			if err := s.reset(ctx, tx, id); err != nil {
				return nil, err
			}
		}
		finalize = target.BearsCharges()
	}

	if finalize {
		fin, err := s.charges.Finalize(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		result.FinalizationID = fin.ID
		result.ChargeRows = fin.Rows
	}

	_, err = events.Updates(ctx, &eventdomain.Event{ID: id}, map[string]any{
		"state":      target,
		"updated_at": s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) reset(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	paid, err := s.links.HasPaid(ctx, tx, id)
	if err != nil {
		return err
	}
	if paid {
		return eventdomain.ErrPaidLinksExist
	}

	charges, err := s.charges.Clear(ctx, tx, id)
	if err != nil {
		return err
	}
	links, err := s.links.DeleteForEvent(ctx, tx, id)
	if err != nil {
		return err
	}

	logger.WithEvent(logger.WithContext(ctx, s.log), id.String()).Info("event reset",
		zap.Int64("charges_deleted", charges),
		zap.Int64("payment_links_deleted", links),
	)
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, eventdomain.ErrEventBusy):
		return metrics.ResultBusy
	case errors.Is(err, eventdomain.ErrEventNotFound),
		errors.Is(err, eventdomain.ErrInvalidTransition),
		errors.Is(err, eventdomain.ErrPaidLinksExist):
		return metrics.ResultRejected
	default:
		return metrics.ClassifyFailure(err)
	}
}

func parseEventID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, eventdomain.ErrInvalidEventID
	}
	return id, nil
}
