package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
	"github.com/smallbiznis/dongi/internal/charge/engine"
	"github.com/smallbiznis/dongi/internal/clock"
	"github.com/smallbiznis/dongi/internal/observability/logger"
	"github.com/smallbiznis/dongi/internal/observability/metrics"
	"github.com/smallbiznis/dongi/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
	repo    chargedomain.Repository
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    chargedomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) chargedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("charge.service"),
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    p.Repo,
	}
}

func (s *Service) ComputeEventCharges(ctx context.Context, eventID string) (*chargedomain.Result, error) {
	id, err := parseEventID(eventID)
	if err != nil {
		return nil, err
	}
	return s.compute(ctx, s.db, id, chargedomain.LoadOptions{})
}

func (s *Service) ListEventCharges(ctx context.Context, eventID string) ([]chargedomain.EventChargeView, error) {
	id, err := parseEventID(eventID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.EventExists(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, chargedomain.ErrEventNotFound
	}
	return s.repo.ListEventCharges(ctx, s.db, id)
}

func (s *Service) Finalize(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) (*chargedomain.Finalization, error) {
	result, err := s.compute(ctx, tx, eventID, chargedomain.LoadOptions{Serial: true})
	if err != nil {
		return nil, err
	}

	finalizedAt := s.clock.Now().UTC()
	finalizationID := ulid.MustNew(ulid.Timestamp(finalizedAt), ulid.DefaultEntropy()).String()

	rows, err := s.repo.ReplaceEventCharges(ctx, tx, eventID, finalizationID, finalizedAt, result.PayorSummaries)
	if err != nil {
		return nil, err
	}

	logger.WithEvent(logger.WithContext(ctx, s.log), eventID.String()).Info("charges finalized",
		zap.String("finalization_id", finalizationID),
		zap.Int("payor_rows", rows),
		zap.Int64("rounding_loss_irr", result.RoundingLossIrr),
	)

	return &chargedomain.Finalization{
		ID:          finalizationID,
		FinalizedAt: finalizedAt,
		Rows:        rows,
		Result:      result,
	}, nil
}

func (s *Service) Clear(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) (int64, error) {
	return s.repo.DeleteEventCharges(ctx, tx, eventID)
}

func (s *Service) compute(ctx context.Context, db *gorm.DB, eventID snowflake.ID, opts chargedomain.LoadOptions) (*chargedomain.Result, error) {
	ctx, span := tracing.Start(ctx, "charge.compute",
		attribute.String("event_id", eventID.String()),
		attribute.Bool("serial_reads", opts.Serial),
	)
	defer span.End()

	start := time.Now()
	log := logger.WithEvent(logger.WithContext(ctx, s.log), eventID.String())

	snap, err := s.repo.LoadSnapshot(ctx, db, eventID, opts)
	if err != nil {
		if errors.Is(err, chargedomain.ErrEventNotFound) {
			s.metrics.ObserveChargeCompute(metrics.ResultRejected, time.Since(start))
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load snapshot")
		s.metrics.ObserveChargeCompute(metrics.ClassifyFailure(err), time.Since(start))
		log.Error("load charge snapshot failed", zap.Error(err))
		return nil, &chargedomain.ComputeError{EventID: eventID.String(), Err: err}
	}

	result := engine.Compute(*snap)

	for _, skip := range result.Skipped {
		s.metrics.RecordChargeSkip(string(skip.Reason))
		log.Debug("charge source skipped",
			zap.String("source_id", skip.SourceID),
			zap.String("kind", string(skip.Kind)),
			zap.String("reason", string(skip.Reason)),
		)
	}
	s.metrics.AddRoundingLoss(result.RoundingLossIrr)
	s.metrics.ObserveChargeCompute(metrics.ResultOK, time.Since(start))

	span.SetAttributes(
		attribute.Int("participant_charges", len(result.ParticipantCharges)),
		attribute.Int("payor_summaries", len(result.PayorSummaries)),
		attribute.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func parseEventID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, chargedomain.ErrInvalidEventID
	}
	return id, nil
}
