package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dongi/internal/clock"
	"github.com/smallbiznis/dongi/internal/config"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	"github.com/smallbiznis/dongi/internal/eventlock"
	"github.com/smallbiznis/dongi/internal/observability/logger"
	"github.com/smallbiznis/dongi/internal/observability/metrics"
	selectiondomain "github.com/smallbiznis/dongi/internal/selection/domain"
	pkgdb "github.com/smallbiznis/dongi/pkg/db"
	"github.com/smallbiznis/dongi/pkg/db/option"
	"github.com/smallbiznis/dongi/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	node       *snowflake.Node
	locker     eventlock.Locker
	rules      *config.ChargesConfigHolder
	metrics    *metrics.Metrics
	repo       selectiondomain.Repository
	events     repository.Repository[eventdomain.Event]
	selections repository.Repository[selectiondomain.Selection]
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Node    *snowflake.Node
	Locker  eventlock.Locker
	Rules   *config.ChargesConfigHolder
	Repo    selectiondomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) selectiondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("selection.service"),
		clock:      p.Clock,
		node:       p.Node,
		locker:     p.Locker,
		rules:      p.Rules,
		metrics:    p.Metrics,
		repo:       p.Repo,
		events:     repository.ProvideStore[eventdomain.Event](p.DB),
		selections: repository.ProvideStore[selectiondomain.Selection](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req selectiondomain.CreateRequest) (*selectiondomain.Selection, error) {
	sel, err := s.create(ctx, req)
	s.record(opCreate, err)
	return sel, err
}

func (s *Service) create(ctx context.Context, req selectiondomain.CreateRequest) (*selectiondomain.Selection, error) {
	eventID, err := parseID(req.EventID, selectiondomain.ErrInvalidEventID)
	if err != nil {
		return nil, err
	}
	actor, err := parseID(req.ActorUserID, selectiondomain.ErrInvalidActor)
	if err != nil {
		return nil, err
	}
	menuItemID, err := parseID(req.MenuItemID, selectiondomain.ErrInvalidMenuItem)
	if err != nil {
		return nil, err
	}
	participants, err := validateAllocation(req.Quantity, req.ParticipantIDs)
	if err != nil {
		return nil, err
	}

	var sel *selectiondomain.Selection
	err = s.withEvent(ctx, eventID, func(tx *gorm.DB) error {
		if err := s.checkEventOpen(ctx, tx, eventID); err != nil {
			return err
		}

		ok, err := s.repo.MenuItemInEvent(ctx, tx, eventID, menuItemID)
		if err != nil {
			return err
		}
		if !ok {
			return selectiondomain.ErrInvalidMenuItem
		}
		if err := s.checkManaged(ctx, tx, eventID, actor, participants); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		sel = &selectiondomain.Selection{
			ID:              s.node.Generate(),
			EventID:         eventID,
			MenuItemID:      menuItemID,
			Quantity:        req.Quantity,
			CreatedByUserID: actor,
			Note:            req.Note,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.selections.WithTrx(tx).Create(ctx, sel); err != nil {
			return err
		}
		return s.repo.ReplaceAllocations(ctx, tx, sel.ID, selectiondomain.AllocationsFor(s.node, sel.ID, participants, now))
	})
	if err != nil {
		return nil, err
	}

	logger.WithEvent(logger.WithContext(ctx, s.log), eventID.String()).Info("selection created",
		zap.String("selection_id", sel.ID.String()),
		zap.Int("participants", len(participants)),
	)
	return sel, nil
}

func (s *Service) Update(ctx context.Context, req selectiondomain.UpdateRequest) (*selectiondomain.Selection, error) {
	sel, err := s.update(ctx, req)
	s.record(opUpdate, err)
	return sel, err
}

func (s *Service) update(ctx context.Context, req selectiondomain.UpdateRequest) (*selectiondomain.Selection, error) {
	selectionID, err := parseID(req.SelectionID, selectiondomain.ErrInvalidSelectionID)
	if err != nil {
		return nil, err
	}
	actor, err := parseID(req.ActorUserID, selectiondomain.ErrInvalidActor)
	if err != nil {
		return nil, err
	}
	participants, err := validateAllocation(req.Quantity, req.ParticipantIDs)
	if err != nil {
		return nil, err
	}

	current, err := s.loadOwned(ctx, s.db, selectionID, actor)
	if err != nil {
		return nil, err
	}

	var sel *selectiondomain.Selection
	err = s.withEvent(ctx, current.EventID, func(tx *gorm.DB) error {
		var err error
		// reread under the lock, the selection may have gone meanwhile
		sel, err = s.loadOwned(ctx, tx, selectionID, actor)
		if err != nil {
			return err
		}
		if err := s.checkEventOpen(ctx, tx, sel.EventID); err != nil {
			return err
		}
		if err := s.checkManaged(ctx, tx, sel.EventID, actor, participants); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		_, err = s.selections.WithTrx(tx).Updates(ctx, &selectiondomain.Selection{ID: selectionID}, map[string]any{
			"quantity":   req.Quantity,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		sel.Quantity = req.Quantity
		sel.UpdatedAt = now
		return s.repo.ReplaceAllocations(ctx, tx, selectionID, selectiondomain.AllocationsFor(s.node, selectionID, participants, now))
	})
	if err != nil {
		return nil, err
	}

	logger.WithEvent(logger.WithContext(ctx, s.log), sel.EventID.String()).Info("selection updated",
		zap.String("selection_id", selectionID.String()),
		zap.Int("participants", len(participants)),
	)
	return sel, nil
}

func (s *Service) Delete(ctx context.Context, req selectiondomain.DeleteRequest) error {
	err := s.delete(ctx, req)
	s.record(opDelete, err)
	return err
}

func (s *Service) delete(ctx context.Context, req selectiondomain.DeleteRequest) error {
	selectionID, err := parseID(req.SelectionID, selectiondomain.ErrInvalidSelectionID)
	if err != nil {
		return err
	}
	actor, err := parseID(req.ActorUserID, selectiondomain.ErrInvalidActor)
	if err != nil {
		return err
	}

	current, err := s.loadOwned(ctx, s.db, selectionID, actor)
	if err != nil {
		return err
	}

	err = s.withEvent(ctx, current.EventID, func(tx *gorm.DB) error {
		sel, err := s.loadOwned(ctx, tx, selectionID, actor)
		if err != nil {
			return err
		}
		if err := s.checkEventOpen(ctx, tx, sel.EventID); err != nil {
			return err
		}
		return s.repo.DeleteSelection(ctx, tx, selectionID)
	})
	if err != nil {
		return err
	}

	logger.WithEvent(logger.WithContext(ctx, s.log), current.EventID.String()).Info("selection deleted",
		zap.String("selection_id", selectionID.String()),
	)
	return nil
}

// withEvent runs fn in one transaction while holding the event lock.
func (s *Service) withEvent(ctx context.Context, eventID snowflake.ID, fn func(tx *gorm.DB) error) error {
	release, err := s.locker.Acquire(ctx, eventID.String())
	if err != nil {
		if errors.Is(err, eventlock.ErrLockTimeout) {
			return selectiondomain.ErrEventBusy
		}
		return err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(fn)
	if err != nil && pkgdb.IsLockConflict(err) {
		return selectiondomain.ErrEventBusy
	}
	return err
}

func (s *Service) checkEventOpen(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) error {
	ev, err := s.events.WithTrx(tx).FindOne(ctx, &eventdomain.Event{ID: eventID}, option.ForUpdate())
	if err != nil {
		return err
	}
	if ev == nil {
		return selectiondomain.ErrEventNotFound
	}
	if ev.State != eventdomain.EventStateOpen {
		return selectiondomain.ErrEventNotOpen
	}
	if s.rules.Get().Selections.EnforceCutoff && !s.clock.Now().Before(ev.CutoffAt) {
		return selectiondomain.ErrCutoffPassed
	}
	return nil
}

func (s *Service) checkManaged(ctx context.Context, tx *gorm.DB, eventID, actor snowflake.ID, participants []snowflake.ID) error {
	managed, err := s.repo.CountManaged(ctx, tx, eventID, actor, participants)
	if err != nil {
		return err
	}
	if managed != int64(len(participants)) {
		return selectiondomain.ErrForbidden
	}
	return nil
}

// loadOwned returns the selection when actor created it.
func (s *Service) loadOwned(ctx context.Context, db *gorm.DB, selectionID, actor snowflake.ID) (*selectiondomain.Selection, error) {
	sel, err := s.selections.WithTrx(db).FindOne(ctx, &selectiondomain.Selection{ID: selectionID})
	if err != nil {
		return nil, err
	}
	if sel == nil {
		return nil, selectiondomain.ErrSelectionNotFound
	}
	if sel.CreatedByUserID != actor {
		return nil, selectiondomain.ErrForbidden
	}
	return sel, nil
}

func (s *Service) record(op string, err error) {
	switch {
	case err == nil:
		s.metrics.RecordSelectionMutation(op, metrics.ResultOK)
	case errors.Is(err, selectiondomain.ErrEventBusy):
		s.metrics.RecordSelectionMutation(op, metrics.ResultBusy)
	case isRejection(err):
		s.metrics.RecordSelectionMutation(op, metrics.ResultRejected)
	default:
		s.metrics.RecordSelectionMutation(op, metrics.ClassifyFailure(err))
		s.log.Error("selection mutation failed", zap.String("operation", op), zap.Error(err))
	}
}

func isRejection(err error) bool {
	for _, target := range []error{
		selectiondomain.ErrInvalidSelectionID,
		selectiondomain.ErrInvalidEventID,
		selectiondomain.ErrInvalidParticipant,
		selectiondomain.ErrInvalidActor,
		selectiondomain.ErrInvalidMenuItem,
		selectiondomain.ErrInvalidQuantity,
		selectiondomain.ErrEmptyAllocation,
		selectiondomain.ErrSelectionNotFound,
		selectiondomain.ErrEventNotFound,
		selectiondomain.ErrEventNotOpen,
		selectiondomain.ErrCutoffPassed,
		selectiondomain.ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// validateAllocation checks the request shape and returns the distinct
// participant ids in request order.
func validateAllocation(quantity int64, raw []string) ([]snowflake.ID, error) {
	if quantity < 1 {
		return nil, selectiondomain.ErrInvalidQuantity
	}
	if len(raw) == 0 {
		return nil, selectiondomain.ErrEmptyAllocation
	}

	seen := make(map[snowflake.ID]struct{}, len(raw))
	out := make([]snowflake.ID, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(r, selectiondomain.ErrInvalidParticipant)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}
