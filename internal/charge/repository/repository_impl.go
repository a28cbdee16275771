package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	participantdomain "github.com/smallbiznis/dongi/internal/participant/domain"
	sharedcostdomain "github.com/smallbiznis/dongi/internal/sharedcost/domain"
	userdomain "github.com/smallbiznis/dongi/internal/user/domain"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() chargedomain.Repository {
	return &repo{}
}

type participantRow struct {
	ParticipantID    snowflake.ID
	DisplayName      string
	OwnerUserID      snowflake.ID
	AttendanceStatus participantdomain.AttendanceStatus
}

type selectionRow struct {
	ID       snowflake.ID
	Quantity int64
	ItemName string
	PriceIrr int64
}

type allocationRow struct {
	SelectionID   snowflake.ID
	ParticipantID snowflake.ID
}

type payorRow struct {
	ParticipantID snowflake.ID
	PayorUserID   snowflake.ID
}

func (r *repo) EventExists(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&eventdomain.Event{}).Where("id = ?", eventID).Count(&count).Error
	return count > 0, err
}

// LoadSnapshot reads every input of the engine. The reads are independent and
// run concurrently unless opts.Serial is set; all of them finish before the
// snapshot is assembled. Every list is ordered by id.
func (r *repo) LoadSnapshot(ctx context.Context, db *gorm.DB, eventID snowflake.ID, opts chargedomain.LoadOptions) (*chargedomain.Snapshot, error) {
	var (
		event        eventdomain.Event
		hostIDs      []snowflake.ID
		participants []participantRow
		sharedCosts  []sharedcostdomain.SharedCost
		selections   []selectionRow
		allocations  []allocationRow
		overrides    []payorRow
		defaults     []payorRow
	)

	g, gctx := errgroup.WithContext(ctx)
	if opts.Serial {
		g.SetLimit(1)
	}

	g.Go(func() error {
		err := db.WithContext(gctx).
			Select("id", "host_user_id", "payor_exemption_enabled").
			Where("id = ?", eventID).
			Take(&event).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chargedomain.ErrEventNotFound
		}
		return err
	})
	g.Go(func() error {
		return db.WithContext(gctx).Model(&eventdomain.EventHost{}).
			Where("event_id = ?", eventID).
			Order("user_id").
			Pluck("user_id", &hostIDs).Error
	})
	g.Go(func() error {
		return db.WithContext(gctx).
			Table("event_participants AS ep").
			Select("ep.participant_id, p.display_name, p.owner_user_id, ep.attendance_status").
			Joins("JOIN participants p ON p.id = ep.participant_id").
			Where("ep.event_id = ?", eventID).
			Order("ep.participant_id").
			Scan(&participants).Error
	})
	g.Go(func() error {
		return db.WithContext(gctx).
			Where("event_id = ?", eventID).
			Order("id").
			Find(&sharedCosts).Error
	})
	g.Go(func() error {
		return db.WithContext(gctx).
			Table("selections AS s").
			Select("s.id, s.quantity, mi.name AS item_name, mi.price_irr").
			Joins("JOIN menu_items mi ON mi.id = s.menu_item_id").
			Where("s.event_id = ?", eventID).
			Order("s.id").
			Scan(&selections).Error
	})
	g.Go(func() error {
		return db.WithContext(gctx).
			Table("selection_allocations AS sa").
			Select("sa.selection_id, sa.participant_id").
			Joins("JOIN selections s ON s.id = sa.selection_id").
			Where("s.event_id = ?", eventID).
			Order("sa.selection_id, sa.id").
			Scan(&allocations).Error
	})
	g.Go(func() error {
		return db.WithContext(gctx).
			Model(&participantdomain.EventPayorOverride{}).
			Select("participant_id, payor_user_id").
			Where("event_id = ?", eventID).
			Scan(&overrides).Error
	})
	g.Go(func() error {
		return db.WithContext(gctx).
			Table("participant_default_payors AS dp").
			Select("dp.participant_id, dp.payor_user_id").
			Joins("JOIN event_participants ep ON ep.participant_id = dp.participant_id").
			Where("ep.event_id = ?", eventID).
			Scan(&defaults).Error
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(hostIDs) == 0 && event.HostUserID != 0 {
		hostIDs = append(hostIDs, event.HostUserID)
	}

	snap := &chargedomain.Snapshot{
		EventID:        eventID.String(),
		HostUserIDs:    idStrings(hostIDs),
		HostExemption:  event.PayorExemptionEnabled,
		Participants:   make([]chargedomain.SnapshotParticipant, 0, len(participants)),
		SharedCosts:    make([]chargedomain.SnapshotSharedCost, 0, len(sharedCosts)),
		Selections:     make([]chargedomain.SnapshotSelection, 0, len(selections)),
		PayorOverrides: payorMap(overrides),
		DefaultPayors:  payorMap(defaults),
	}

	payorCandidates := map[snowflake.ID]struct{}{}
	for _, p := range participants {
		snap.Participants = append(snap.Participants, chargedomain.SnapshotParticipant{
			ID:          p.ParticipantID.String(),
			DisplayName: p.DisplayName,
			OwnerUserID: ownerString(p.OwnerUserID),
			Attending:   p.AttendanceStatus == participantdomain.AttendanceAttending,
		})
		payorCandidates[p.OwnerUserID] = struct{}{}
		// a participant nobody owns is billed under its own id
		payorCandidates[p.ParticipantID] = struct{}{}
	}
	for _, rows := range [][]payorRow{overrides, defaults} {
		for _, row := range rows {
			payorCandidates[row.PayorUserID] = struct{}{}
		}
	}
	for _, c := range sharedCosts {
		snap.SharedCosts = append(snap.SharedCosts, chargedomain.SnapshotSharedCost{
			ID:        c.ID.String(),
			Name:      c.Name,
			AmountIrr: c.AmountIrr,
		})
	}

	allocBySelection := make(map[snowflake.ID][]string, len(selections))
	for _, a := range allocations {
		allocBySelection[a.SelectionID] = append(allocBySelection[a.SelectionID], a.ParticipantID.String())
	}
	for _, s := range selections {
		snap.Selections = append(snap.Selections, chargedomain.SnapshotSelection{
			ID:             s.ID.String(),
			ItemName:       s.ItemName,
			Quantity:       s.Quantity,
			UnitPriceIrr:   s.PriceIrr,
			ParticipantIDs: allocBySelection[s.ID],
		})
	}

	users, err := r.loadUsers(ctx, db, payorCandidates)
	if err != nil {
		return nil, err
	}
	snap.Users = users

	return snap, nil
}

// loadUsers fetches every account that could end up as a payor so the
// engine never has to go back to storage.
func (r *repo) loadUsers(ctx context.Context, db *gorm.DB, candidates map[snowflake.ID]struct{}) (map[string]chargedomain.SnapshotUser, error) {
	users := make(map[string]chargedomain.SnapshotUser)
	delete(candidates, 0)
	if len(candidates) == 0 {
		return users, nil
	}

	ids := make([]snowflake.ID, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var rows []userdomain.User
	if err := db.WithContext(ctx).
		Select("id", "email", "display_name").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, u := range rows {
		users[u.ID.String()] = chargedomain.SnapshotUser{Email: u.Email, DisplayName: u.DisplayName}
	}
	return users, nil
}

// ReplaceEventCharges deletes the event's rows and inserts one row per payor.
// Run it inside the transaction that also moves the event's state.
func (r *repo) ReplaceEventCharges(
	ctx context.Context,
	db *gorm.DB,
	eventID snowflake.ID,
	finalizationID string,
	finalizedAt time.Time,
	summaries []chargedomain.PayorSummary,
) (int, error) {
	if _, err := r.DeleteEventCharges(ctx, db, eventID); err != nil {
		return 0, err
	}
	if len(summaries) == 0 {
		return 0, nil
	}

	rows := make([]chargedomain.EventCharge, 0, len(summaries))
	for _, s := range summaries {
		payorID, err := snowflake.ParseString(s.PayorUserID)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", chargedomain.ErrInvalidPayorID, s.PayorUserID)
		}
		participants := make(map[string]any, len(s.Participants))
		for _, p := range s.Participants {
			participants[p.ParticipantID] = p.AmountIrr
		}
		rows = append(rows, chargedomain.EventCharge{
			EventID:        eventID,
			PayorUserID:    payorID,
			TotalIrr:       s.TotalIrr,
			FinalizationID: finalizationID,
			FinalizedAt:    finalizedAt.UTC(),
			Metadata: datatypes.JSONMap{
				"payor_email":  s.PayorEmail,
				"participants": participants,
			},
		})
	}

	if err := db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *repo) DeleteEventCharges(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&chargedomain.EventCharge{})
	return res.RowsAffected, res.Error
}

func (r *repo) ListEventCharges(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]chargedomain.EventChargeView, error) {
	type row struct {
		EventID        snowflake.ID
		PayorUserID    snowflake.ID
		PayorEmail     *string
		PayorName      *string
		TotalIrr       int64
		FinalizationID string
		FinalizedAt    time.Time
	}

	var rows []row
	err := db.WithContext(ctx).
		Table("event_charges AS ec").
		Select(`ec.event_id, ec.payor_user_id, u.email AS payor_email, u.display_name AS payor_name,
			ec.total_irr, ec.finalization_id, ec.finalized_at`).
		Joins("LEFT JOIN users u ON u.id = ec.payor_user_id").
		Where("ec.event_id = ?", eventID).
		Order("ec.payor_user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]chargedomain.EventChargeView, 0, len(rows))
	for _, rec := range rows {
		view := chargedomain.EventChargeView{
			EventID:        rec.EventID.String(),
			PayorUserID:    rec.PayorUserID.String(),
			TotalIrr:       rec.TotalIrr,
			FinalizationID: rec.FinalizationID,
			FinalizedAtUtc: rec.FinalizedAt.UTC(),
		}
		if rec.PayorEmail != nil {
			view.PayorEmail = *rec.PayorEmail
		}
		if rec.PayorName != nil {
			view.PayorName = *rec.PayorName
		}
		views = append(views, view)
	}
	return views, nil
}

func idStrings(ids []snowflake.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func ownerString(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}

func payorMap(rows []payorRow) map[string]string {
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.ParticipantID.String()] = row.PayorUserID.String()
	}
	return out
}
