// Package testkit opens throwaway databases and seeds event fixtures for tests.
package testkit

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	menudomain "github.com/smallbiznis/dongi/internal/menu/domain"
	"github.com/smallbiznis/dongi/internal/migration"
	participantdomain "github.com/smallbiznis/dongi/internal/participant/domain"
	paymentlinkdomain "github.com/smallbiznis/dongi/internal/paymentlink/domain"
	selectiondomain "github.com/smallbiznis/dongi/internal/selection/domain"
	sharedcostdomain "github.com/smallbiznis/dongi/internal/sharedcost/domain"
	userdomain "github.com/smallbiznis/dongi/internal/user/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// OpenDB returns a migrated in-memory database private to t. The pool holds a
// single connection, so code under test must not touch the pool while it
// holds a transaction.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Run(db))
	return db
}

// Fixture seeds rows with ids from one snowflake node.
type Fixture struct {
	t    *testing.T
	DB   *gorm.DB
	Node *snowflake.Node
	Now  time.Time
}

func NewFixture(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Fixture{t: t, DB: db, Node: node, Now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Fixture) create(v any) {
	f.t.Helper()
	require.NoError(f.t, f.DB.Create(v).Error)
}

func (f *Fixture) User(email string) snowflake.ID {
	id := f.Node.Generate()
	f.create(&userdomain.User{ID: id, Email: email, DisplayName: strings.Split(email, "@")[0], CreatedAt: f.Now})
	return id
}

type EventOption func(*eventdomain.Event)

func WithState(state eventdomain.EventState) EventOption {
	return func(e *eventdomain.Event) { e.State = state }
}

func WithExemption() EventOption {
	return func(e *eventdomain.Event) { e.PayorExemptionEnabled = true }
}

func WithHostUser(userID snowflake.ID) EventOption {
	return func(e *eventdomain.Event) { e.HostUserID = userID }
}

func WithCutoff(at time.Time) EventOption {
	return func(e *eventdomain.Event) { e.CutoffAt = at }
}

func (f *Fixture) Event(opts ...EventOption) *eventdomain.Event {
	ev := &eventdomain.Event{
		ID:        f.Node.Generate(),
		Name:      "dinner",
		State:     eventdomain.EventStateOpen,
		StartsAt:  f.Now.Add(48 * time.Hour),
		CutoffAt:  f.Now.Add(24 * time.Hour),
		CreatedAt: f.Now,
		UpdatedAt: f.Now,
	}
	for _, opt := range opts {
		opt(ev)
	}
	f.create(ev)
	return ev
}

func (f *Fixture) Host(eventID, userID snowflake.ID) {
	f.create(&eventdomain.EventHost{EventID: eventID, UserID: userID})
}

// Participant creates a participant owned and managed by ownerID and joins it
// to the event with the given attendance.
func (f *Fixture) Participant(eventID, ownerID snowflake.ID, name string, status participantdomain.AttendanceStatus) snowflake.ID {
	id := f.Node.Generate()
	f.create(&participantdomain.Participant{ID: id, OwnerUserID: ownerID, DisplayName: name, CreatedAt: f.Now})
	f.create(&participantdomain.EventParticipant{
		EventID:          eventID,
		ParticipantID:    id,
		ManagingUserID:   ownerID,
		AttendanceStatus: status,
		CreatedAt:        f.Now,
	})
	return id
}

func (f *Fixture) DefaultPayor(participantID, payorID snowflake.ID) {
	f.create(&participantdomain.ParticipantDefaultPayor{ParticipantID: participantID, PayorUserID: payorID})
}

func (f *Fixture) Override(eventID, participantID, payorID snowflake.ID) {
	f.create(&participantdomain.EventPayorOverride{EventID: eventID, ParticipantID: participantID, PayorUserID: payorID})
}

func (f *Fixture) MenuItem(eventID snowflake.ID, name string, priceIrr int64) snowflake.ID {
	menuID := f.Node.Generate()
	f.create(&menudomain.Menu{ID: menuID, EventID: eventID, Name: "menu", CreatedAt: f.Now})
	itemID := f.Node.Generate()
	f.create(&menudomain.MenuItem{ID: itemID, MenuID: menuID, Name: name, PriceIrr: priceIrr, IsActive: true, CreatedAt: f.Now})
	return itemID
}

func (f *Fixture) Selection(eventID, itemID, creatorID snowflake.ID, quantity int64, participants ...snowflake.ID) snowflake.ID {
	id := f.Node.Generate()
	f.create(&selectiondomain.Selection{
		ID:              id,
		EventID:         eventID,
		MenuItemID:      itemID,
		Quantity:        quantity,
		CreatedByUserID: creatorID,
		CreatedAt:       f.Now,
		UpdatedAt:       f.Now,
	})
	for _, pid := range participants {
		f.create(&selectiondomain.SelectionAllocation{
			ID:            f.Node.Generate(),
			SelectionID:   id,
			ParticipantID: pid,
			ShareType:     selectiondomain.ShareTypeEqual,
			CreatedAt:     f.Now,
		})
	}
	return id
}

func (f *Fixture) SharedCost(eventID snowflake.ID, name string, amountIrr int64) snowflake.ID {
	id := f.Node.Generate()
	f.create(&sharedcostdomain.SharedCost{
		ID:          id,
		EventID:     eventID,
		Name:        name,
		AmountIrr:   amountIrr,
		SplitMethod: sharedcostdomain.SplitEqualAllAttending,
		CreatedAt:   f.Now,
	})
	return id
}

func (f *Fixture) PaymentLink(eventID, payorID snowflake.ID, status paymentlinkdomain.Status) snowflake.ID {
	id := f.Node.Generate()
	f.create(&paymentlinkdomain.PaymentLink{
		ID:              id,
		EventID:         eventID,
		PayorUserID:     payorID,
		Token:           "tok-" + id.String(),
		LockedAmountIrr: 1000,
		Status:          status,
		CreatedAt:       f.Now,
	})
	return id
}

// Count returns the number of rows in model matching query.
func (f *Fixture) Count(model any, query string, args ...any) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.DB.Model(model).Where(query, args...).Count(&n).Error)
	return n
}
