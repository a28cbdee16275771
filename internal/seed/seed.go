// Package seed bootstraps a demo event for local development.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dongi/internal/clock"
	"github.com/smallbiznis/dongi/internal/config"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	menudomain "github.com/smallbiznis/dongi/internal/menu/domain"
	participantdomain "github.com/smallbiznis/dongi/internal/participant/domain"
	selectiondomain "github.com/smallbiznis/dongi/internal/selection/domain"
	sharedcostdomain "github.com/smallbiznis/dongi/internal/sharedcost/domain"
	userdomain "github.com/smallbiznis/dongi/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	demoEventName = "Demo dinner"
	demoHostEmail = "host@dongi.local"
)

// EnsureDemoEvent seeds one open event with a host, a family, a friend, a
// menu, a shared cost and two selections. It returns the existing event when
// the demo host is already present.
func EnsureDemoEvent(ctx context.Context, db *gorm.DB, node *snowflake.Node, clk clock.Clock) (snowflake.ID, error) {
	if db == nil || node == nil {
		return 0, errors.New("seed database handle and id node are required")
	}

	var eventID snowflake.ID
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var host userdomain.User
		err := tx.Where("email = ?", demoHostEmail).First(&host).Error
		if err == nil {
			var ev eventdomain.Event
			if err := tx.Where("host_user_id = ? AND name = ?", host.ID, demoEventName).First(&ev).Error; err != nil {
				return err
			}
			eventID = ev.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		id, err := createDemoEvent(tx, node, clk.Now().UTC())
		eventID = id
		return err
	})
	return eventID, err
}

func createDemoEvent(tx *gorm.DB, node *snowflake.Node, now time.Time) (snowflake.ID, error) {
	var rows []any
	add := func(v any) { rows = append(rows, v) }

	user := func(email, name string) snowflake.ID {
		id := node.Generate()
		add(&userdomain.User{ID: id, Email: email, DisplayName: name, CreatedAt: now})
		return id
	}
	host := user(demoHostEmail, "Host")
	parent := user("parent@dongi.local", "Parent")
	friend := user("friend@dongi.local", "Friend")

	ev := &eventdomain.Event{
		ID:                    node.Generate(),
		Name:                  demoEventName,
		HostUserID:            host,
		State:                 eventdomain.EventStateOpen,
		PayorExemptionEnabled: true,
		StartsAt:              now.Add(7 * 24 * time.Hour),
		CutoffAt:              now.Add(6 * 24 * time.Hour),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	add(ev)
	add(&eventdomain.EventHost{EventID: ev.ID, UserID: host})

	participant := func(owner snowflake.ID, name string) snowflake.ID {
		id := node.Generate()
		add(&participantdomain.Participant{ID: id, OwnerUserID: owner, DisplayName: name, CreatedAt: now})
		add(&participantdomain.EventParticipant{
			EventID:          ev.ID,
			ParticipantID:    id,
			ManagingUserID:   owner,
			AttendanceStatus: participantdomain.AttendanceAttending,
			CreatedAt:        now,
		})
		return id
	}
	hostSelf := participant(host, "Host")
	kid1 := participant(parent, "Kid one")
	kid2 := participant(parent, "Kid two")
	participant(friend, "Friend")

	menu := &menudomain.Menu{ID: node.Generate(), EventID: ev.ID, Name: "Dinner", CreatedAt: now}
	add(menu)
	item := func(name string, price int64) snowflake.ID {
		id := node.Generate()
		add(&menudomain.MenuItem{ID: id, MenuID: menu.ID, Name: name, PriceIrr: price, IsActive: true, CreatedAt: now})
		return id
	}
	kebab := item("Kebab", 450000)
	rice := item("Rice", 120000)

	selection := func(itemID, creator snowflake.ID, qty int64, participants ...snowflake.ID) {
		sel := &selectiondomain.Selection{
			ID:              node.Generate(),
			EventID:         ev.ID,
			MenuItemID:      itemID,
			Quantity:        qty,
			CreatedByUserID: creator,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		add(sel)
		allocs := selectiondomain.AllocationsFor(node, sel.ID, participants, now)
		for i := range allocs {
			add(&allocs[i])
		}
	}
	selection(kebab, parent, 2, kid1, kid2)
	selection(rice, host, 1, hostSelf)

	add(&sharedcostdomain.SharedCost{
		ID:          node.Generate(),
		EventID:     ev.ID,
		Name:        "Venue",
		AmountIrr:   900000,
		SplitMethod: sharedcostdomain.SplitEqualAllAttending,
		CreatedAt:   now,
	})

	for _, row := range rows {
		if err := tx.Create(row).Error; err != nil {
			return 0, err
		}
	}
	return ev.ID, nil
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
	Clock     clock.Clock
	Log       *zap.Logger
}

func register(p Params) {
	if !p.Config.SeedDemo || p.Config.IsProduction() {
		return
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			eventID, err := EnsureDemoEvent(ctx, p.DB, p.Node, p.Clock)
			if err != nil {
				return err
			}
			p.Log.Info("demo event ready", zap.String("event_id", eventID.String()))
			return nil
		},
	})
}

var Module = fx.Module("seed",
	fx.Invoke(register),
)
