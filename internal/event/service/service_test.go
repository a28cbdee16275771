package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
	chargerepo "github.com/smallbiznis/dongi/internal/charge/repository"
	chargeservice "github.com/smallbiznis/dongi/internal/charge/service"
	"github.com/smallbiznis/dongi/internal/clock"
	"github.com/smallbiznis/dongi/internal/config"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	"github.com/smallbiznis/dongi/internal/eventlock"
	"github.com/smallbiznis/dongi/internal/observability/metrics"
	participantdomain "github.com/smallbiznis/dongi/internal/participant/domain"
	paymentlinkdomain "github.com/smallbiznis/dongi/internal/paymentlink/domain"
	paymentlinkrepo "github.com/smallbiznis/dongi/internal/paymentlink/repository"
	"github.com/smallbiznis/dongi/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	svc      eventdomain.Service
	fixture  *testkit.Fixture
	clock    *clock.FakeClock
	locker   eventlock.Locker
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testkit.OpenDB(t)
	f := testkit.NewFixture(t, db)
	fake := clock.NewFakeClock(f.Now)

	registry := prometheus.NewRegistry()
	m, err := metrics.New(metrics.Config{ServiceName: "dongi", Environment: "test"}, registry)
	require.NoError(t, err)

	timing := config.DefaultChargesConfig()
	timing.Lock.Wait = 20 * time.Millisecond
	locker := eventlock.NewLocalLocker(config.NewStaticChargesConfigHolder(timing), m)

	charges := chargeservice.NewService(chargeservice.ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   fake,
		Repo:    chargerepo.Provide(),
		Metrics: m,
	})

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     fake,
		Locker:    locker,
		ChargeSvc: charges,
		LinkRepo:  paymentlinkrepo.Provide(),
		Metrics:   m,
	})
	return &harness{svc: svc, fixture: f, clock: fake, locker: locker, registry: registry}
}

// seedDinner creates an event with two attending payors and one shared cost.
func (h *harness) seedDinner(opts ...testkit.EventOption) (*eventdomain.Event, []string) {
	f := h.fixture
	ev := f.Event(opts...)
	var payors []string
	for _, name := range []string{"a", "b"} {
		owner := f.User(name + "-" + ev.ID.String() + "@example.com")
		f.Participant(ev.ID, owner, name, participantdomain.AttendanceAttending)
		payors = append(payors, owner.String())
	}
	f.SharedCost(ev.ID, "venue", 1000)
	return ev, payors
}

func (h *harness) state(t *testing.T, ev *eventdomain.Event) eventdomain.EventState {
	t.Helper()
	var got eventdomain.Event
	require.NoError(t, h.fixture.DB.Take(&got, "id = ?", ev.ID).Error)
	return got.State
}

func TestTransition_LockFinalizesThenRejectsBackwardMove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, payors := h.seedDinner()

	h.clock.Advance(time.Minute)
	result, err := h.svc.Transition(ctx, ev.ID.String(), "LOCKED")
	require.NoError(t, err)
	assert.Equal(t, eventdomain.EventStateOpen, result.PreviousState)
	assert.Equal(t, eventdomain.EventStateLocked, result.NewState)
	assert.Equal(t, 2, result.ChargeRows)
	assert.NotEmpty(t, result.FinalizationID)
	assert.Equal(t, eventdomain.EventStateLocked, h.state(t, ev))

	var rows []chargedomain.EventCharge
	require.NoError(t, h.fixture.DB.Order("payor_user_id").Find(&rows, "event_id = ?", ev.ID).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Contains(t, payors, row.PayorUserID.String())
		assert.EqualValues(t, 500, row.TotalIrr)
		assert.True(t, row.FinalizedAt.Equal(h.fixture.Now.Add(time.Minute)))
		assert.Equal(t, result.FinalizationID, row.FinalizationID)
	}

	_, err = h.svc.Transition(ctx, ev.ID.String(), "OPEN")
	require.ErrorIs(t, err, eventdomain.ErrInvalidTransition)
	assert.EqualError(t, err, "invalid transition from LOCKED to OPEN")
	assert.Equal(t, eventdomain.EventStateLocked, h.state(t, ev))
	assert.EqualValues(t, 2, h.fixture.Count(&chargedomain.EventCharge{}, "event_id = ?", ev.ID))
}

func TestTransition_ForwardOnly(t *testing.T) {
	cases := []struct {
		from   eventdomain.EventState
		target string
	}{
		{eventdomain.EventStateDraft, "LOCKED"},
		{eventdomain.EventStateDraft, "COMPLETED"},
		{eventdomain.EventStateOpen, "OPEN"},
		{eventdomain.EventStateOpen, "COMPLETED"},
		{eventdomain.EventStateCompleted, "LOCKED"},
		{eventdomain.EventStateCompleted, "DRAFT"},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+tc.target, func(t *testing.T) {
			h := newHarness(t)
			ev, _ := h.seedDinner(testkit.WithState(tc.from))

			_, err := h.svc.Transition(context.Background(), ev.ID.String(), tc.target)

			var transitionErr *eventdomain.TransitionError
			require.True(t, errors.As(err, &transitionErr))
			assert.Equal(t, tc.from, transitionErr.From)
			assert.Equal(t, tc.from, h.state(t, ev))
			assert.Zero(t, h.fixture.Count(&chargedomain.EventCharge{}, "event_id = ?", ev.ID))
		})
	}
}

func TestTransition_CompleteKeepsLockedSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, _ := h.seedDinner()

	locked, err := h.svc.Transition(ctx, ev.ID.String(), "LOCKED")
	require.NoError(t, err)

	h.fixture.SharedCost(ev.ID, "late fee", 2000)
	completed, err := h.svc.Transition(ctx, ev.ID.String(), "completed")
	require.NoError(t, err)
	assert.Empty(t, completed.FinalizationID)
	assert.Equal(t, eventdomain.EventStateCompleted, h.state(t, ev))

	var rows []chargedomain.EventCharge
	require.NoError(t, h.fixture.DB.Find(&rows, "event_id = ?", ev.ID).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, locked.FinalizationID, row.FinalizationID)
		assert.EqualValues(t, 500, row.TotalIrr)
	}
}

func TestSetState_RecomputesOnChargeBearingStates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, _ := h.seedDinner(testkit.WithState(eventdomain.EventStateDraft))

	first, err := h.svc.SetState(ctx, ev.ID.String(), "COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, 2, first.ChargeRows)

	h.fixture.SharedCost(ev.ID, "late fee", 2000)
	h.clock.Advance(time.Hour)
	second, err := h.svc.SetState(ctx, ev.ID.String(), "LOCKED")
	require.NoError(t, err)
	assert.NotEqual(t, first.FinalizationID, second.FinalizationID)
	assert.Equal(t, eventdomain.EventStateLocked, h.state(t, ev))

	var rows []chargedomain.EventCharge
	require.NoError(t, h.fixture.DB.Find(&rows, "event_id = ?", ev.ID).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.EqualValues(t, 1500, row.TotalIrr)
		assert.Equal(t, second.FinalizationID, row.FinalizationID)
	}
}

func TestSetState_ResetBlockedByPaidLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, _ := h.seedDinner()
	_, err := h.svc.Transition(ctx, ev.ID.String(), "LOCKED")
	require.NoError(t, err)

	payor := h.fixture.User("payor@example.com")
	h.fixture.PaymentLink(ev.ID, payor, paymentlinkdomain.StatusOpen)
	h.fixture.PaymentLink(ev.ID, payor, paymentlinkdomain.StatusPaid)

	for _, target := range []string{"DRAFT", "OPEN"} {
		_, err = h.svc.SetState(ctx, ev.ID.String(), target)
		assert.ErrorIs(t, err, eventdomain.ErrPaidLinksExist)
	}

	assert.Equal(t, eventdomain.EventStateLocked, h.state(t, ev))
	assert.EqualValues(t, 2, h.fixture.Count(&chargedomain.EventCharge{}, "event_id = ?", ev.ID))
	assert.EqualValues(t, 2, h.fixture.Count(&paymentlinkdomain.PaymentLink{}, "event_id = ?", ev.ID))
}

func TestSetState_ResetClearsChargesAndLinks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, _ := h.seedDinner()
	other, _ := h.seedDinner()

	for _, e := range []*eventdomain.Event{ev, other} {
		_, err := h.svc.Transition(ctx, e.ID.String(), "LOCKED")
		require.NoError(t, err)
		h.fixture.PaymentLink(e.ID, h.fixture.User(e.ID.String()+"@example.com"), paymentlinkdomain.StatusOpen)
	}

	result, err := h.svc.SetState(ctx, ev.ID.String(), "DRAFT")
	require.NoError(t, err)
	assert.Equal(t, eventdomain.EventStateLocked, result.PreviousState)
	assert.Zero(t, result.ChargeRows)

	assert.Equal(t, eventdomain.EventStateDraft, h.state(t, ev))
	assert.Zero(t, h.fixture.Count(&chargedomain.EventCharge{}, "event_id = ?", ev.ID))
	assert.Zero(t, h.fixture.Count(&paymentlinkdomain.PaymentLink{}, "event_id = ?", ev.ID))

	assert.EqualValues(t, 2, h.fixture.Count(&chargedomain.EventCharge{}, "event_id = ?", other.ID))
	assert.EqualValues(t, 1, h.fixture.Count(&paymentlinkdomain.PaymentLink{}, "event_id = ?", other.ID))
}

func TestTransition_ComputeFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ev, _ := h.seedDinner()
	require.NoError(t, h.fixture.DB.Migrator().DropTable("shared_costs"))

	_, err := h.svc.Transition(context.Background(), ev.ID.String(), "LOCKED")

	var computeErr *chargedomain.ComputeError
	require.True(t, errors.As(err, &computeErr))
	assert.Equal(t, eventdomain.EventStateOpen, h.state(t, ev))
	assert.Zero(t, h.fixture.Count(&chargedomain.EventCharge{}, "event_id = ?", ev.ID))
}

func TestTransition_InputErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, _ := h.seedDinner()

	_, err := h.svc.Transition(ctx, "abc", "LOCKED")
	assert.ErrorIs(t, err, eventdomain.ErrInvalidEventID)

	_, err = h.svc.Transition(ctx, ev.ID.String(), "ARCHIVED")
	assert.ErrorIs(t, err, eventdomain.ErrInvalidEventState)

	_, err = h.svc.SetState(ctx, h.fixture.Node.Generate().String(), "LOCKED")
	assert.ErrorIs(t, err, eventdomain.ErrEventNotFound)

	_, err = h.svc.Get(ctx, h.fixture.Node.Generate().String())
	assert.ErrorIs(t, err, eventdomain.ErrEventNotFound)

	got, err := h.svc.Get(ctx, ev.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ev.Name, got.Name)
	assert.Equal(t, eventdomain.EventStateOpen, h.state(t, ev))
}

func TestTransition_BusyWhileEventLocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, _ := h.seedDinner()

	release, err := h.locker.Acquire(ctx, ev.ID.String())
	require.NoError(t, err)

	_, err = h.svc.Transition(ctx, ev.ID.String(), "LOCKED")
	assert.ErrorIs(t, err, eventdomain.ErrEventBusy)
	assert.Equal(t, eventdomain.EventStateOpen, h.state(t, ev))

	release()
	_, err = h.svc.Transition(ctx, ev.ID.String(), "LOCKED")
	require.NoError(t, err)

	series, err := testutil.GatherAndCount(h.registry, "dongi_event_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "busy and ok outcomes")
}
