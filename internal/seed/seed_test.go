package seed

import (
	"context"
	"testing"

	chargerepo "github.com/smallbiznis/dongi/internal/charge/repository"
	chargeservice "github.com/smallbiznis/dongi/internal/charge/service"
	"github.com/smallbiznis/dongi/internal/clock"
	eventdomain "github.com/smallbiznis/dongi/internal/event/domain"
	"github.com/smallbiznis/dongi/internal/testkit"
	userdomain "github.com/smallbiznis/dongi/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureDemoEvent_Idempotent(t *testing.T) {
	db := testkit.OpenDB(t)
	f := testkit.NewFixture(t, db)
	clk := clock.NewFakeClock(f.Now)
	ctx := context.Background()

	first, err := EnsureDemoEvent(ctx, db, f.Node, clk)
	require.NoError(t, err)
	second, err := EnsureDemoEvent(ctx, db, f.Node, clk)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, f.Count(&eventdomain.Event{}, "1 = 1"))
	assert.EqualValues(t, 3, f.Count(&userdomain.User{}, "1 = 1"))
}

func TestEnsureDemoEvent_PreviewShowsHostFallback(t *testing.T) {
	db := testkit.OpenDB(t)
	f := testkit.NewFixture(t, db)
	clk := clock.NewFakeClock(f.Now)
	ctx := context.Background()

	eventID, err := EnsureDemoEvent(ctx, db, f.Node, clk)
	require.NoError(t, err)

	svc := chargeservice.NewService(chargeservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		Repo:  chargerepo.Provide(),
	})
	result, err := svc.ComputeEventCharges(ctx, eventID.String())
	require.NoError(t, err)

	totals := map[string]int64{}
	for _, summary := range result.PayorSummaries {
		totals[summary.PayorEmail] = summary.TotalIrr
	}
	assert.Equal(t, map[string]int64{
		"parent@dongi.local": 1580000,
		"friend@dongi.local": 340000,
	}, totals)
	assert.Empty(t, result.Skipped)
	assert.Zero(t, result.RoundingLossIrr)
}
