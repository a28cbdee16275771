package engine

import (
	"encoding/json"
	"fmt"
	"testing"

	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attendee(id, owner string) chargedomain.SnapshotParticipant {
	return chargedomain.SnapshotParticipant{ID: id, DisplayName: "name-" + id, OwnerUserID: owner, Attending: true}
}

func lineTotals(result *chargedomain.Result) map[string]int64 {
	totals := map[string]int64{}
	for _, c := range result.ParticipantCharges {
		totals[c.ParticipantID] = c.TotalIrr
	}
	return totals
}

func TestCompute_EvenSelectionSplit(t *testing.T) {
	snap := chargedomain.Snapshot{
		EventID:      "e1",
		Participants: []chargedomain.SnapshotParticipant{attendee("p1", "u1"), attendee("p2", "u2")},
		Selections: []chargedomain.SnapshotSelection{
			{ID: "s1", ItemName: "kebab", Quantity: 3, UnitPriceIrr: 1000, ParticipantIDs: []string{"p1", "p2"}},
		},
	}

	result := Compute(snap)

	require.Len(t, result.ParticipantCharges, 2)
	for _, c := range result.ParticipantCharges {
		require.Len(t, c.Breakdown, 1)
		assert.EqualValues(t, 2, c.Breakdown[0].ShareCount)
		assert.EqualValues(t, 1500, c.Breakdown[0].ShareAmountIrr)
		assert.EqualValues(t, 1500, c.TotalIrr)
	}
	assert.Zero(t, result.RoundingLossIrr)
}

func TestCompute_OddSplitDropsRemainder(t *testing.T) {
	snap := chargedomain.Snapshot{
		Participants: []chargedomain.SnapshotParticipant{attendee("p1", "u1"), attendee("p2", "u2"), attendee("p3", "u3")},
		Selections: []chargedomain.SnapshotSelection{
			{ID: "s1", ItemName: "rice", Quantity: 1, UnitPriceIrr: 1000, ParticipantIDs: []string{"p1", "p2", "p3"}},
		},
	}

	result := Compute(snap)

	var sum int64
	for _, c := range result.ParticipantCharges {
		assert.EqualValues(t, 333, c.TotalIrr)
		sum += c.TotalIrr
	}
	assert.EqualValues(t, 999, sum)
	assert.EqualValues(t, 1, result.RoundingLossIrr)
}

func TestCompute_SharedCostEqualSplit(t *testing.T) {
	snap := chargedomain.Snapshot{
		Participants: []chargedomain.SnapshotParticipant{
			attendee("p1", "u1"), attendee("p2", "u2"), attendee("p3", "u3"), attendee("p4", "u4"),
		},
		SharedCosts: []chargedomain.SnapshotSharedCost{{ID: "c1", Name: "venue", AmountIrr: 500}},
	}

	result := Compute(snap)

	require.Len(t, result.ParticipantCharges, 4)
	for _, c := range result.ParticipantCharges {
		require.Len(t, c.Breakdown, 1)
		line := c.Breakdown[0]
		assert.Equal(t, "shared:c1", line.SelectionID)
		assert.EqualValues(t, 1, line.Quantity)
		assert.EqualValues(t, 500, line.UnitPriceIrr)
		assert.EqualValues(t, 4, line.ShareCount)
		assert.EqualValues(t, 125, line.ShareAmountIrr)
	}
	assert.Zero(t, result.RoundingLossIrr)
}

func TestCompute_HostExemptFromSharedCost(t *testing.T) {
	snap := chargedomain.Snapshot{
		HostUserIDs:   []string{"host"},
		HostExemption: true,
		Participants: []chargedomain.SnapshotParticipant{
			attendee("ph", "host"), attendee("p1", "u1"), attendee("p2", "u2"),
		},
		SharedCosts: []chargedomain.SnapshotSharedCost{{ID: "c1", Name: "venue", AmountIrr: 300}},
	}

	totals := lineTotals(Compute(snap))

	assert.Equal(t, map[string]int64{"p1": 150, "p2": 150}, totals)
}

func TestCompute_HostOnlySelectionFallsBackToEventPool(t *testing.T) {
	snap := chargedomain.Snapshot{
		HostUserIDs:   []string{"host"},
		HostExemption: true,
		Participants: []chargedomain.SnapshotParticipant{
			attendee("ph", "host"), attendee("p1", "u1"), attendee("p2", "u2"),
		},
		Selections: []chargedomain.SnapshotSelection{
			{ID: "s1", ItemName: "steak", Quantity: 1, UnitPriceIrr: 901, ParticipantIDs: []string{"ph"}},
		},
	}

	result := Compute(snap)

	assert.Equal(t, map[string]int64{"p1": 450, "p2": 450}, lineTotals(result))
	for _, c := range result.ParticipantCharges {
		assert.True(t, c.Breakdown[0].Fallback)
	}
	assert.EqualValues(t, 1, result.RoundingLossIrr)
}

func TestCompute_MixedAllocationChargesOnlyNonHosts(t *testing.T) {
	snap := chargedomain.Snapshot{
		HostUserIDs:   []string{"host"},
		HostExemption: true,
		Participants: []chargedomain.SnapshotParticipant{
			attendee("ph", "host"), attendee("p1", "u1"), attendee("p2", "u2"),
		},
		Selections: []chargedomain.SnapshotSelection{
			{ID: "s1", ItemName: "tea", Quantity: 2, UnitPriceIrr: 100, ParticipantIDs: []string{"ph", "p1"}},
		},
	}

	result := Compute(snap)

	assert.Equal(t, map[string]int64{"p1": 200}, lineTotals(result))
	assert.False(t, result.ParticipantCharges[0].Breakdown[0].Fallback)
}

func TestCompute_SkipReasons(t *testing.T) {
	snap := chargedomain.Snapshot{
		HostUserIDs:   []string{"host"},
		HostExemption: true,
		Participants: []chargedomain.SnapshotParticipant{
			attendee("ph", "host"),
			{ID: "p9", OwnerUserID: "u9", Attending: false},
		},
		SharedCosts: []chargedomain.SnapshotSharedCost{
			{ID: "zero", AmountIrr: 0},
			{ID: "negative", AmountIrr: -10},
			{ID: "hosts-only", AmountIrr: 100},
		},
		Selections: []chargedomain.SnapshotSelection{
			{ID: "bad-qty", Quantity: 0, UnitPriceIrr: 10, ParticipantIDs: []string{"ph"}},
			{ID: "absent", Quantity: 1, UnitPriceIrr: 10, ParticipantIDs: []string{"p9"}},
			{ID: "host-food", Quantity: 1, UnitPriceIrr: 10, ParticipantIDs: []string{"ph"}},
		},
	}

	result := Compute(snap)

	assert.Empty(t, result.ParticipantCharges)
	assert.Empty(t, result.PayorSummaries)
	assert.Equal(t, []chargedomain.Skip{
		{SourceID: "zero", Kind: chargedomain.SourceSharedCost, Reason: chargedomain.SkipInvalidAmount},
		{SourceID: "negative", Kind: chargedomain.SourceSharedCost, Reason: chargedomain.SkipInvalidAmount},
		{SourceID: "hosts-only", Kind: chargedomain.SourceSharedCost, Reason: chargedomain.SkipNoChargeableParticipants},
		{SourceID: "bad-qty", Kind: chargedomain.SourceSelection, Reason: chargedomain.SkipInvalidSelection},
		{SourceID: "absent", Kind: chargedomain.SourceSelection, Reason: chargedomain.SkipNoAttendingAllocation},
		{SourceID: "host-food", Kind: chargedomain.SourceSelection, Reason: chargedomain.SkipEmptyFallbackPool},
	}, result.Skipped)
}

func TestCompute_SharedCostTooSmallToSplit(t *testing.T) {
	snap := chargedomain.Snapshot{
		Participants: []chargedomain.SnapshotParticipant{attendee("p1", "u1"), attendee("p2", "u2"), attendee("p3", "u3")},
		SharedCosts:  []chargedomain.SnapshotSharedCost{{ID: "c1", AmountIrr: 2}},
	}

	result := Compute(snap)

	assert.Empty(t, result.ParticipantCharges)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, chargedomain.SkipShareTooSmall, result.Skipped[0].Reason)
	assert.Zero(t, result.RoundingLossIrr)
}

func TestCompute_DeclinedAndTentativeAreNotCharged(t *testing.T) {
	tentative := attendee("p2", "u2")
	tentative.Attending = false
	snap := chargedomain.Snapshot{
		Participants: []chargedomain.SnapshotParticipant{attendee("p1", "u1"), tentative},
		SharedCosts:  []chargedomain.SnapshotSharedCost{{ID: "c1", AmountIrr: 100}},
		Selections: []chargedomain.SnapshotSelection{
			{ID: "s1", Quantity: 1, UnitPriceIrr: 50, ParticipantIDs: []string{"p1", "p2"}},
		},
	}

	assert.Equal(t, map[string]int64{"p1": 150}, lineTotals(Compute(snap)))
}

func TestCompute_PayorResolutionAndEmails(t *testing.T) {
	snap := chargedomain.Snapshot{
		Participants: []chargedomain.SnapshotParticipant{
			attendee("child", "parent"),
			attendee("guest", "guest-owner"),
			attendee("solo", ""),
		},
		SharedCosts:    []chargedomain.SnapshotSharedCost{{ID: "c1", AmountIrr: 300}},
		PayorOverrides: map[string]string{"guest": "sponsor"},
		DefaultPayors:  map[string]string{"guest": "ignored", "child": "grandma"},
		Users: map[string]chargedomain.SnapshotUser{
			"grandma": {Email: "grandma@example.com"},
			"sponsor": {Email: "sponsor@example.com"},
		},
	}

	result := Compute(snap)

	payors := map[string]string{}
	emails := map[string]string{}
	for _, c := range result.ParticipantCharges {
		payors[c.ParticipantID] = c.PayorUserID
		emails[c.ParticipantID] = c.PayorEmail
	}
	assert.Equal(t, map[string]string{"child": "grandma", "guest": "sponsor", "solo": "solo"}, payors)
	assert.Equal(t, "grandma@example.com", emails["child"])
	assert.Equal(t, "", emails["solo"])
}

func TestCompute_PayorSummariesGroupParticipants(t *testing.T) {
	snap := chargedomain.Snapshot{
		Participants: []chargedomain.SnapshotParticipant{
			attendee("kid1", "mom"), attendee("kid2", "mom"), attendee("dad", "dad-user"),
		},
		Selections: []chargedomain.SnapshotSelection{
			{ID: "s1", Quantity: 1, UnitPriceIrr: 600, ParticipantIDs: []string{"kid1", "kid2", "dad"}},
			{ID: "s2", Quantity: 1, UnitPriceIrr: 100, ParticipantIDs: []string{"kid2"}},
		},
	}

	result := Compute(snap)

	require.Len(t, result.PayorSummaries, 2)
	mom := result.PayorSummaries[0]
	assert.Equal(t, "mom", mom.PayorUserID)
	assert.EqualValues(t, 500, mom.TotalIrr)
	assert.Equal(t, []chargedomain.PayorParticipant{
		{ParticipantID: "kid1", ParticipantName: "name-kid1", AmountIrr: 200},
		{ParticipantID: "kid2", ParticipantName: "name-kid2", AmountIrr: 300},
	}, mom.Participants)
	assert.Equal(t, "dad-user", result.PayorSummaries[1].PayorUserID)
}

func TestCompute_IsIdempotent(t *testing.T) {
	snap := randomSnapshot(7)

	first, err := json.Marshal(Compute(snap))
	require.NoError(t, err)
	second, err := json.Marshal(Compute(snap))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestCompute_Properties(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		snap := randomSnapshot(seed)
		result := Compute(snap)

		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			perSource := map[string]int64{}
			nominal := map[string]int64{}
			shareCount := map[string]int64{}
			for _, c := range result.ParticipantCharges {
				var sum int64
				for _, line := range c.Breakdown {
					sum += line.ShareAmountIrr
					perSource[line.SelectionID] += line.ShareAmountIrr
					nominal[line.SelectionID] = line.Quantity * line.UnitPriceIrr
					shareCount[line.SelectionID] = line.ShareCount
				}
				assert.Equal(t, sum, c.TotalIrr, "participant total equals its lines")
			}

			var loss int64
			for source, charged := range perSource {
				assert.LessOrEqual(t, charged, nominal[source])
				assert.LessOrEqual(t, nominal[source]-charged, shareCount[source]-1)
				loss += nominal[source] - charged
			}
			assert.Equal(t, loss, result.RoundingLossIrr)

			byPayor := map[string]int64{}
			for _, c := range result.ParticipantCharges {
				byPayor[c.PayorUserID] += c.TotalIrr
			}
			require.Len(t, result.PayorSummaries, len(byPayor))
			for _, s := range result.PayorSummaries {
				assert.Equal(t, byPayor[s.PayorUserID], s.TotalIrr)
			}
		})
	}
}

func TestCompute_ExemptionMonotonicity(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		snap := randomSnapshot(seed)
		snap.HostUserIDs = []string{"u0"}

		snap.HostExemption = false
		off := Compute(snap)
		snap.HostExemption = true
		on := Compute(snap)

		offTotals, onTotals := lineTotals(off), lineTotals(on)
		hosts := map[string]bool{}
		for _, p := range snap.Participants {
			hosts[p.ID] = p.OwnerUserID == "u0"
		}

		var offNonHost, onNonHost int64
		for id, total := range offTotals {
			if hosts[id] {
				assert.LessOrEqualf(t, onTotals[id], total, "seed %d host %s", seed, id)
				continue
			}
			offNonHost += total
		}
		for id, total := range onTotals {
			if !hosts[id] {
				onNonHost += total
			}
		}
		assert.GreaterOrEqualf(t, onNonHost, offNonHost, "seed %d", seed)
	}
}

// randomSnapshot builds a deterministic pseudo-random event from seed.
func randomSnapshot(seed int64) chargedomain.Snapshot {
	state := uint64(seed)*6364136223846793005 + 1442695040888963407
	next := func(n int) int {
		state = state*6364136223846793005 + 1442695040888963407
		return int((state >> 33) % uint64(n))
	}

	snap := chargedomain.Snapshot{
		EventID:        fmt.Sprintf("e%d", seed),
		PayorOverrides: map[string]string{},
		DefaultPayors:  map[string]string{},
		Users:          map[string]chargedomain.SnapshotUser{},
	}
	count := 2 + next(6)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("p%d", i)
		owner := fmt.Sprintf("u%d", next(3))
		snap.Participants = append(snap.Participants, chargedomain.SnapshotParticipant{
			ID: id, DisplayName: id, OwnerUserID: owner, Attending: next(4) != 0,
		})
		if next(5) == 0 {
			snap.DefaultPayors[id] = "payor-default"
		}
		if next(7) == 0 {
			snap.PayorOverrides[id] = "payor-override"
		}
	}
	for i := 0; i < 1+next(3); i++ {
		snap.SharedCosts = append(snap.SharedCosts, chargedomain.SnapshotSharedCost{
			ID: fmt.Sprintf("c%d", i), Name: "cost", AmountIrr: int64(next(2000)),
		})
	}
	for i := 0; i < 1+next(5); i++ {
		sel := chargedomain.SnapshotSelection{
			ID:           fmt.Sprintf("s%d", i),
			ItemName:     "item",
			Quantity:     int64(1 + next(4)),
			UnitPriceIrr: int64(next(5000)),
		}
		for j := 0; j < 1+next(count); j++ {
			sel.ParticipantIDs = append(sel.ParticipantIDs, fmt.Sprintf("p%d", next(count)))
		}
		snap.Selections = append(snap.Selections, sel)
	}
	return snap
}
