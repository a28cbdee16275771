// Package engine turns an event snapshot into participant and payor charges.
// It performs no I/O and reads no clock, so equal snapshots give equal results.
package engine

import (
	chargedomain "github.com/smallbiznis/dongi/internal/charge/domain"
)

const sharedLinePrefix = "shared:"

type ledger struct {
	order   []string
	charges map[string]*chargedomain.ParticipantCharge
}

func (l *ledger) add(participantID string, line chargedomain.BreakdownLine) {
	charge, ok := l.charges[participantID]
	if !ok {
		charge = &chargedomain.ParticipantCharge{ParticipantID: participantID}
		l.charges[participantID] = charge
		l.order = append(l.order, participantID)
	}
	charge.TotalIrr += line.ShareAmountIrr
	charge.Breakdown = append(charge.Breakdown, line)
}

// Compute applies shared costs first, then selections, then resolves payors
// and groups participant totals per payor. Costs that cannot be split are
// reported in Result.Skipped instead of failing the computation.
func Compute(snap chargedomain.Snapshot) *chargedomain.Result {
	names := make(map[string]string, len(snap.Participants))
	owners := make(map[string]string, len(snap.Participants))
	attending := make([]string, 0, len(snap.Participants))
	attendingSet := make(map[string]struct{}, len(snap.Participants))
	for _, p := range snap.Participants {
		names[p.ID] = p.DisplayName
		owners[p.ID] = p.OwnerUserID
		if p.Attending {
			if _, dup := attendingSet[p.ID]; dup {
				continue
			}
			attending = append(attending, p.ID)
			attendingSet[p.ID] = struct{}{}
		}
	}

	exemption := NewHostExemption(snap.HostExemption, snap.HostUserIDs, owners)
	eventPool := ChargeablePool(attending, exemption)

	result := &chargedomain.Result{
		ParticipantCharges: []chargedomain.ParticipantCharge{},
		PayorSummaries:     []chargedomain.PayorSummary{},
		Skipped:            []chargedomain.Skip{},
	}
	book := &ledger{charges: make(map[string]*chargedomain.ParticipantCharge)}

	skip := func(id string, kind chargedomain.SourceKind, reason chargedomain.SkipReason) {
		result.Skipped = append(result.Skipped, chargedomain.Skip{SourceID: id, Kind: kind, Reason: reason})
	}

	for _, cost := range snap.SharedCosts {
		if cost.AmountIrr <= 0 {
			skip(cost.ID, chargedomain.SourceSharedCost, chargedomain.SkipInvalidAmount)
			continue
		}
		if len(eventPool) == 0 {
			skip(cost.ID, chargedomain.SourceSharedCost, chargedomain.SkipNoChargeableParticipants)
			continue
		}
		shareCount := int64(len(eventPool))
		perShare := cost.AmountIrr / shareCount
		if perShare == 0 {
			skip(cost.ID, chargedomain.SourceSharedCost, chargedomain.SkipShareTooSmall)
			continue
		}
		result.RoundingLossIrr += cost.AmountIrr - perShare*shareCount

		for _, pid := range eventPool {
			book.add(pid, chargedomain.BreakdownLine{
				SelectionID:    sharedLinePrefix + cost.ID,
				ItemName:       cost.Name,
				Quantity:       1,
				UnitPriceIrr:   cost.AmountIrr,
				ShareCount:     shareCount,
				ShareAmountIrr: perShare,
			})
		}
	}

	for _, sel := range snap.Selections {
		if sel.Quantity < 1 || sel.UnitPriceIrr < 0 {
			skip(sel.ID, chargedomain.SourceSelection, chargedomain.SkipInvalidSelection)
			continue
		}

		allocated := intersect(sel.ParticipantIDs, attendingSet)
		if len(allocated) == 0 {
			skip(sel.ID, chargedomain.SourceSelection, chargedomain.SkipNoAttendingAllocation)
			continue
		}

		final := ChargeablePool(allocated, exemption)
		fallback := false
		if len(final) == 0 {
			final = eventPool
			fallback = true
		}
		if len(final) == 0 {
			skip(sel.ID, chargedomain.SourceSelection, chargedomain.SkipEmptyFallbackPool)
			continue
		}

		totalCost := sel.Quantity * sel.UnitPriceIrr
		shareCount := int64(len(final))
		perShare := totalCost / shareCount
		result.RoundingLossIrr += totalCost - perShare*shareCount

		for _, pid := range final {
			book.add(pid, chargedomain.BreakdownLine{
				SelectionID:    sel.ID,
				ItemName:       sel.ItemName,
				Quantity:       sel.Quantity,
				UnitPriceIrr:   sel.UnitPriceIrr,
				ShareCount:     shareCount,
				ShareAmountIrr: perShare,
				Fallback:       fallback,
			})
		}
	}

	resolver := NewPayorResolver(snap.PayorOverrides, snap.DefaultPayors, owners)

	summaries := make(map[string]*chargedomain.PayorSummary)
	var payorOrder []string
	for _, pid := range book.order {
		charge := book.charges[pid]
		charge.ParticipantName = names[pid]
		if charge.ParticipantName == "" {
			charge.ParticipantName = pid
		}
		charge.PayorUserID = resolver.Resolve(pid)
		charge.PayorEmail = snap.Users[charge.PayorUserID].Email
		result.ParticipantCharges = append(result.ParticipantCharges, *charge)

		summary, ok := summaries[charge.PayorUserID]
		if !ok {
			summary = &chargedomain.PayorSummary{
				PayorUserID:  charge.PayorUserID,
				PayorEmail:   charge.PayorEmail,
				Participants: []chargedomain.PayorParticipant{},
			}
			summaries[charge.PayorUserID] = summary
			payorOrder = append(payorOrder, charge.PayorUserID)
		}
		summary.TotalIrr += charge.TotalIrr
		summary.Participants = append(summary.Participants, chargedomain.PayorParticipant{
			ParticipantID:   pid,
			ParticipantName: charge.ParticipantName,
			AmountIrr:       charge.TotalIrr,
		})
	}
	for _, payorID := range payorOrder {
		result.PayorSummaries = append(result.PayorSummaries, *summaries[payorID])
	}

	return result
}

// intersect keeps the allocated ids that attend, dropping duplicates.
func intersect(ids []string, attending map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := attending[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
