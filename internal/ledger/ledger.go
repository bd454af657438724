// Package ledger derives lot state by replaying the lot's immutable event
// history and premium allocations against its opening terms.
//
// The replay is a pure function: no mutable aggregate is trusted as a source
// of truth, only as a cached projection. Gross cost is fixed at lot open and
// deliberately left unchanged by quantity events — a SPLIT scales quantity
// only, so the effective price per share scales down without rewriting
// historical cost.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/akashjainn/stocksense-sub000/internal/model"
)

var (
	// MoneyScale is the number of decimal places for cost and premium
	// rounding.
	MoneyScale int32 = 2

	// PriceScale is the number of decimal places for per-share prices.
	// Prices carry sub-cent precision from premium amortization.
	PriceScale int32 = 4
)

// Snapshot replays a lot's events and premium allocations and returns its
// derived state. Events must be supplied in chronological order; stores
// return them ordered by occurred_at.
//
// Calling Snapshot twice with the same inputs yields identical output, and
// the replayed quantity never goes negative (excess sells clamp at zero).
func Snapshot(lot *model.Lot, events []model.LotEvent, allocs []model.PremiumAllocation) model.LotSnapshot {
	grossCost := decimal.NewFromInt(lot.InitialQty).
		Mul(lot.PricePerShare).
		Add(lot.FeesAtOpen)

	qty := ReplayQuantity(lot.InitialQty, events)

	netPremium := decimal.Zero
	for _, a := range allocs {
		netPremium = netPremium.Add(a.Premium).Sub(a.Fees)
	}

	grossCost = grossCost.Round(MoneyScale)
	netPremium = netPremium.Round(MoneyScale)
	effectiveBasis := grossCost.Sub(netPremium).Round(MoneyScale)

	effectivePrice := decimal.Zero
	if qty > 0 {
		effectivePrice = effectiveBasis.
			Div(decimal.NewFromInt(qty)).
			Round(PriceScale)
	}

	return model.LotSnapshot{
		CurrentQty:             qty,
		GrossCost:              grossCost,
		NetPremium:             netPremium,
		EffectiveBasis:         effectiveBasis,
		EffectivePricePerShare: effectivePrice,
	}
}

// ReplayQuantity replays quantity-affecting events against an initial share
// count. DIVIDEND and ADJUSTMENT events carry cash only and do not touch
// quantity.
func ReplayQuantity(initialQty int64, events []model.LotEvent) int64 {
	qty := initialQty

	for _, e := range events {
		switch e.Type {
		case model.EventSplit:
			// Ratio rides in Amount; missing or zero means no split.
			ratio := e.Amount
			if ratio.IsZero() {
				ratio = decimal.NewFromInt(1)
			}
			if ratio.IsPositive() && !ratio.Equal(decimal.NewFromInt(1)) {
				qty = decimal.NewFromInt(qty).Mul(ratio).Round(0).IntPart()
			}

		case model.EventSell, model.EventAssignedAway:
			qty -= e.Quantity
			if qty < 0 {
				qty = 0
			}

		case model.EventBuy, model.EventAssignmentIn:
			// Back-fill inflows; the primary inflow path is lot creation.
			qty += e.Quantity
		}
	}

	return qty
}
