package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akashjainn/stocksense-sub000/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testLot(qty int64, price float64, fees float64) *model.Lot {
	return &model.Lot{
		ID:            "lot1",
		AccountID:     "acct1",
		Symbol:        "AAPL",
		OpenedAt:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		InitialQty:    qty,
		CurrentQty:    qty,
		PricePerShare: d(price),
		FeesAtOpen:    d(fees),
	}
}

func event(typ string, qty int64, amount float64) model.LotEvent {
	return model.LotEvent{
		LotID:    "lot1",
		Type:     typ,
		Quantity: qty,
		Amount:   d(amount),
	}
}

// --- Gross cost and basis ---

func TestSnapshot_OpeningTermsOnly(t *testing.T) {
	lot := testLot(100, 150, 5)
	snap := Snapshot(lot, nil, nil)

	if snap.CurrentQty != 100 {
		t.Errorf("expected qty 100, got %d", snap.CurrentQty)
	}
	if !snap.GrossCost.Equal(d(15005)) {
		t.Errorf("expected gross cost 15005, got %s", snap.GrossCost)
	}
	if !snap.NetPremium.IsZero() {
		t.Errorf("expected zero net premium, got %s", snap.NetPremium)
	}
	if !snap.EffectiveBasis.Equal(d(15005)) {
		t.Errorf("expected effective basis 15005, got %s", snap.EffectiveBasis)
	}
	if !snap.EffectivePricePerShare.Equal(d(150.05)) {
		t.Errorf("expected effective price 150.05, got %s", snap.EffectivePricePerShare)
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	lot := testLot(100, 150, 5)
	events := []model.LotEvent{
		event(model.EventSell, 30, 0),
		event(model.EventSplit, 0, 2),
	}
	allocs := []model.PremiumAllocation{
		{LotID: "lot1", Premium: d(249), Fees: d(1)},
	}

	first := Snapshot(lot, events, allocs)
	second := Snapshot(lot, events, allocs)

	if first.CurrentQty != second.CurrentQty ||
		!first.GrossCost.Equal(second.GrossCost) ||
		!first.NetPremium.Equal(second.NetPremium) ||
		!first.EffectiveBasis.Equal(second.EffectiveBasis) ||
		!first.EffectivePricePerShare.Equal(second.EffectivePricePerShare) {
		t.Errorf("replay is not deterministic: %+v vs %+v", first, second)
	}
}

// --- Quantity replay ---

func TestReplayQuantity_SellReducesQty(t *testing.T) {
	got := ReplayQuantity(100, []model.LotEvent{event(model.EventSell, 30, 0)})
	if got != 70 {
		t.Errorf("expected 70, got %d", got)
	}
}

func TestReplayQuantity_ExcessSellClampsAtZero(t *testing.T) {
	got := ReplayQuantity(100, []model.LotEvent{
		event(model.EventSell, 80, 0),
		event(model.EventAssignedAway, 80, 0),
	})
	if got != 0 {
		t.Errorf("expected clamp at 0, got %d", got)
	}
}

func TestReplayQuantity_BuyAndAssignmentInAdd(t *testing.T) {
	got := ReplayQuantity(100, []model.LotEvent{
		event(model.EventBuy, 50, 0),
		event(model.EventAssignmentIn, 25, 0),
	})
	if got != 175 {
		t.Errorf("expected 175, got %d", got)
	}
}

func TestReplayQuantity_DividendAndAdjustmentIgnored(t *testing.T) {
	got := ReplayQuantity(100, []model.LotEvent{
		event(model.EventDividend, 0, 42.50),
		event(model.EventAdjustment, 0, -3.10),
	})
	if got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
}

func TestReplayQuantity_SplitDefaultsToNoOp(t *testing.T) {
	got := ReplayQuantity(100, []model.LotEvent{event(model.EventSplit, 0, 0)})
	if got != 100 {
		t.Errorf("expected 100 for missing ratio, got %d", got)
	}
}

func TestReplayQuantity_NegativeRatioIgnored(t *testing.T) {
	got := ReplayQuantity(100, []model.LotEvent{event(model.EventSplit, 0, -2)})
	if got != 100 {
		t.Errorf("expected 100 for negative ratio, got %d", got)
	}
}

func TestReplayQuantity_ReverseSplitRounds(t *testing.T) {
	// 3-for-10 reverse split on 105 shares: 31.5 rounds to 32.
	got := ReplayQuantity(105, []model.LotEvent{event(model.EventSplit, 0, 0.3)})
	if got != 32 {
		t.Errorf("expected 32, got %d", got)
	}
}

// --- Split cost neutrality ---

func TestSnapshot_SplitHalvesEffectivePrice(t *testing.T) {
	lot := testLot(100, 150, 0)
	before := Snapshot(lot, nil, nil)
	after := Snapshot(lot, []model.LotEvent{event(model.EventSplit, 0, 2)}, nil)

	if after.CurrentQty != 200 {
		t.Fatalf("expected 200 shares after 2-for-1 split, got %d", after.CurrentQty)
	}
	if !after.GrossCost.Equal(before.GrossCost) {
		t.Errorf("split must not change gross cost: before=%s after=%s",
			before.GrossCost, after.GrossCost)
	}
	half := before.EffectivePricePerShare.Div(d(2)).Round(PriceScale)
	if !after.EffectivePricePerShare.Equal(half) {
		t.Errorf("expected effective price %s after split, got %s",
			half, after.EffectivePricePerShare)
	}
}

// --- Premium effects ---

func TestSnapshot_NetPremiumReducesBasis(t *testing.T) {
	lot := testLot(100, 150, 0)
	allocs := []model.PremiumAllocation{
		{LotID: "lot1", Premium: d(249), Fees: d(1)},
	}

	snap := Snapshot(lot, nil, allocs)

	if !snap.NetPremium.Equal(d(248)) {
		t.Errorf("expected net premium 248, got %s", snap.NetPremium)
	}
	if !snap.EffectiveBasis.Equal(d(14752)) {
		t.Errorf("expected effective basis 14752, got %s", snap.EffectiveBasis)
	}
	if !snap.EffectivePricePerShare.Equal(d(147.52)) {
		t.Errorf("expected effective price 147.52, got %s", snap.EffectivePricePerShare)
	}
}

func TestSnapshot_NegativePremiumRaisesBasis(t *testing.T) {
	lot := testLot(100, 150, 0)
	allocs := []model.PremiumAllocation{
		{LotID: "lot1", Premium: d(249), Fees: d(1)},
		{LotID: "lot1", Premium: d(-120), Fees: d(1)}, // cost to close
	}

	snap := Snapshot(lot, nil, allocs)

	if !snap.NetPremium.Equal(d(127)) {
		t.Errorf("expected net premium 127, got %s", snap.NetPremium)
	}
	if !snap.EffectiveBasis.Equal(d(14873)) {
		t.Errorf("expected effective basis 14873, got %s", snap.EffectiveBasis)
	}
}

func TestSnapshot_ZeroQtyZeroEffectivePrice(t *testing.T) {
	lot := testLot(100, 150, 0)
	snap := Snapshot(lot, []model.LotEvent{event(model.EventSell, 100, 0)}, nil)

	if snap.CurrentQty != 0 {
		t.Fatalf("expected 0 shares, got %d", snap.CurrentQty)
	}
	if !snap.EffectivePricePerShare.IsZero() {
		t.Errorf("expected 0 effective price for empty lot, got %s",
			snap.EffectivePricePerShare)
	}
}

func TestSnapshot_SubCentPrecision(t *testing.T) {
	// Premium amortization can leave sub-cent per-share prices.
	lot := testLot(3, 10, 0)
	allocs := []model.PremiumAllocation{
		{LotID: "lot1", Premium: d(1), Fees: decimal.Zero},
	}

	snap := Snapshot(lot, nil, allocs)

	// (30 - 1) / 3 = 9.6667 at four decimal places.
	if !snap.EffectivePricePerShare.Equal(d(9.6667)) {
		t.Errorf("expected 9.6667, got %s", snap.EffectivePricePerShare)
	}
}
