package premium

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func defaultAllocator() *Allocator {
	return NewAllocator(decimal.Zero)
}

// --- Validation ---

func TestValidate_EmptyLines(t *testing.T) {
	err := defaultAllocator().Validate(nil)
	if !errors.Is(err, ErrNoAllocations) {
		t.Errorf("expected ErrNoAllocations, got %v", err)
	}
}

func TestValidate_SumExactlyOne(t *testing.T) {
	err := defaultAllocator().Validate([]Line{
		{LotID: "a", Proportion: d(0.6)},
		{LotID: "b", Proportion: d(0.4)},
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_EpsilonBoundary(t *testing.T) {
	cases := []struct {
		name string
		sum  float64
		ok   bool
	}{
		{"well under", 0.85, false},
		{"well over", 1.20, false},
		{"just under tolerance", 0.99, true},
		{"just over tolerance", 1.01, true},
		{"outside tolerance low", 0.985, false},
		{"outside tolerance high", 1.02, false},
	}

	a := defaultAllocator()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := a.Validate([]Line{{LotID: "a", Proportion: d(tc.sum)}})
			if tc.ok && err != nil {
				t.Errorf("sum %v should pass, got %v", tc.sum, err)
			}
			if !tc.ok && !errors.Is(err, ErrProportionSum) {
				t.Errorf("sum %v should fail with ErrProportionSum, got %v", tc.sum, err)
			}
		})
	}
}

func TestValidate_ProportionOutOfRange(t *testing.T) {
	err := defaultAllocator().Validate([]Line{
		{LotID: "a", Proportion: d(1.5)},
		{LotID: "b", Proportion: d(-0.5)},
	})
	if !errors.Is(err, ErrProportionOutOfRange) {
		t.Errorf("expected ErrProportionOutOfRange, got %v", err)
	}
}

func TestNewAllocator_CustomEpsilon(t *testing.T) {
	a := NewAllocator(d(0.001))
	if err := a.Validate([]Line{{LotID: "a", Proportion: d(0.99)}}); err == nil {
		t.Error("0.99 should fail under epsilon 0.001")
	}
	if err := a.Validate([]Line{{LotID: "a", Proportion: d(0.9995)}}); err != nil {
		t.Errorf("0.9995 should pass under epsilon 0.001, got %v", err)
	}
}

// --- Allocation ---

func TestAllocate_Conservation(t *testing.T) {
	lines := []Line{
		{LotID: "a", Proportion: d(0.6)},
		{LotID: "b", Proportion: d(0.4)},
	}
	allocs, err := defaultAllocator().Allocate("trade1", d(249), d(1), lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocs) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocs))
	}

	premiumSum := decimal.Zero
	feeSum := decimal.Zero
	for _, a := range allocs {
		premiumSum = premiumSum.Add(a.Premium)
		feeSum = feeSum.Add(a.Fees)
	}
	if !premiumSum.Equal(d(249)) {
		t.Errorf("premium not conserved: got %s", premiumSum)
	}
	if !feeSum.Equal(d(1)) {
		t.Errorf("fees not conserved: got %s", feeSum)
	}

	if allocs[0].OptionTradeID != "trade1" || allocs[0].LotID != "a" {
		t.Errorf("allocation references wrong: %+v", allocs[0])
	}
	if !allocs[0].Premium.Equal(d(149.4)) {
		t.Errorf("expected 149.4 for 0.6 share, got %s", allocs[0].Premium)
	}
	if allocs[0].ID == "" {
		t.Error("expected generated allocation id")
	}
}

func TestAllocate_RejectsBeforeProducing(t *testing.T) {
	allocs, err := defaultAllocator().Allocate("trade1", d(100), d(0), []Line{
		{LotID: "a", Proportion: d(0.85)},
	})
	if err == nil {
		t.Fatal("expected rejection for sum 0.85")
	}
	if allocs != nil {
		t.Errorf("expected no records on rejection, got %d", len(allocs))
	}
}

func TestAllocate_NegativePremiumKeepsSign(t *testing.T) {
	allocs, err := defaultAllocator().Allocate("trade1", d(-251), d(1), []Line{
		{LotID: "a", Proportion: d(1)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allocs[0].Premium.Equal(d(-251)) {
		t.Errorf("expected -251, got %s", allocs[0].Premium)
	}
}

// --- Premium formulas ---

func TestOpenPremium(t *testing.T) {
	// 1 contract at 2.50/share × 100 multiplier − 1 fee = 249.
	got := OpenPremium(1, d(2.50), 100, d(1))
	if !got.Equal(d(249)) {
		t.Errorf("expected 249, got %s", got)
	}
}

func TestClosePremium(t *testing.T) {
	// Buying back 1 contract at 1.20/share × 100 + 1 fee = -121.
	got := ClosePremium(1, d(1.20), 100, d(1))
	if !got.Equal(d(-121)) {
		t.Errorf("expected -121, got %s", got)
	}
}
