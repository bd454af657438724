// Package premium splits an option trade's premium and fees across the lots
// that back the contract, in proportion to each lot's share of coverage.
//
// Proportions for a trade must sum to 1.0 within a configurable epsilon.
// The tolerance is part of the public contract: with the default epsilon of
// 0.01, a sum of 0.99 passes and 0.985 fails.
package premium

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akashjainn/stocksense-sub000/internal/model"
)

var (
	// ErrNoAllocations is returned when a trade carries no allocation lines.
	ErrNoAllocations = errors.New("premium: at least one allocation is required")

	// ErrProportionOutOfRange is returned when a single proportion falls
	// outside [0, 1].
	ErrProportionOutOfRange = errors.New("premium: proportion must be between 0 and 1")

	// ErrProportionSum is returned when the proportions do not sum to 1.0
	// within the allocator's epsilon.
	ErrProportionSum = errors.New("premium: allocations must sum to 1.0")

	// DefaultEpsilon is the default tolerance on the proportion sum.
	DefaultEpsilon = decimal.NewFromFloat(0.01)
)

// Line is one lot's share of a trade's premium.
type Line struct {
	LotID      string          `json:"lot_id"`
	Proportion decimal.Decimal `json:"proportion"`
}

// Allocator apportions premium and fees across lots.
type Allocator struct {
	// Epsilon is the allowed deviation of the proportion sum from 1.0.
	Epsilon decimal.Decimal
}

// NewAllocator creates an allocator. A non-positive epsilon falls back to
// DefaultEpsilon.
func NewAllocator(epsilon decimal.Decimal) *Allocator {
	if epsilon.LessThanOrEqual(decimal.Zero) {
		epsilon = DefaultEpsilon
	}
	return &Allocator{Epsilon: epsilon}
}

// Validate checks the allocation lines without producing records. It is run
// before any write so that a rejected trade leaves no trace.
func (a *Allocator) Validate(lines []Line) error {
	if len(lines) == 0 {
		return ErrNoAllocations
	}

	one := decimal.NewFromInt(1)
	sum := decimal.Zero
	for _, l := range lines {
		if l.Proportion.IsNegative() || l.Proportion.GreaterThan(one) {
			return fmt.Errorf("%w: lot %s has %s", ErrProportionOutOfRange, l.LotID, l.Proportion)
		}
		sum = sum.Add(l.Proportion)
	}

	if sum.Sub(one).Abs().GreaterThan(a.Epsilon) {
		return fmt.Errorf("%w: got %s", ErrProportionSum, sum)
	}
	return nil
}

// Allocate validates the lines and produces one PremiumAllocation per line,
// with premium and fees split by proportion. Premium keeps the caller's sign
// convention: positive received (OPEN), negative paid (CLOSE).
func (a *Allocator) Allocate(tradeID string, totalPremium, totalFees decimal.Decimal, lines []Line) ([]model.PremiumAllocation, error) {
	if err := a.Validate(lines); err != nil {
		return nil, err
	}

	allocs := make([]model.PremiumAllocation, 0, len(lines))
	for _, l := range lines {
		allocs = append(allocs, model.PremiumAllocation{
			ID:            uuid.New().String(),
			OptionTradeID: tradeID,
			LotID:         l.LotID,
			Premium:       totalPremium.Mul(l.Proportion),
			Fees:          totalFees.Mul(l.Proportion),
			Proportion:    l.Proportion,
		})
	}
	return allocs, nil
}

// OpenPremium computes the position-level premium received when writing
// contracts: contracts × pricePerContract × multiplier − fees.
func OpenPremium(contracts int64, pricePerContract decimal.Decimal, multiplier int64, fees decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(contracts).
		Mul(pricePerContract).
		Mul(decimal.NewFromInt(multiplier)).
		Sub(fees)
}

// ClosePremium computes the (negative) premium paid to buy contracts back:
// −(contracts × pricePerContract × multiplier + fees).
func ClosePremium(contracts int64, pricePerContract decimal.Decimal, multiplier int64, fees decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(contracts).
		Mul(pricePerContract).
		Mul(decimal.NewFromInt(multiplier)).
		Add(fees).
		Neg()
}
