// Package model defines the core domain types shared across the position engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot event types. Events are append-only facts; corrections are made by
// appending an ADJUSTMENT event, never by mutating history.
const (
	EventBuy          = "BUY"
	EventSell         = "SELL"
	EventDividend     = "DIVIDEND"
	EventSplit        = "SPLIT"
	EventAssignedAway = "ASSIGNED_AWAY"
	EventAssignmentIn = "ASSIGNMENT_IN"
	EventAdjustment   = "ADJUSTMENT"
)

// Option position types and statuses.
const (
	OptionCall = "CALL"
	OptionPut  = "PUT"

	SideShort = "SHORT"

	StatusOpen     = "OPEN"
	StatusClosed   = "CLOSED"
	StatusAssigned = "ASSIGNED"
	StatusExpired  = "EXPIRED"
)

// Option trade actions.
const (
	ActionOpen   = "OPEN"
	ActionClose  = "CLOSE"
	ActionAssign = "ASSIGN"
	ActionExpire = "EXPIRE"
)

// DefaultMultiplier is the standard shares-per-contract multiplier for
// equity options.
const DefaultMultiplier int64 = 100

// Lot is a block of shares acquired at a single cost basis.
//
// InitialQty and PricePerShare are immutable opening terms. CurrentQty is a
// cached projection maintained alongside event appends; the replayed event
// history is always the source of truth and snapshots never trust the cache.
// A lot is never deleted; it is economically closed when CurrentQty reaches 0.
type Lot struct {
	ID            string          `json:"id" db:"id"`
	AccountID     string          `json:"account_id" db:"account_id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	OpenedAt      time.Time       `json:"opened_at" db:"opened_at"`
	InitialQty    int64           `json:"initial_qty" db:"initial_qty"`
	CurrentQty    int64           `json:"current_qty" db:"current_qty"`
	PricePerShare decimal.Decimal `json:"price_per_share" db:"price_per_share"`
	FeesAtOpen    decimal.Decimal `json:"fees_at_open" db:"fees_at_open"`
	Notes         string          `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// LotEvent is an immutable, append-only fact about a lot.
//
// Quantity carries share counts for BUY/SELL/ASSIGNED_AWAY/ASSIGNMENT_IN.
// Amount carries the cash amount for DIVIDEND/ADJUSTMENT and the split ratio
// for SPLIT.
type LotEvent struct {
	ID         string          `json:"id" db:"id"`
	LotID      string          `json:"lot_id" db:"lot_id"`
	OccurredAt time.Time       `json:"occurred_at" db:"occurred_at"`
	Type       string          `json:"type" db:"type"`
	Quantity   int64           `json:"quantity,omitempty" db:"quantity"`
	Amount     decimal.Decimal `json:"amount,omitempty" db:"amount"`
	Memo       string          `json:"memo,omitempty" db:"memo"`
}

// OptionPosition is a short option contract: a covered call written against
// lots, or a cash-secured put. Only short positions are modeled.
//
// Status transitions: OPEN → ASSIGNED | EXPIRED (terminal). A CLOSE trade
// does not itself change status; RecomputeStatus can move OPEN → CLOSED once
// closed contracts cover opened contracts.
type OptionPosition struct {
	ID         string          `json:"id" db:"id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Type       string          `json:"type" db:"type"` // CALL or PUT
	Side       string          `json:"side" db:"side"` // always SHORT
	Strike     decimal.Decimal `json:"strike" db:"strike"`
	Expiry     time.Time       `json:"expiry" db:"expiry"`
	Multiplier int64           `json:"multiplier" db:"multiplier"` // shares per contract
	Status     string          `json:"status" db:"status"`
	OpenedAt   time.Time       `json:"opened_at" db:"opened_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// OptionTrade is one action taken against an option position. Append-only.
// PricePerContract is signed: positive premium is received (OPEN), and the
// same field carries the amount paid on CLOSE.
type OptionTrade struct {
	ID               string          `json:"id" db:"id"`
	OptionPositionID string          `json:"option_position_id" db:"option_position_id"`
	Action           string          `json:"action" db:"action"`
	OccurredAt       time.Time       `json:"occurred_at" db:"occurred_at"`
	Contracts        int64           `json:"contracts" db:"contracts"`
	PricePerContract decimal.Decimal `json:"price_per_contract" db:"price_per_contract"`
	Fees             decimal.Decimal `json:"fees" db:"fees"`
}

// PremiumAllocation apportions one option trade's economics to one lot.
// Premium is signed: positive received, negative paid. Proportions across a
// trade's allocations sum to 1.0 within the allocator's epsilon.
type PremiumAllocation struct {
	ID            string          `json:"id" db:"id"`
	OptionTradeID string          `json:"option_trade_id" db:"option_trade_id"`
	LotID         string          `json:"lot_id" db:"lot_id"`
	Premium       decimal.Decimal `json:"premium" db:"premium"`
	Fees          decimal.Decimal `json:"fees" db:"fees"`
	Proportion    decimal.Decimal `json:"proportion" db:"proportion"`
}

// LotSnapshot is the point-in-time state of a lot derived by replaying its
// event and allocation history against the opening terms.
type LotSnapshot struct {
	CurrentQty             int64           `json:"current_qty"`
	GrossCost              decimal.Decimal `json:"gross_cost"`
	NetPremium             decimal.Decimal `json:"net_premium"`
	EffectiveBasis         decimal.Decimal `json:"effective_basis"`
	EffectivePricePerShare decimal.Decimal `json:"effective_price_per_share"`
}
