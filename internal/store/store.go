// Package store defines the persistence interface for the position engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/akashjainn/stocksense-sub000/internal/model"
)

// ErrNotFound is returned when a referenced lot or option position does not
// exist. Callers distinguish it from store failures when mapping to HTTP.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Lot events, option trades, and
// premium allocations are append-only: there is no update or delete for them.
type Store interface {
	// --- Lots ---

	// CreateLot persists a new lot.
	CreateLot(ctx context.Context, lot *model.Lot) error

	// GetLot retrieves a lot by its ID.
	GetLot(ctx context.Context, id string) (*model.Lot, error)

	// ListLotsByAccount returns all lots owned by an account.
	ListLotsByAccount(ctx context.Context, accountID string) ([]model.Lot, error)

	// AdjustLotQuantity increments the cached current quantity by delta
	// (negative to reduce). The event history stays the source of truth.
	AdjustLotQuantity(ctx context.Context, lotID string, delta int64) error

	// --- Lot events (immutable) ---

	// InsertLotEvent appends an immutable lot event.
	InsertLotEvent(ctx context.Context, event *model.LotEvent) error

	// ListLotEvents returns a lot's events ordered by occurrence time.
	ListLotEvents(ctx context.Context, lotID string) ([]model.LotEvent, error)

	// ListLotEventsByLots returns events for many lots in one query,
	// grouped by lot ID and ordered by occurrence time within each lot.
	ListLotEventsByLots(ctx context.Context, lotIDs []string) (map[string][]model.LotEvent, error)

	// --- Option positions ---

	// CreateOptionPosition persists a new short option position.
	CreateOptionPosition(ctx context.Context, pos *model.OptionPosition) error

	// GetOptionPosition retrieves a position by its ID.
	GetOptionPosition(ctx context.Context, id string) (*model.OptionPosition, error)

	// ListOptionPositionsByAccount returns all positions for an account.
	ListOptionPositionsByAccount(ctx context.Context, accountID string) ([]model.OptionPosition, error)

	// SetOptionPositionStatus updates a position's status and timestamp.
	SetOptionPositionStatus(ctx context.Context, id, status string, at time.Time) error

	// TouchOptionPosition bumps a position's update timestamp only.
	TouchOptionPosition(ctx context.Context, id string, at time.Time) error

	// --- Option trades (immutable) ---

	// InsertOptionTrade appends an immutable option trade record.
	InsertOptionTrade(ctx context.Context, trade *model.OptionTrade) error

	// ListOptionTrades returns a position's trades ordered by occurrence time.
	ListOptionTrades(ctx context.Context, positionID string) ([]model.OptionTrade, error)

	// --- Premium allocations (immutable) ---

	// InsertPremiumAllocations appends allocation records for one trade.
	InsertPremiumAllocations(ctx context.Context, allocs []model.PremiumAllocation) error

	// ListAllocationsByLot returns all allocations referencing a lot.
	ListAllocationsByLot(ctx context.Context, lotID string) ([]model.PremiumAllocation, error)

	// ListAllocationsByLots returns allocations for many lots in one
	// query, grouped by lot ID.
	ListAllocationsByLots(ctx context.Context, lotIDs []string) (map[string][]model.PremiumAllocation, error)
}
