package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akashjainn/stocksense-sub000/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for lots and option positions. Writes go to the primary store and
// invalidate the cache; reads check Redis first then fall back to the
// primary. Append-only streams (events, trades, allocations) feed replay and
// are never cached, so a snapshot always reflects the primary store.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateLot(ctx context.Context, lot *model.Lot) error {
	if err := s.primary.CreateLot(ctx, lot); err != nil {
		return err
	}
	s.cacheLot(ctx, lot)
	return nil
}

func (s *CachedStore) AdjustLotQuantity(ctx context.Context, lotID string, delta int64) error {
	if err := s.primary.AdjustLotQuantity(ctx, lotID, delta); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the fresh quantity.
	s.rdb.Del(ctx, lotKey(lotID))
	return nil
}

func (s *CachedStore) InsertLotEvent(ctx context.Context, event *model.LotEvent) error {
	if err := s.primary.InsertLotEvent(ctx, event); err != nil {
		return err
	}
	s.rdb.Del(ctx, lotKey(event.LotID))
	return nil
}

func (s *CachedStore) CreateOptionPosition(ctx context.Context, pos *model.OptionPosition) error {
	if err := s.primary.CreateOptionPosition(ctx, pos); err != nil {
		return err
	}
	s.cachePosition(ctx, pos)
	return nil
}

func (s *CachedStore) SetOptionPositionStatus(ctx context.Context, id, status string, at time.Time) error {
	if err := s.primary.SetOptionPositionStatus(ctx, id, status, at); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(id))
	return nil
}

func (s *CachedStore) TouchOptionPosition(ctx context.Context, id string, at time.Time) error {
	if err := s.primary.TouchOptionPosition(ctx, id, at); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(id))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetLot(ctx context.Context, id string) (*model.Lot, error) {
	data, err := s.rdb.Get(ctx, lotKey(id)).Bytes()
	if err == nil {
		var lot model.Lot
		if json.Unmarshal(data, &lot) == nil {
			return &lot, nil
		}
	}

	lot, err := s.primary.GetLot(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheLot(ctx, lot)
	return lot, nil
}

func (s *CachedStore) GetOptionPosition(ctx context.Context, id string) (*model.OptionPosition, error) {
	data, err := s.rdb.Get(ctx, positionKey(id)).Bytes()
	if err == nil {
		var pos model.OptionPosition
		if json.Unmarshal(data, &pos) == nil {
			return &pos, nil
		}
	}

	pos, err := s.primary.GetOptionPosition(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePosition(ctx, pos)
	return pos, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListLotsByAccount(ctx context.Context, accountID string) ([]model.Lot, error) {
	return s.primary.ListLotsByAccount(ctx, accountID)
}

func (s *CachedStore) ListLotEvents(ctx context.Context, lotID string) ([]model.LotEvent, error) {
	return s.primary.ListLotEvents(ctx, lotID)
}

func (s *CachedStore) ListLotEventsByLots(ctx context.Context, lotIDs []string) (map[string][]model.LotEvent, error) {
	return s.primary.ListLotEventsByLots(ctx, lotIDs)
}

func (s *CachedStore) ListOptionPositionsByAccount(ctx context.Context, accountID string) ([]model.OptionPosition, error) {
	return s.primary.ListOptionPositionsByAccount(ctx, accountID)
}

func (s *CachedStore) InsertOptionTrade(ctx context.Context, trade *model.OptionTrade) error {
	return s.primary.InsertOptionTrade(ctx, trade)
}

func (s *CachedStore) ListOptionTrades(ctx context.Context, positionID string) ([]model.OptionTrade, error) {
	return s.primary.ListOptionTrades(ctx, positionID)
}

func (s *CachedStore) InsertPremiumAllocations(ctx context.Context, allocs []model.PremiumAllocation) error {
	return s.primary.InsertPremiumAllocations(ctx, allocs)
}

func (s *CachedStore) ListAllocationsByLot(ctx context.Context, lotID string) ([]model.PremiumAllocation, error) {
	return s.primary.ListAllocationsByLot(ctx, lotID)
}

func (s *CachedStore) ListAllocationsByLots(ctx context.Context, lotIDs []string) (map[string][]model.PremiumAllocation, error) {
	return s.primary.ListAllocationsByLots(ctx, lotIDs)
}

// --- Cache helpers ---

func (s *CachedStore) cacheLot(ctx context.Context, lot *model.Lot) {
	if data, err := json.Marshal(lot); err == nil {
		s.rdb.Set(ctx, lotKey(lot.ID), data, s.ttl)
	}
}

func (s *CachedStore) cachePosition(ctx context.Context, pos *model.OptionPosition) {
	if data, err := json.Marshal(pos); err == nil {
		s.rdb.Set(ctx, positionKey(pos.ID), data, s.ttl)
	}
}

func lotKey(id string) string      { return fmt.Sprintf("lot:%s", id) }
func positionKey(id string) string { return fmt.Sprintf("option:%s", id) }
