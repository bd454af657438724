package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akashjainn/stocksense-sub000/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	lots      map[string]*model.Lot
	events    []model.LotEvent
	positions map[string]*model.OptionPosition
	trades    []model.OptionTrade
	allocs    []model.PremiumAllocation
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lots:      make(map[string]*model.Lot),
		positions: make(map[string]*model.OptionPosition),
	}
}

// --- Lots ---

func (s *MemoryStore) CreateLot(_ context.Context, lot *model.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *lot
	s.lots[lot.ID] = &copy
	return nil
}

func (s *MemoryStore) GetLot(_ context.Context, id string) (*model.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lot, ok := s.lots[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *lot
	return &copy, nil
}

func (s *MemoryStore) ListLotsByAccount(_ context.Context, accountID string) ([]model.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lots []model.Lot
	for _, lot := range s.lots {
		if lot.AccountID == accountID {
			lots = append(lots, *lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		return lots[i].OpenedAt.Before(lots[j].OpenedAt)
	})
	return lots, nil
}

func (s *MemoryStore) AdjustLotQuantity(_ context.Context, lotID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[lotID]
	if !ok {
		return ErrNotFound
	}
	lot.CurrentQty += delta
	if lot.CurrentQty < 0 {
		lot.CurrentQty = 0
	}
	return nil
}

// --- Lot events ---

func (s *MemoryStore) InsertLotEvent(_ context.Context, event *model.LotEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) ListLotEvents(_ context.Context, lotID string) ([]model.LotEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.LotEvent
	for _, e := range s.events {
		if e.LotID == lotID {
			events = append(events, e)
		}
	}
	sortEvents(events)
	return events, nil
}

func (s *MemoryStore) ListLotEventsByLots(_ context.Context, lotIDs []string) (map[string][]model.LotEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(lotIDs))
	for _, id := range lotIDs {
		wanted[id] = true
	}

	grouped := make(map[string][]model.LotEvent)
	for _, e := range s.events {
		if wanted[e.LotID] {
			grouped[e.LotID] = append(grouped[e.LotID], e)
		}
	}
	for _, events := range grouped {
		sortEvents(events)
	}
	return grouped, nil
}

// --- Option positions ---

func (s *MemoryStore) CreateOptionPosition(_ context.Context, pos *model.OptionPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *pos
	s.positions[pos.ID] = &copy
	return nil
}

func (s *MemoryStore) GetOptionPosition(_ context.Context, id string) (*model.OptionPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *pos
	return &copy, nil
}

func (s *MemoryStore) ListOptionPositionsByAccount(_ context.Context, accountID string) ([]model.OptionPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.OptionPosition
	for _, pos := range s.positions {
		if pos.AccountID == accountID {
			positions = append(positions, *pos)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].OpenedAt.Before(positions[j].OpenedAt)
	})
	return positions, nil
}

func (s *MemoryStore) SetOptionPositionStatus(_ context.Context, id, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return ErrNotFound
	}
	pos.Status = status
	pos.UpdatedAt = at
	return nil
}

func (s *MemoryStore) TouchOptionPosition(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return ErrNotFound
	}
	pos.UpdatedAt = at
	return nil
}

// --- Option trades ---

func (s *MemoryStore) InsertOptionTrade(_ context.Context, trade *model.OptionTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *trade)
	return nil
}

func (s *MemoryStore) ListOptionTrades(_ context.Context, positionID string) ([]model.OptionTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trades []model.OptionTrade
	for _, tr := range s.trades {
		if tr.OptionPositionID == positionID {
			trades = append(trades, tr)
		}
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].OccurredAt.Before(trades[j].OccurredAt)
	})
	return trades, nil
}

// --- Premium allocations ---

func (s *MemoryStore) InsertPremiumAllocations(_ context.Context, allocs []model.PremiumAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allocs = append(s.allocs, allocs...)
	return nil
}

func (s *MemoryStore) ListAllocationsByLot(_ context.Context, lotID string) ([]model.PremiumAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allocs []model.PremiumAllocation
	for _, a := range s.allocs {
		if a.LotID == lotID {
			allocs = append(allocs, a)
		}
	}
	return allocs, nil
}

func (s *MemoryStore) ListAllocationsByLots(_ context.Context, lotIDs []string) (map[string][]model.PremiumAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(lotIDs))
	for _, id := range lotIDs {
		wanted[id] = true
	}

	grouped := make(map[string][]model.PremiumAllocation)
	for _, a := range s.allocs {
		if wanted[a.LotID] {
			grouped[a.LotID] = append(grouped[a.LotID], a)
		}
	}
	return grouped, nil
}

// sortEvents orders events chronologically, keeping append order for ties so
// same-timestamp corrections replay in the order they were recorded.
func sortEvents(events []model.LotEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
}
