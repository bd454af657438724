// Package position provides the HTTP handlers and business logic for the
// lot and option position accounting engine: creating lots, running the
// short-option lifecycle, and serving replay-derived lot snapshots.
//
// All monetary values use shopspring/decimal — never float64 for money.
package position

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akashjainn/stocksense-sub000/internal/ledger"
	"github.com/akashjainn/stocksense-sub000/internal/metrics"
	"github.com/akashjainn/stocksense-sub000/internal/model"
	"github.com/akashjainn/stocksense-sub000/internal/premium"
	"github.com/akashjainn/stocksense-sub000/internal/store"
)

// Service handles accounting operations. Uses a mutex to serialize mutating
// workflows (single-instance): each workflow issues several independent
// writes with no cross-document transaction, so concurrent writers against
// the same lot or position must not interleave. For horizontal scaling,
// replace with database transactions or per-aggregate optimistic versioning.
type Service struct {
	store     store.Store
	allocator *premium.Allocator
	mu        sync.Mutex
	wsHub     *WSHub // optional WebSocket hub for lifecycle broadcasts
}

// NewService creates a new accounting service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, allocator *premium.Allocator, hub *WSHub) *Service {
	if allocator == nil {
		allocator = premium.NewAllocator(premium.DefaultEpsilon)
	}
	return &Service{
		store:     st,
		allocator: allocator,
		wsHub:     hub,
	}
}

// --- Request/Response types ---

// CreateLotRequest is the JSON body for POST /lots.
type CreateLotRequest struct {
	AccountID     string          `json:"account_id"`
	Symbol        string          `json:"symbol"`
	OpenedAt      time.Time       `json:"opened_at"`
	Quantity      int64           `json:"quantity"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	Fees          decimal.Decimal `json:"fees"`
	Notes         string          `json:"notes"`
}

// LotWithSnapshot pairs a lot record with its replay-derived state.
type LotWithSnapshot struct {
	Lot      model.Lot         `json:"lot"`
	Snapshot model.LotSnapshot `json:"snapshot"`
}

// --- Lot handlers ---

// CreateLot handles POST /api/v1/lots.
// The lot itself records the opening terms; no separate BUY event is written.
func (s *Service) CreateLot(w http.ResponseWriter, r *http.Request) {
	var req CreateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}
	if req.PricePerShare.LessThanOrEqual(decimal.Zero) {
		writeError(w, "price_per_share must be positive", http.StatusBadRequest)
		return
	}
	if req.Fees.IsNegative() {
		writeError(w, "fees must not be negative", http.StatusBadRequest)
		return
	}

	openedAt := req.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now().UTC()
	}

	lot := &model.Lot{
		ID:            uuid.New().String(),
		AccountID:     req.AccountID,
		Symbol:        req.Symbol,
		OpenedAt:      openedAt,
		InitialQty:    req.Quantity,
		CurrentQty:    req.Quantity,
		PricePerShare: req.PricePerShare,
		FeesAtOpen:    req.Fees,
		Notes:         req.Notes,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateLot(r.Context(), lot); err != nil {
		writeError(w, "failed to create lot", http.StatusInternalServerError)
		return
	}

	metrics.WorkflowsTotal.WithLabelValues("create_lot", "ok").Inc()
	slog.Info("lot created",
		"id", lot.ID,
		"account", lot.AccountID,
		"symbol", lot.Symbol,
		"qty", lot.InitialQty,
		"price", lot.PricePerShare.String(),
	)

	s.broadcast(WSMessage{
		Type:      "lot_created",
		LotID:     lot.ID,
		AccountID: lot.AccountID,
		Symbol:    lot.Symbol,
		Quantity:  lot.InitialQty,
	})

	writeJSON(w, http.StatusCreated, lot)
}

// GetLot handles GET /api/v1/lots/{lotID}.
func (s *Service) GetLot(w http.ResponseWriter, r *http.Request) {
	lotID := chi.URLParam(r, "lotID")

	lot, err := s.store.GetLot(r.Context(), lotID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "lot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load lot", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, lot)
}

// GetLotSnapshot handles GET /api/v1/lots/{lotID}/snapshot.
// Loads the lot, its ordered events, and its allocations, then replays.
func (s *Service) GetLotSnapshot(w http.ResponseWriter, r *http.Request) {
	lotID := chi.URLParam(r, "lotID")
	ctx := r.Context()
	start := time.Now()

	lot, err := s.store.GetLot(ctx, lotID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "lot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load lot", http.StatusInternalServerError)
		return
	}

	events, err := s.store.ListLotEvents(ctx, lotID)
	if err != nil {
		writeError(w, "failed to load lot events", http.StatusInternalServerError)
		return
	}

	allocs, err := s.store.ListAllocationsByLot(ctx, lotID)
	if err != nil {
		writeError(w, "failed to load premium allocations", http.StatusInternalServerError)
		return
	}

	snap := ledger.Snapshot(lot, events, allocs)
	metrics.SnapshotLatency.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, LotWithSnapshot{Lot: *lot, Snapshot: snap})
}

// ListLotSnapshots handles GET /api/v1/accounts/{accountID}/lots.
// Fetches all lots for the account, then events and allocations for those
// lot ids in two batch queries, and replays each lot in memory (no N+1).
func (s *Service) ListLotSnapshots(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	ctx := r.Context()
	start := time.Now()

	lots, err := s.store.ListLotsByAccount(ctx, accountID)
	if err != nil {
		writeError(w, "failed to list lots", http.StatusInternalServerError)
		return
	}

	result := make([]LotWithSnapshot, 0, len(lots))
	if len(lots) > 0 {
		ids := make([]string, len(lots))
		for i, lot := range lots {
			ids[i] = lot.ID
		}

		events, err := s.store.ListLotEventsByLots(ctx, ids)
		if err != nil {
			writeError(w, "failed to load lot events", http.StatusInternalServerError)
			return
		}
		allocs, err := s.store.ListAllocationsByLots(ctx, ids)
		if err != nil {
			writeError(w, "failed to load premium allocations", http.StatusInternalServerError)
			return
		}

		for i := range lots {
			lot := lots[i]
			snap := ledger.Snapshot(&lot, events[lot.ID], allocs[lot.ID])
			result = append(result, LotWithSnapshot{Lot: lot, Snapshot: snap})
		}
	}

	metrics.SnapshotLatency.Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, result)
}

// ListOptionPositions handles GET /api/v1/accounts/{accountID}/options.
func (s *Service) ListOptionPositions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	positions, err := s.store.ListOptionPositionsByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, "failed to list option positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.OptionPosition{}
	}

	writeJSON(w, http.StatusOK, positions)
}

// --- helpers ---

// replayedQuantity loads a lot's events and replays them to the current
// share count. The cached current_qty field is never trusted for checks.
func (s *Service) replayedQuantity(r *http.Request, lot *model.Lot) (int64, error) {
	events, err := s.store.ListLotEvents(r.Context(), lot.ID)
	if err != nil {
		return 0, fmt.Errorf("load events for lot %s: %w", lot.ID, err)
	}
	return ledger.ReplayQuantity(lot.InitialQty, events), nil
}

func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
