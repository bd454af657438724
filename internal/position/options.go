// Package position — short option lifecycle workflows.
//
// State machine: OPEN → ASSIGNED | EXPIRED (terminal). A CLOSE trade records
// the buy-back economics but leaves status untouched; RecomputeStatus is the
// explicit step that retires a fully bought-back position.
package position

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akashjainn/stocksense-sub000/internal/metrics"
	"github.com/akashjainn/stocksense-sub000/internal/model"
	"github.com/akashjainn/stocksense-sub000/internal/premium"
	"github.com/akashjainn/stocksense-sub000/internal/store"
)

// putAssignmentNote marks lots created by short-put assignment.
const putAssignmentNote = "Assignment from short put"

// OpenOptionRequest is the JSON body for POST /options.
type OpenOptionRequest struct {
	AccountID        string          `json:"account_id"`
	Symbol           string          `json:"symbol"`
	Type             string          `json:"type"` // CALL or PUT
	Contracts        int64           `json:"contracts"`
	Strike           decimal.Decimal `json:"strike"`
	Expiry           time.Time       `json:"expiry"`
	PricePerContract decimal.Decimal `json:"price_per_contract"`
	Fees             decimal.Decimal `json:"fees"`
	OpenedAt         time.Time       `json:"opened_at"`
	Multiplier       int64           `json:"multiplier"` // 0 → default 100
	Allocations      []premium.Line  `json:"allocations"`
}

// OpenOptionResponse is returned from POST /options.
type OpenOptionResponse struct {
	PositionID   string          `json:"position_id"`
	TradeID      string          `json:"trade_id"`
	TotalPremium decimal.Decimal `json:"total_premium"`
}

// CloseOptionRequest is the JSON body for POST /options/{positionID}/close.
type CloseOptionRequest struct {
	Contracts        int64           `json:"contracts"`
	PricePerContract decimal.Decimal `json:"price_per_contract"`
	Fees             decimal.Decimal `json:"fees"`
	OccurredAt       time.Time       `json:"occurred_at"`
	Allocations      []premium.Line  `json:"allocations"`
}

// AssignCallRequest is the JSON body for POST /options/{positionID}/assign-call.
type AssignCallRequest struct {
	LotID      string    `json:"lot_id"`
	Contracts  int64     `json:"contracts"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AssignPutRequest is the JSON body for POST /options/{positionID}/assign-put.
type AssignPutRequest struct {
	AccountID  string    `json:"account_id"` // empty → position's account
	Contracts  int64     `json:"contracts"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ExpireOptionRequest is the JSON body for POST /options/{positionID}/expire.
type ExpireOptionRequest struct {
	Contracts  int64     `json:"contracts"` // optional; 0 when unspecified
	OccurredAt time.Time `json:"occurred_at"`
}

// TradeResponse is the minimal result of close/assign/expire workflows.
type TradeResponse struct {
	TradeID string `json:"trade_id"`
	LotID   string `json:"lot_id,omitempty"` // set by assign-put
	Status  string `json:"status,omitempty"`
}

// OpenOption handles POST /api/v1/options.
//
// Validates allocation proportions and covered-call share coverage before
// any write; writes land in the order position → trade → allocations, so a
// partial failure leaves at worst records that no lot snapshot reads.
func (s *Service) OpenOption(w http.ResponseWriter, r *http.Request) {
	var req OpenOptionRequest
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
	if req.Type != model.OptionCall && req.Type != model.OptionPut {
		writeError(w, "type must be CALL or PUT", http.StatusBadRequest)
		return
	}
	if req.Contracts <= 0 {
		writeError(w, "contracts must be positive", http.StatusBadRequest)
		return
	}
	if req.Strike.LessThanOrEqual(decimal.Zero) {
		writeError(w, "strike must be positive", http.StatusBadRequest)
		return
	}
	if req.Fees.IsNegative() {
		writeError(w, "fees must not be negative", http.StatusBadRequest)
		return
	}

	if err := s.allocator.Validate(req.Allocations); err != nil {
		metrics.AllocationRejections.Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	multiplier := req.Multiplier
	if multiplier <= 0 {
		multiplier = model.DefaultMultiplier
	}
	openedAt := req.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now().UTC()
	}

	ctx := r.Context()

	// Serialize mutating workflows.
	s.mu.Lock()
	defer s.mu.Unlock()

	// Referential validity: every allocation must point at a real lot.
	// Covered calls additionally require replayed share coverage; cash-
	// secured puts are not backed by existing shares and skip that check.
	for _, line := range req.Allocations {
		lot, err := s.store.GetLot(ctx, line.LotID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "lot not found: "+line.LotID, http.StatusBadRequest)
			return
		}
		if err != nil {
			writeError(w, "failed to load lot", http.StatusInternalServerError)
			return
		}

		if req.Type == model.OptionCall {
			available, err := s.replayedQuantity(r, lot)
			if err != nil {
				writeError(w, "failed to replay lot events", http.StatusInternalServerError)
				return
			}
			required := decimal.NewFromInt(req.Contracts * multiplier).
				Mul(line.Proportion).
				Ceil().
				IntPart()
			if available < required {
				writeError(w, fmt.Sprintf("insufficient shares in lot %s: need %d, have %d",
					lot.Symbol, required, available), http.StatusBadRequest)
				return
			}
		}
	}

	now := time.Now().UTC()
	pos := &model.OptionPosition{
		ID:         uuid.New().String(),
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Type:       req.Type,
		Side:       model.SideShort,
		Strike:     req.Strike,
		Expiry:     req.Expiry,
		Multiplier: multiplier,
		Status:     model.StatusOpen,
		OpenedAt:   openedAt,
		UpdatedAt:  now,
	}
	if err := s.store.CreateOptionPosition(ctx, pos); err != nil {
		writeError(w, "failed to create option position", http.StatusInternalServerError)
		return
	}

	trade := &model.OptionTrade{
		ID:               uuid.New().String(),
		OptionPositionID: pos.ID,
		Action:           model.ActionOpen,
		OccurredAt:       openedAt,
		Contracts:        req.Contracts,
		PricePerContract: req.PricePerContract,
		Fees:             req.Fees,
	}
	if err := s.store.InsertOptionTrade(ctx, trade); err != nil {
		writeError(w, "failed to record option trade", http.StatusInternalServerError)
		return
	}

	totalPremium := premium.OpenPremium(req.Contracts, req.PricePerContract, multiplier, req.Fees)
	allocs, err := s.allocator.Allocate(trade.ID, totalPremium, req.Fees, req.Allocations)
	if err != nil {
		// Lines were validated above; only a programming error lands here.
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.InsertPremiumAllocations(ctx, allocs); err != nil {
		writeError(w, "failed to record premium allocations", http.StatusInternalServerError)
		return
	}

	metrics.WorkflowsTotal.WithLabelValues("open_option", "ok").Inc()
	metrics.OpenOptionPositions.Inc()
	slog.Info("option opened",
		"position_id", pos.ID,
		"trade_id", trade.ID,
		"account", req.AccountID,
		"symbol", req.Symbol,
		"type", req.Type,
		"contracts", req.Contracts,
		"strike", req.Strike.String(),
		"premium", totalPremium.String(),
	)

	s.broadcast(WSMessage{
		Type:       "option_opened",
		PositionID: pos.ID,
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Status:     model.StatusOpen,
		Premium:    totalPremium.String(),
	})

	writeJSON(w, http.StatusCreated, OpenOptionResponse{
		PositionID:   pos.ID,
		TradeID:      trade.ID,
		TotalPremium: totalPremium,
	})
}

// CloseOption handles POST /api/v1/options/{positionID}/close.
//
// Records the buy-back trade and allocates the (negative) premium paid, but
// leaves the position status as-is — only the update timestamp moves. Use
// RecomputeStatus to retire a position whose contracts are fully closed.
func (s *Service) CloseOption(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	var req CloseOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Contracts <= 0 {
		writeError(w, "contracts must be positive", http.StatusBadRequest)
		return
	}
	if req.Fees.IsNegative() {
		writeError(w, "fees must not be negative", http.StatusBadRequest)
		return
	}
	if err := s.allocator.Validate(req.Allocations); err != nil {
		metrics.AllocationRejections.Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetOptionPosition(ctx, positionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "option position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load option position", http.StatusInternalServerError)
		return
	}

	for _, line := range req.Allocations {
		if _, err := s.store.GetLot(ctx, line.LotID); errors.Is(err, store.ErrNotFound) {
			writeError(w, "lot not found: "+line.LotID, http.StatusBadRequest)
			return
		} else if err != nil {
			writeError(w, "failed to load lot", http.StatusInternalServerError)
			return
		}
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	trade := &model.OptionTrade{
		ID:               uuid.New().String(),
		OptionPositionID: pos.ID,
		Action:           model.ActionClose,
		OccurredAt:       occurredAt,
		Contracts:        req.Contracts,
		PricePerContract: req.PricePerContract,
		Fees:             req.Fees,
	}
	if err := s.store.InsertOptionTrade(ctx, trade); err != nil {
		writeError(w, "failed to record option trade", http.StatusInternalServerError)
		return
	}

	totalPremium := premium.ClosePremium(req.Contracts, req.PricePerContract, pos.Multiplier, req.Fees)
	allocs, err := s.allocator.Allocate(trade.ID, totalPremium, req.Fees, req.Allocations)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.InsertPremiumAllocations(ctx, allocs); err != nil {
		writeError(w, "failed to record premium allocations", http.StatusInternalServerError)
		return
	}

	if err := s.store.TouchOptionPosition(ctx, pos.ID, time.Now().UTC()); err != nil {
		writeError(w, "failed to update option position", http.StatusInternalServerError)
		return
	}

	metrics.WorkflowsTotal.WithLabelValues("close_option", "ok").Inc()
	slog.Info("option close recorded",
		"position_id", pos.ID,
		"trade_id", trade.ID,
		"contracts", req.Contracts,
		"premium", totalPremium.String(),
	)

	s.broadcast(WSMessage{
		Type:       "option_closed",
		PositionID: pos.ID,
		AccountID:  pos.AccountID,
		Symbol:     pos.Symbol,
		Status:     pos.Status,
		Premium:    totalPremium.String(),
	})

	writeJSON(w, http.StatusOK, TradeResponse{TradeID: trade.ID})
}

// AssignCall handles POST /api/v1/options/{positionID}/assign-call.
// The covered call is exercised against the holder: the backing lot gives up
// contracts × multiplier shares and the position becomes ASSIGNED. No premium
// flows on assignment itself — it was captured at open.
func (s *Service) AssignCall(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	var req AssignCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.LotID == "" {
		writeError(w, "lot_id is required", http.StatusBadRequest)
		return
	}
	if req.Contracts <= 0 {
		writeError(w, "contracts must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetOptionPosition(ctx, positionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "option position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load option position", http.StatusInternalServerError)
		return
	}
	if pos.Type != model.OptionCall {
		writeError(w, "assign-call requires a CALL position", http.StatusBadRequest)
		return
	}
	if pos.Status != model.StatusOpen {
		writeError(w, "option position is not open", http.StatusConflict)
		return
	}

	lot, err := s.store.GetLot(ctx, req.LotID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "lot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load lot", http.StatusInternalServerError)
		return
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	assignedShares := req.Contracts * pos.Multiplier

	event := &model.LotEvent{
		ID:         uuid.New().String(),
		LotID:      lot.ID,
		OccurredAt: occurredAt,
		Type:       model.EventAssignedAway,
		Quantity:   assignedShares,
		Memo:       "Called away by option " + pos.ID,
	}
	if err := s.store.InsertLotEvent(ctx, event); err != nil {
		writeError(w, "failed to record lot event", http.StatusInternalServerError)
		return
	}
	if err := s.store.AdjustLotQuantity(ctx, lot.ID, -assignedShares); err != nil {
		writeError(w, "failed to update lot quantity", http.StatusInternalServerError)
		return
	}

	trade := &model.OptionTrade{
		ID:               uuid.New().String(),
		OptionPositionID: pos.ID,
		Action:           model.ActionAssign,
		OccurredAt:       occurredAt,
		Contracts:        req.Contracts,
		PricePerContract: decimal.Zero,
		Fees:             decimal.Zero,
	}
	if err := s.store.InsertOptionTrade(ctx, trade); err != nil {
		writeError(w, "failed to record option trade", http.StatusInternalServerError)
		return
	}

	if err := s.store.SetOptionPositionStatus(ctx, pos.ID, model.StatusAssigned, time.Now().UTC()); err != nil {
		writeError(w, "failed to update option position", http.StatusInternalServerError)
		return
	}

	metrics.WorkflowsTotal.WithLabelValues("assign_call", "ok").Inc()
	metrics.OpenOptionPositions.Dec()
	slog.Info("call assigned",
		"position_id", pos.ID,
		"trade_id", trade.ID,
		"lot_id", lot.ID,
		"shares", assignedShares,
	)

	s.broadcast(WSMessage{
		Type:       "option_assigned",
		PositionID: pos.ID,
		AccountID:  pos.AccountID,
		LotID:      lot.ID,
		Symbol:     pos.Symbol,
		Status:     model.StatusAssigned,
		Quantity:   assignedShares,
	})

	writeJSON(w, http.StatusOK, TradeResponse{TradeID: trade.ID, Status: model.StatusAssigned})
}

// AssignPut handles POST /api/v1/options/{positionID}/assign-put.
// The cash-secured put is exercised: shares are purchased at the strike,
// creating a new lot. The premium collected at open stays allocated where it
// was — it is not re-attached to the new lot.
func (s *Service) AssignPut(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	var req AssignPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Contracts <= 0 {
		writeError(w, "contracts must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetOptionPosition(ctx, positionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "option position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load option position", http.StatusInternalServerError)
		return
	}
	if pos.Type != model.OptionPut {
		writeError(w, "assign-put requires a PUT position", http.StatusBadRequest)
		return
	}
	if pos.Status != model.StatusOpen {
		writeError(w, "option position is not open", http.StatusConflict)
		return
	}

	accountID := req.AccountID
	if accountID == "" {
		accountID = pos.AccountID
	}
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	shares := req.Contracts * pos.Multiplier

	lot := &model.Lot{
		ID:            uuid.New().String(),
		AccountID:     accountID,
		Symbol:        pos.Symbol,
		OpenedAt:      occurredAt,
		InitialQty:    shares,
		CurrentQty:    shares,
		PricePerShare: pos.Strike,
		FeesAtOpen:    decimal.Zero,
		Notes:         putAssignmentNote,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateLot(ctx, lot); err != nil {
		writeError(w, "failed to create lot", http.StatusInternalServerError)
		return
	}

	// Audit-trail parity with the call flow; the lot's initial quantity
	// already reflects the assignment.
	event := &model.LotEvent{
		ID:         uuid.New().String(),
		LotID:      lot.ID,
		OccurredAt: occurredAt,
		Type:       model.EventAssignmentIn,
		Quantity:   shares,
		Memo:       "Put assignment from option " + pos.ID,
	}
	if err := s.store.InsertLotEvent(ctx, event); err != nil {
		writeError(w, "failed to record lot event", http.StatusInternalServerError)
		return
	}

	trade := &model.OptionTrade{
		ID:               uuid.New().String(),
		OptionPositionID: pos.ID,
		Action:           model.ActionAssign,
		OccurredAt:       occurredAt,
		Contracts:        req.Contracts,
		PricePerContract: decimal.Zero,
		Fees:             decimal.Zero,
	}
	if err := s.store.InsertOptionTrade(ctx, trade); err != nil {
		writeError(w, "failed to record option trade", http.StatusInternalServerError)
		return
	}

	if err := s.store.SetOptionPositionStatus(ctx, pos.ID, model.StatusAssigned, time.Now().UTC()); err != nil {
		writeError(w, "failed to update option position", http.StatusInternalServerError)
		return
	}

	metrics.WorkflowsTotal.WithLabelValues("assign_put", "ok").Inc()
	metrics.OpenOptionPositions.Dec()
	slog.Info("put assigned",
		"position_id", pos.ID,
		"trade_id", trade.ID,
		"new_lot_id", lot.ID,
		"shares", shares,
		"strike", pos.Strike.String(),
	)

	s.broadcast(WSMessage{
		Type:       "option_assigned",
		PositionID: pos.ID,
		AccountID:  accountID,
		LotID:      lot.ID,
		Symbol:     pos.Symbol,
		Status:     model.StatusAssigned,
		Quantity:   shares,
	})

	writeJSON(w, http.StatusOK, TradeResponse{
		TradeID: trade.ID,
		LotID:   lot.ID,
		Status:  model.StatusAssigned,
	})
}

// ExpireOption handles POST /api/v1/options/{positionID}/expire.
// Expiration without assignment has no share effect; the premium booked at
// open is simply retained.
func (s *Service) ExpireOption(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	var req ExpireOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Contracts < 0 {
		writeError(w, "contracts must not be negative", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetOptionPosition(ctx, positionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "option position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load option position", http.StatusInternalServerError)
		return
	}
	if pos.Status != model.StatusOpen {
		writeError(w, "option position is not open", http.StatusConflict)
		return
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	trade := &model.OptionTrade{
		ID:               uuid.New().String(),
		OptionPositionID: pos.ID,
		Action:           model.ActionExpire,
		OccurredAt:       occurredAt,
		Contracts:        req.Contracts,
		PricePerContract: decimal.Zero,
		Fees:             decimal.Zero,
	}
	if err := s.store.InsertOptionTrade(ctx, trade); err != nil {
		writeError(w, "failed to record option trade", http.StatusInternalServerError)
		return
	}

	if err := s.store.SetOptionPositionStatus(ctx, pos.ID, model.StatusExpired, time.Now().UTC()); err != nil {
		writeError(w, "failed to update option position", http.StatusInternalServerError)
		return
	}

	metrics.WorkflowsTotal.WithLabelValues("expire_option", "ok").Inc()
	metrics.OpenOptionPositions.Dec()
	slog.Info("option expired", "position_id", pos.ID, "trade_id", trade.ID)

	s.broadcast(WSMessage{
		Type:       "option_expired",
		PositionID: pos.ID,
		AccountID:  pos.AccountID,
		Symbol:     pos.Symbol,
		Status:     model.StatusExpired,
	})

	writeJSON(w, http.StatusOK, TradeResponse{TradeID: trade.ID, Status: model.StatusExpired})
}

// RecomputeStatusResponse is returned from POST /options/{positionID}/recompute-status.
type RecomputeStatusResponse struct {
	Status          string `json:"status"`
	OpenContracts   int64  `json:"open_contracts"`
	ClosedContracts int64  `json:"closed_contracts"`
}

// RecomputeStatus handles POST /api/v1/options/{positionID}/recompute-status.
// Aggregates OPEN versus CLOSE contract counts over the position's trades
// and marks a still-OPEN position CLOSED once buy-backs cover everything
// written. Never invoked implicitly by CloseOption.
func (s *Service) RecomputeStatus(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")
	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetOptionPosition(ctx, positionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "option position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load option position", http.StatusInternalServerError)
		return
	}

	trades, err := s.store.ListOptionTrades(ctx, pos.ID)
	if err != nil {
		writeError(w, "failed to load option trades", http.StatusInternalServerError)
		return
	}

	var opened, closed int64
	for _, t := range trades {
		switch t.Action {
		case model.ActionOpen:
			opened += t.Contracts
		case model.ActionClose:
			closed += t.Contracts
		}
	}

	status := pos.Status
	if pos.Status == model.StatusOpen && opened > 0 && closed >= opened {
		status = model.StatusClosed
		if err := s.store.SetOptionPositionStatus(ctx, pos.ID, status, time.Now().UTC()); err != nil {
			writeError(w, "failed to update option position", http.StatusInternalServerError)
			return
		}
		metrics.OpenOptionPositions.Dec()
		slog.Info("option position retired",
			"position_id", pos.ID,
			"opened_contracts", opened,
			"closed_contracts", closed,
		)
	}

	metrics.WorkflowsTotal.WithLabelValues("recompute_status", "ok").Inc()
	writeJSON(w, http.StatusOK, RecomputeStatusResponse{
		Status:          status,
		OpenContracts:   opened,
		ClosedContracts: closed,
	})
}
