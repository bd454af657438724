package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/akashjainn/stocksense-sub000/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Lots ---

func (s *PostgresStore) CreateLot(ctx context.Context, lot *model.Lot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lots (id, account_id, symbol, opened_at, initial_qty, current_qty,
		                   price_per_share, fees_at_open, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		lot.ID, lot.AccountID, lot.Symbol, lot.OpenedAt,
		lot.InitialQty, lot.CurrentQty,
		lot.PricePerShare.String(), lot.FeesAtOpen.String(),
		lot.Notes, lot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create lot %s: %w", lot.ID, err)
	}
	return nil
}

const lotColumns = `id, account_id, symbol, opened_at, initial_qty, current_qty,
       price_per_share::TEXT, fees_at_open::TEXT, notes, created_at`

func scanLot(row pgx.Row) (*model.Lot, error) {
	var lot model.Lot
	var price, fees string

	err := row.Scan(&lot.ID, &lot.AccountID, &lot.Symbol, &lot.OpenedAt,
		&lot.InitialQty, &lot.CurrentQty, &price, &fees, &lot.Notes, &lot.CreatedAt)
	if err != nil {
		return nil, err
	}

	lot.PricePerShare, _ = decimal.NewFromString(price)
	lot.FeesAtOpen, _ = decimal.NewFromString(fees)
	return &lot, nil
}

func (s *PostgresStore) GetLot(ctx context.Context, id string) (*model.Lot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE id = $1`, id)

	lot, err := scanLot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get lot %s: %w", id, err)
	}
	return lot, nil
}

func (s *PostgresStore) ListLotsByAccount(ctx context.Context, accountID string) ([]model.Lot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE account_id = $1 ORDER BY opened_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

func (s *PostgresStore) AdjustLotQuantity(ctx context.Context, lotID string, delta int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lots SET current_qty = GREATEST(0, current_qty + $2) WHERE id = $1`,
		lotID, delta)
	if err != nil {
		return fmt.Errorf("adjust lot %s quantity: %w", lotID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lot %s: %w", lotID, ErrNotFound)
	}
	return nil
}

// --- Lot events ---

func (s *PostgresStore) InsertLotEvent(ctx context.Context, e *model.LotEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lot_events (id, lot_id, occurred_at, type, quantity, amount, memo)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
		e.ID, e.LotID, e.OccurredAt, e.Type, e.Quantity, e.Amount.String(), e.Memo,
	)
	if err != nil {
		return fmt.Errorf("insert lot event for %s: %w", e.LotID, err)
	}
	return nil
}

const eventColumns = `id, lot_id, occurred_at, type, quantity, amount::TEXT, memo`

func (s *PostgresStore) ListLotEvents(ctx context.Context, lotID string) ([]model.LotEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM lot_events
		 WHERE lot_id = $1 ORDER BY occurred_at`, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLotEvents(rows)
}

func (s *PostgresStore) ListLotEventsByLots(ctx context.Context, lotIDs []string) (map[string][]model.LotEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM lot_events
		 WHERE lot_id = ANY($1) ORDER BY occurred_at`, lotIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events, err := scanLotEvents(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]model.LotEvent)
	for _, e := range events {
		grouped[e.LotID] = append(grouped[e.LotID], e)
	}
	return grouped, nil
}

func scanLotEvents(rows pgx.Rows) ([]model.LotEvent, error) {
	var events []model.LotEvent
	for rows.Next() {
		var e model.LotEvent
		var amount string

		if err := rows.Scan(&e.ID, &e.LotID, &e.OccurredAt, &e.Type,
			&e.Quantity, &amount, &e.Memo); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amount)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Option positions ---

func (s *PostgresStore) CreateOptionPosition(ctx context.Context, p *model.OptionPosition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO option_positions (id, account_id, symbol, type, side, strike,
		                               expiry, multiplier, status, opened_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10, $11)`,
		p.ID, p.AccountID, p.Symbol, p.Type, p.Side, p.Strike.String(),
		p.Expiry, p.Multiplier, p.Status, p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create option position %s: %w", p.ID, err)
	}
	return nil
}

const positionColumns = `id, account_id, symbol, type, side, strike::TEXT,
       expiry, multiplier, status, opened_at, updated_at`

func scanOptionPosition(row pgx.Row) (*model.OptionPosition, error) {
	var p model.OptionPosition
	var strike string

	err := row.Scan(&p.ID, &p.AccountID, &p.Symbol, &p.Type, &p.Side, &strike,
		&p.Expiry, &p.Multiplier, &p.Status, &p.OpenedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Strike, _ = decimal.NewFromString(strike)
	return &p, nil
}

func (s *PostgresStore) GetOptionPosition(ctx context.Context, id string) (*model.OptionPosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM option_positions WHERE id = $1`, id)

	pos, err := scanOptionPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("option position %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get option position %s: %w", id, err)
	}
	return pos, nil
}

func (s *PostgresStore) ListOptionPositionsByAccount(ctx context.Context, accountID string) ([]model.OptionPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM option_positions
		 WHERE account_id = $1 ORDER BY opened_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.OptionPosition
	for rows.Next() {
		pos, err := scanOptionPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *pos)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) SetOptionPositionStatus(ctx context.Context, id, status string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE option_positions SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, at)
	if err != nil {
		return fmt.Errorf("set option position %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("option position %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) TouchOptionPosition(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE option_positions SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch option position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("option position %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Option trades ---

func (s *PostgresStore) InsertOptionTrade(ctx context.Context, t *model.OptionTrade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO option_trades (id, option_position_id, action, occurred_at,
		                            contracts, price_per_contract, fees)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC)`,
		t.ID, t.OptionPositionID, t.Action, t.OccurredAt,
		t.Contracts, t.PricePerContract.String(), t.Fees.String(),
	)
	if err != nil {
		return fmt.Errorf("insert option trade for %s: %w", t.OptionPositionID, err)
	}
	return nil
}

func (s *PostgresStore) ListOptionTrades(ctx context.Context, positionID string) ([]model.OptionTrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, option_position_id, action, occurred_at,
		        contracts, price_per_contract::TEXT, fees::TEXT
		 FROM option_trades WHERE option_position_id = $1 ORDER BY occurred_at`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.OptionTrade
	for rows.Next() {
		var t model.OptionTrade
		var price, fees string

		if err := rows.Scan(&t.ID, &t.OptionPositionID, &t.Action, &t.OccurredAt,
			&t.Contracts, &price, &fees); err != nil {
			return nil, err
		}
		t.PricePerContract, _ = decimal.NewFromString(price)
		t.Fees, _ = decimal.NewFromString(fees)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// --- Premium allocations ---

func (s *PostgresStore) InsertPremiumAllocations(ctx context.Context, allocs []model.PremiumAllocation) error {
	for _, a := range allocs {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO premium_allocations (id, option_trade_id, lot_id, premium, fees, proportion)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC)`,
			a.ID, a.OptionTradeID, a.LotID,
			a.Premium.String(), a.Fees.String(), a.Proportion.String(),
		)
		if err != nil {
			return fmt.Errorf("insert premium allocation for lot %s: %w", a.LotID, err)
		}
	}
	return nil
}

const allocColumns = `id, option_trade_id, lot_id, premium::TEXT, fees::TEXT, proportion::TEXT`

func (s *PostgresStore) ListAllocationsByLot(ctx context.Context, lotID string) ([]model.PremiumAllocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+allocColumns+` FROM premium_allocations WHERE lot_id = $1`, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAllocations(rows)
}

func (s *PostgresStore) ListAllocationsByLots(ctx context.Context, lotIDs []string) (map[string][]model.PremiumAllocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+allocColumns+` FROM premium_allocations WHERE lot_id = ANY($1)`, lotIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allocs, err := scanAllocations(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]model.PremiumAllocation)
	for _, a := range allocs {
		grouped[a.LotID] = append(grouped[a.LotID], a)
	}
	return grouped, nil
}

func scanAllocations(rows pgx.Rows) ([]model.PremiumAllocation, error) {
	var allocs []model.PremiumAllocation
	for rows.Next() {
		var a model.PremiumAllocation
		var premium, fees, proportion string

		if err := rows.Scan(&a.ID, &a.OptionTradeID, &a.LotID,
			&premium, &fees, &proportion); err != nil {
			return nil, err
		}
		a.Premium, _ = decimal.NewFromString(premium)
		a.Fees, _ = decimal.NewFromString(fees)
		a.Proportion, _ = decimal.NewFromString(proportion)
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}
