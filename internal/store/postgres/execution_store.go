package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ExecutionStore implements domain.ArbExecutionStore. Legs live in their own
// table keyed by (execution_id, leg) so fill prices stay queryable.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionColumns = `id, opportunity_id, pair_id, arb_type, size::text, expected_cost::text,
	expected_edge::text, realized_pnl::text, fees::text, status, error, started_at, completed_at`

const legColumns = `execution_id, leg, order_id, venue, instrument_id, market_id, outcome, side,
	expected_price::text, size::text, filled_price::text, filled_size::text, fee::text, status, error`

// Create writes the execution and its legs in one transaction. Writing the
// same ID again overwrites the earlier record.
func (s *ExecutionStore) Create(ctx context.Context, exec domain.ArbExecution) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin execution %s: %w", exec.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO arb_executions (id, opportunity_id, pair_id, arb_type, size, expected_cost,
			expected_edge, realized_pnl, fees, status, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			realized_pnl = EXCLUDED.realized_pnl,
			fees = EXCLUDED.fees,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`
	_, err = tx.Exec(ctx, upsert,
		exec.ID, exec.OpportunityID, exec.PairID, string(exec.ArbType),
		numericText(exec.Size), numericText(exec.ExpectedCost), numericText(exec.ExpectedEdge),
		numericText(exec.RealizedPnL), numericText(exec.Fees),
		string(exec.Status), exec.Error, exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", exec.ID, err)
	}

	if len(exec.Legs) > 0 {
		const legUpsert = `
			INSERT INTO arb_execution_legs (execution_id, leg, order_id, venue, instrument_id, market_id,
				outcome, side, expected_price, size, filled_price, filled_size, fee, status, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (execution_id, leg) DO UPDATE SET
				order_id = EXCLUDED.order_id,
				filled_price = EXCLUDED.filled_price,
				filled_size = EXCLUDED.filled_size,
				fee = EXCLUDED.fee,
				status = EXCLUDED.status,
				error = EXCLUDED.error`

		batch := &pgx.Batch{}
		for i, leg := range exec.Legs {
			batch.Queue(legUpsert,
				exec.ID, i, leg.OrderID, string(leg.Instrument.Venue), leg.Instrument.ID,
				leg.Instrument.MarketID, string(leg.Instrument.Outcome), string(leg.Side),
				numericText(leg.ExpectedPrice), numericText(leg.Size),
				numericText(leg.FilledPrice), numericText(leg.FilledSize), numericText(leg.Fee),
				string(leg.Status), leg.Error,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert legs for %s: %w", exec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit execution %s: %w", exec.ID, err)
	}
	return nil
}

// GetByID returns one execution with its legs or domain.ErrNotFound.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ArbExecution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM arb_executions WHERE id = $1`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ArbExecution{}, fmt.Errorf("postgres: execution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ArbExecution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}

	execs := []domain.ArbExecution{exec}
	if err := s.attachLegs(ctx, execs); err != nil {
		return domain.ArbExecution{}, err
	}
	return execs[0], nil
}

// ListRecent returns the newest executions first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args := windowQuery(`SELECT `+executionColumns+` FROM arb_executions`, "started_at",
		domain.ListOpts{Limit: limit}, nil)
	return s.list(ctx, query, args...)
}

// ListBetween returns executions started in [from, to), newest first.
func (s *ExecutionStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.ArbExecution, error) {
	const query = `SELECT ` + executionColumns + ` FROM arb_executions
		WHERE started_at >= $1 AND started_at < $2 ORDER BY started_at DESC`
	return s.list(ctx, query, from, to)
}

// SumPnL totals realized P&L for executions started at or after since.
func (s *ExecutionStore) SumPnL(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(realized_pnl), 0)::text FROM arb_executions WHERE started_at >= $1`, since,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return parseNumeric(total)
}

func (s *ExecutionStore) list(ctx context.Context, query string, args ...any) ([]domain.ArbExecution, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.ArbExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions rows: %w", err)
	}

	if err := s.attachLegs(ctx, execs); err != nil {
		return nil, err
	}
	return execs, nil
}

func (s *ExecutionStore) attachLegs(ctx context.Context, execs []domain.ArbExecution) error {
	if len(execs) == 0 {
		return nil
	}
	ids := make([]string, len(execs))
	index := make(map[string]int, len(execs))
	for i, e := range execs {
		ids[i] = e.ID
		index[e.ID] = i
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+legColumns+` FROM arb_execution_legs WHERE execution_id = ANY($1) ORDER BY execution_id, leg`, ids)
	if err != nil {
		return fmt.Errorf("postgres: list legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		execID, leg, err := scanLeg(rows)
		if err != nil {
			return fmt.Errorf("postgres: scan leg: %w", err)
		}
		if i, ok := index[execID]; ok {
			execs[i].Legs = append(execs[i].Legs, leg)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: list legs rows: %w", err)
	}
	return nil
}

func scanExecution(row pgx.Row) (domain.ArbExecution, error) {
	var (
		e                           domain.ArbExecution
		arbType, status             string
		size, cost, edge, pnl, fees string
	)
	err := row.Scan(&e.ID, &e.OpportunityID, &e.PairID, &arbType, &size, &cost,
		&edge, &pnl, &fees, &status, &e.Error, &e.StartedAt, &e.CompletedAt)
	if err != nil {
		return domain.ArbExecution{}, err
	}
	e.ArbType = domain.ArbType(arbType)
	e.Status = domain.ArbExecStatus(status)

	nums, err := parseNumerics(size, cost, edge, pnl, fees)
	if err != nil {
		return domain.ArbExecution{}, err
	}
	e.Size, e.ExpectedCost, e.ExpectedEdge, e.RealizedPnL, e.Fees = nums[0], nums[1], nums[2], nums[3], nums[4]
	return e, nil
}

func scanLeg(row pgx.Row) (string, domain.ArbLeg, error) {
	var (
		execID                                string
		idx                                   int16
		l                                     domain.ArbLeg
		venue, outcome, side, status          string
		price, size, fillPrice, fillSize, fee string
	)
	err := row.Scan(&execID, &idx, &l.OrderID, &venue, &l.Instrument.ID, &l.Instrument.MarketID,
		&outcome, &side, &price, &size, &fillPrice, &fillSize, &fee, &status, &l.Error)
	if err != nil {
		return "", domain.ArbLeg{}, err
	}
	l.Instrument.Venue = domain.Venue(venue)
	l.Instrument.Outcome = domain.Outcome(outcome)
	l.Side = domain.OrderSide(side)
	l.Status = domain.OrderStatus(status)

	nums, err := parseNumerics(price, size, fillPrice, fillSize, fee)
	if err != nil {
		return "", domain.ArbLeg{}, err
	}
	l.ExpectedPrice, l.Size, l.FilledPrice, l.FilledSize, l.Fee = nums[0], nums[1], nums[2], nums[3], nums[4]
	return execID, l, nil
}

func parseNumerics(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := parseNumeric(v)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
