package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// PositionStore implements domain.PositionStore. Each snapshot is a row; the
// per-pair holdings are one JSONB document.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

type holdingJSON struct {
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	Cost       decimal.Decimal `json:"cost"`
}

type pairPositionJSON struct {
	PairID    string      `json:"pair_id"`
	LegA      holdingJSON `json:"leg_a"`
	LegB      holdingJSON `json:"leg_b"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func encodePairs(pairs []domain.PairPosition) ([]byte, error) {
	out := make([]pairPositionJSON, len(pairs))
	for i, p := range pairs {
		out[i] = pairPositionJSON{
			PairID:    p.PairID,
			LegA:      holdingJSON{Instrument: string(p.LegA.Instrument), Quantity: p.LegA.Quantity, Cost: p.LegA.Cost},
			LegB:      holdingJSON{Instrument: string(p.LegB.Instrument), Quantity: p.LegB.Quantity, Cost: p.LegB.Cost},
			UpdatedAt: p.UpdatedAt,
		}
	}
	return json.Marshal(out)
}

func decodePairs(data []byte) ([]domain.PairPosition, error) {
	var in []pairPositionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	out := make([]domain.PairPosition, len(in))
	for i, p := range in {
		out[i] = domain.PairPosition{
			PairID:    p.PairID,
			LegA:      domain.LegHolding{Instrument: domain.InstrumentKey(p.LegA.Instrument), Quantity: p.LegA.Quantity, Cost: p.LegA.Cost},
			LegB:      domain.LegHolding{Instrument: domain.InstrumentKey(p.LegB.Instrument), Quantity: p.LegB.Quantity, Cost: p.LegB.Cost},
			UpdatedAt: p.UpdatedAt,
		}
	}
	return out, nil
}

// SaveSnapshot appends a snapshot row.
func (s *PositionStore) SaveSnapshot(ctx context.Context, snap domain.PositionSnapshot) error {
	pairsJSON, err := encodePairs(snap.Pairs)
	if err != nil {
		return fmt.Errorf("postgres: marshal position pairs: %w", err)
	}

	const query = `
		INSERT INTO position_snapshots (day, total_exposure, reserved, daily_pnl, pairs, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query,
		snap.Day, numericText(snap.TotalExposure), numericText(snap.Reserved),
		numericText(snap.DailyPnL), pairsJSON, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot or domain.ErrNotFound.
func (s *PositionStore) Latest(ctx context.Context) (domain.PositionSnapshot, error) {
	const query = `
		SELECT day, total_exposure::text, reserved::text, daily_pnl::text, pairs, taken_at
		FROM position_snapshots ORDER BY taken_at DESC, id DESC LIMIT 1`

	var (
		snap                       domain.PositionSnapshot
		exposure, reserved, dayPnL string
		pairsJSON                  []byte
	)
	err := s.pool.QueryRow(ctx, query).Scan(&snap.Day, &exposure, &reserved, &dayPnL, &pairsJSON, &snap.TakenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PositionSnapshot{}, fmt.Errorf("postgres: position snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.PositionSnapshot{}, fmt.Errorf("postgres: latest position snapshot: %w", err)
	}

	nums, err := parseNumerics(exposure, reserved, dayPnL)
	if err != nil {
		return domain.PositionSnapshot{}, err
	}
	snap.TotalExposure, snap.Reserved, snap.DailyPnL = nums[0], nums[1], nums[2]

	if snap.Pairs, err = decodePairs(pairsJSON); err != nil {
		return domain.PositionSnapshot{}, fmt.Errorf("postgres: unmarshal position pairs: %w", err)
	}
	return snap, nil
}
