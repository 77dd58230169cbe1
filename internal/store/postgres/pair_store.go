package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// PairStore implements domain.PairStore. The table always holds exactly the
// last discovered set.
type PairStore struct {
	pool *pgxpool.Pool
}

// NewPairStore creates a PairStore backed by pool.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

type instrumentJSON struct {
	Venue    string `json:"venue"`
	ID       string `json:"id"`
	MarketID string `json:"market_id,omitempty"`
	Outcome  string `json:"outcome"`
	Title    string `json:"title,omitempty"`
	NegRisk  bool   `json:"neg_risk,omitempty"`
}

func toInstrumentJSON(i domain.Instrument) instrumentJSON {
	return instrumentJSON{
		Venue:    string(i.Venue),
		ID:       i.ID,
		MarketID: i.MarketID,
		Outcome:  string(i.Outcome),
		Title:    i.Title,
		NegRisk:  i.NegRisk,
	}
}

func (j instrumentJSON) instrument() domain.Instrument {
	return domain.Instrument{
		Venue:    domain.Venue(j.Venue),
		ID:       j.ID,
		MarketID: j.MarketID,
		Outcome:  domain.Outcome(j.Outcome),
		Title:    j.Title,
		NegRisk:  j.NegRisk,
	}
}

// ReplaceAll swaps the stored set for pairs in one transaction.
func (s *PairStore) ReplaceAll(ctx context.Context, pairs []domain.MarketPair) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace pairs: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM market_pairs`); err != nil {
		return fmt.Errorf("postgres: clear pairs: %w", err)
	}

	const insert = `
		INSERT INTO market_pairs (id, market_key, description, arb_type, leg_a, leg_b)
		VALUES ($1, $2, $3, $4, $5, $6)`
	batch := &pgx.Batch{}
	for _, p := range pairs {
		legA, err := json.Marshal(toInstrumentJSON(p.LegA))
		if err != nil {
			return fmt.Errorf("postgres: marshal pair %s: %w", p.ID, err)
		}
		legB, err := json.Marshal(toInstrumentJSON(p.LegB))
		if err != nil {
			return fmt.Errorf("postgres: marshal pair %s: %w", p.ID, err)
		}
		batch.Queue(insert, p.ID, p.MarketKey, p.Description, string(p.ArbType), legA, legB)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert pairs: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit pairs: %w", err)
	}
	return nil
}

// List returns the stored pairs ordered by ID.
func (s *PairStore) List(ctx context.Context) ([]domain.MarketPair, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_key, description, arb_type, leg_a, leg_b FROM market_pairs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.MarketPair
	for rows.Next() {
		var (
			p          domain.MarketPair
			arbType    string
			legA, legB []byte
		)
		if err := rows.Scan(&p.ID, &p.MarketKey, &p.Description, &arbType, &legA, &legB); err != nil {
			return nil, fmt.Errorf("postgres: scan pair: %w", err)
		}
		p.ArbType = domain.ArbType(arbType)

		var a, b instrumentJSON
		if err := json.Unmarshal(legA, &a); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal pair %s: %w", p.ID, err)
		}
		if err := json.Unmarshal(legB, &b); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal pair %s: %w", p.ID, err)
		}
		p.LegA, p.LegB = a.instrument(), b.instrument()
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pairs rows: %w", err)
	}
	return pairs, nil
}
