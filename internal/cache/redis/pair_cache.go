package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PairCache stores the last discovery result as one JSON document so a
// restart can skip the catalog crawl.
type PairCache struct {
	c *Client
}

// NewPairCache creates a PairCache.
func NewPairCache(c *Client) *PairCache {
	return &PairCache{c: c}
}

type cachedInstrument struct {
	Venue    string `json:"venue"`
	ID       string `json:"id"`
	MarketID string `json:"market_id,omitempty"`
	Outcome  string `json:"outcome"`
	Title    string `json:"title,omitempty"`
	NegRisk  bool   `json:"neg_risk,omitempty"`
}

type cachedPair struct {
	ID          string           `json:"id"`
	MarketKey   string           `json:"market_key"`
	Description string           `json:"description,omitempty"`
	ArbType     string           `json:"arb_type"`
	LegA        cachedInstrument `json:"leg_a"`
	LegB        cachedInstrument `json:"leg_b"`
}

// SetPairs replaces the cached pair set.
func (pc *PairCache) SetPairs(ctx context.Context, pairs []domain.MarketPair, ttl time.Duration) error {
	data, err := marshalPairs(pairs)
	if err != nil {
		return fmt.Errorf("redis: set pairs: %w", err)
	}
	if err := pc.c.rdb.Set(ctx, pc.c.Key("pairs"), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set pairs: %w", err)
	}
	return nil
}

// GetPairs returns the cached pair set or domain.ErrNotFound.
func (pc *PairCache) GetPairs(ctx context.Context) ([]domain.MarketPair, error) {
	data, err := pc.c.rdb.Get(ctx, pc.c.Key("pairs")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get pairs: %w", err)
	}
	pairs, err := unmarshalPairs(data)
	if err != nil {
		return nil, fmt.Errorf("redis: get pairs: %w", err)
	}
	return pairs, nil
}

func marshalPairs(pairs []domain.MarketPair) ([]byte, error) {
	out := make([]cachedPair, len(pairs))
	for i, p := range pairs {
		out[i] = cachedPair{
			ID:          p.ID,
			MarketKey:   p.MarketKey,
			Description: p.Description,
			ArbType:     string(p.ArbType),
			LegA:        toCachedInstrument(p.LegA),
			LegB:        toCachedInstrument(p.LegB),
		}
	}
	return json.Marshal(out)
}

func unmarshalPairs(data []byte) ([]domain.MarketPair, error) {
	var in []cachedPair
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	pairs := make([]domain.MarketPair, len(in))
	for i, p := range in {
		pairs[i] = domain.MarketPair{
			ID:          p.ID,
			MarketKey:   p.MarketKey,
			Description: p.Description,
			ArbType:     domain.ArbType(p.ArbType),
			LegA:        fromCachedInstrument(p.LegA),
			LegB:        fromCachedInstrument(p.LegB),
		}
	}
	return pairs, nil
}

func toCachedInstrument(in domain.Instrument) cachedInstrument {
	return cachedInstrument{
		Venue:    string(in.Venue),
		ID:       in.ID,
		MarketID: in.MarketID,
		Outcome:  string(in.Outcome),
		Title:    in.Title,
		NegRisk:  in.NegRisk,
	}
}

func fromCachedInstrument(c cachedInstrument) domain.Instrument {
	return domain.Instrument{
		Venue:    domain.Venue(c.Venue),
		ID:       c.ID,
		MarketID: c.MarketID,
		Outcome:  domain.Outcome(c.Outcome),
		Title:    c.Title,
		NegRisk:  c.NegRisk,
	}
}

var _ domain.PairCache = (*PairCache)(nil)
