package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// quoteTTL drops mirrored quotes for instruments that stop updating.
const quoteTTL = 10 * time.Minute

// QuoteCache mirrors normalized quotes as hashes at
// "{ns}:quote:{instrument key}" for dashboards. The engine never reads it
// back on the trading path.
type QuoteCache struct {
	c *Client
}

// NewQuoteCache creates a QuoteCache.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{c: c}
}

// SetQuote stores q.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := qc.c.Key("quote", string(q.Instrument))
	pipe := qc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, encodeQuote(q))
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Instrument, err)
	}
	return nil
}

// GetQuote returns the mirrored quote or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, key domain.InstrumentKey) (domain.Quote, error) {
	vals, err := qc.c.rdb.HGetAll(ctx, qc.c.Key("quote", string(key))).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := decodeQuote(key, vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	return q, nil
}

// GetQuotes fetches several quotes in one round trip. Missing keys are
// omitted.
func (qc *QuoteCache) GetQuotes(ctx context.Context, keys []domain.InstrumentKey) (map[domain.InstrumentKey]domain.Quote, error) {
	out := make(map[domain.InstrumentKey]domain.Quote, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	pipe := qc.c.rdb.Pipeline()
	cmds := make(map[domain.InstrumentKey]*redis.MapStringStringCmd, len(keys))
	for _, k := range keys {
		cmds[k] = pipe.HGetAll(ctx, qc.c.Key("quote", string(k)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get quotes: %w", err)
	}
	for k, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		if q, err := decodeQuote(k, vals); err == nil {
			out[k] = q
		}
	}
	return out, nil
}

func encodeQuote(q domain.Quote) map[string]any {
	return map[string]any{
		"price":    q.Price.String(),
		"size":     q.Size.String(),
		"seq":      strconv.FormatUint(q.Sequence, 10),
		"ts":       strconv.FormatInt(q.Timestamp.UnixNano(), 10),
		"received": strconv.FormatInt(q.ReceivedAt.UnixNano(), 10),
	}
}

func decodeQuote(key domain.InstrumentKey, vals map[string]string) (domain.Quote, error) {
	price, err := decimal.NewFromString(vals["price"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse price: %w", err)
	}
	size, err := decimal.NewFromString(vals["size"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse size: %w", err)
	}
	seq, err := strconv.ParseUint(vals["seq"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse seq: %w", err)
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ts: %w", err)
	}
	recv, err := strconv.ParseInt(vals["received"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse received: %w", err)
	}
	return domain.Quote{
		Instrument: key,
		Price:      price,
		Size:       size,
		Sequence:   seq,
		Timestamp:  time.Unix(0, ts).UTC(),
		ReceivedAt: time.Unix(0, recv).UTC(),
	}, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
