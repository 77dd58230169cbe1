package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ArbExecutionStore persists arb executions and legs for PnL tracking.
type ArbExecutionStore interface {
	Create(ctx context.Context, exec ArbExecution) error
	GetByID(ctx context.Context, id string) (ArbExecution, error)
	ListRecent(ctx context.Context, limit int) ([]ArbExecution, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]ArbExecution, error)
	SumPnL(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// PositionStore persists ledger snapshots written off the hot path.
type PositionStore interface {
	SaveSnapshot(ctx context.Context, snap PositionSnapshot) error
	Latest(ctx context.Context) (PositionSnapshot, error)
}

// PairStore persists the most recent discovery result.
type PairStore interface {
	ReplaceAll(ctx context.Context, pairs []MarketPair) error
	List(ctx context.Context) ([]MarketPair, error)
}
