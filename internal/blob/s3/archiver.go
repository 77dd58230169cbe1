package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// ExecutionSource lists executions started in [from, to).
type ExecutionSource interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.ArbExecution, error)
}

// ObjectStore is the subset of Writer the archiver needs.
type ObjectStore interface {
	domain.BlobWriter
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver implements domain.Archiver. For a closed UTC day it writes the
// day's executions and audit events as JSONL, then logs the archive itself
// to the audit log. Rows are never deleted from the primary store.
type Archiver struct {
	store      ObjectStore
	executions ExecutionSource
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(store ObjectStore, executions ExecutionSource, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:      store,
		executions: executions,
		audit:      audit,
		logger:     logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDay uploads the UTC day containing day and returns the number of
// records written. A day whose execution file already exists is skipped.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	execPath := archivePath("executions", from)

	exists, err := a.store.Exists(ctx, execPath)
	if err != nil {
		return 0, err
	}
	if exists {
		a.logger.Info("archiver: day already archived", slog.String("path", execPath))
		return 0, nil
	}

	execs, err := a.executions.ListBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	records := make([]executionRecord, len(execs))
	for i, e := range execs {
		records[i] = toExecutionRecord(e)
	}
	if err := uploadJSONL(ctx, a.store, execPath, records); err != nil {
		return 0, err
	}
	count := len(records)

	var events []domain.AuditEntry
	if a.audit != nil {
		until := to.Add(-time.Nanosecond)
		events, err = a.audit.List(ctx, domain.ListOpts{Since: &from, Until: &until})
		if err != nil {
			return count, fmt.Errorf("s3blob: archive events query: %w", err)
		}
		if len(events) > 0 {
			rows := make([]eventRecord, len(events))
			for i, e := range events {
				rows[i] = eventRecord{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt}
			}
			if err := uploadJSONL(ctx, a.store, archivePath("events", from), rows); err != nil {
				return count, err
			}
			count += len(events)
		}

		if err := a.audit.Log(ctx, "archive_day", map[string]any{
			"day":        from.Format(time.DateOnly),
			"executions": len(records),
			"events":     len(events),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}

	a.logger.Info("archiver: day archived",
		slog.String("day", from.Format(time.DateOnly)),
		slog.Int("executions", len(records)),
		slog.Int("events", len(events)),
	)
	return count, nil
}

func uploadJSONL[T any](ctx context.Context, store domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: marshal %s: %w", path, err)
	}
	if err := store.Put(ctx, path, bytes.NewReader(buf), jsonlContentType); err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}

type legRecord struct {
	OrderID       string          `json:"order_id,omitempty"`
	Instrument    string          `json:"instrument"`
	Side          string          `json:"side"`
	ExpectedPrice decimal.Decimal `json:"expected_price"`
	Size          decimal.Decimal `json:"size"`
	FilledPrice   decimal.Decimal `json:"filled_price"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	Fee           decimal.Decimal `json:"fee"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
}

type eventRecord struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type executionRecord struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunity_id"`
	PairID        string          `json:"pair_id"`
	ArbType       string          `json:"arb_type"`
	Size          decimal.Decimal `json:"size"`
	ExpectedCost  decimal.Decimal `json:"expected_cost"`
	ExpectedEdge  decimal.Decimal `json:"expected_edge"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Fees          decimal.Decimal `json:"fees"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Legs          []legRecord     `json:"legs"`
}

func toExecutionRecord(e domain.ArbExecution) executionRecord {
	rec := executionRecord{
		ID:            e.ID,
		OpportunityID: e.OpportunityID,
		PairID:        e.PairID,
		ArbType:       string(e.ArbType),
		Size:          e.Size,
		ExpectedCost:  e.ExpectedCost,
		ExpectedEdge:  e.ExpectedEdge,
		RealizedPnL:   e.RealizedPnL,
		Fees:          e.Fees,
		Status:        string(e.Status),
		Error:         e.Error,
		StartedAt:     e.StartedAt,
		CompletedAt:   e.CompletedAt,
		Legs:          make([]legRecord, len(e.Legs)),
	}
	for i, l := range e.Legs {
		rec.Legs[i] = legRecord{
			OrderID:       l.OrderID,
			Instrument:    string(l.Instrument.Key()),
			Side:          string(l.Side),
			ExpectedPrice: l.ExpectedPrice,
			Size:          l.Size,
			FilledPrice:   l.FilledPrice,
			FilledSize:    l.FilledSize,
			Fee:           l.Fee,
			Status:        string(l.Status),
			Error:         l.Error,
		}
	}
	return rec
}

// archivePath partitions archive files by UTC day:
//
//	archive/executions/2025-12-19.jsonl
//	archive/events/2025-12-19.jsonl
func archivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.UTC().Format(time.DateOnly))
}

// marshalJSONL encodes records as one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
