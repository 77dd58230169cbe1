package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ExecutionStore is the read side of the execution record.
type ExecutionStore interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ArbExecution, error)
	GetByID(ctx context.Context, id string) (domain.ArbExecution, error)
	SumPnL(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// ExecutionHandler serves execution history and realized P&L.
type ExecutionHandler struct {
	store  ExecutionStore
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler. A nil store answers 501.
func NewExecutionHandler(store ExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logger}
}

// ListExecutions returns recent executions with legs.
// GET /api/executions?limit=50
func (h *ExecutionHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "execution history not configured")
		return
	}
	list, err := h.store.ListRecent(r.Context(), parseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	views := make([]executionView, 0, len(list))
	for _, e := range list {
		views = append(views, toExecutionView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": views})
}

// GetExecution returns one execution.
// GET /api/executions/{id}
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "execution history not configured")
		return
	}
	id := r.PathValue("id")
	exec, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get execution failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, toExecutionView(exec))
}

// Profit totals realized P&L since a date, default the start of the UTC day.
// GET /api/pnl?since=2025-12-19
func (h *ExecutionHandler) Profit(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "execution history not configured")
		return
	}
	since, err := parseSince(r, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	total, err := h.store.SumPnL(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sum pnl failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute pnl")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":        since.Format(time.RFC3339),
		"realized_pnl": total,
	})
}
