package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// BreakerControl is the operator surface of the breaker.
type BreakerControl interface {
	State() domain.BreakerState
	Reset()
}

// PnLAdjuster books operator-recorded P&L.
type PnLAdjuster interface {
	AdjustPnL(amount decimal.Decimal) decimal.Decimal
}

// OperatorHandler serves the write endpoints an operator uses after a
// one-sided fill: closing the breaker and recording an unwind's P&L.
type OperatorHandler struct {
	breaker BreakerControl
	ledger  PnLAdjuster
	events  domain.EventPublisher
	logger  *slog.Logger
}

// NewOperatorHandler creates an OperatorHandler. events may be nil.
func NewOperatorHandler(breaker BreakerControl, ledger PnLAdjuster, events domain.EventPublisher, logger *slog.Logger) *OperatorHandler {
	return &OperatorHandler{breaker: breaker, ledger: ledger, events: events, logger: logger}
}

// ResetBreaker closes the breaker and clears the error counter.
// POST /api/breaker/reset
func (h *OperatorHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	before := h.breaker.State()
	h.breaker.Reset()
	after := h.breaker.State()

	h.logger.WarnContext(r.Context(), "handler: breaker reset by operator",
		slog.String("from", string(before.Mode)),
		slog.String("reason", string(before.Reason)),
	)
	h.publish(r, "breaker reset by operator", map[string]any{
		"action": "breaker_reset",
		"from":   string(before.Mode),
		"reason": string(before.Reason),
	})
	writeJSON(w, http.StatusOK, map[string]any{"breaker": toBreakerView(after)})
}

type adjustPnLRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// AdjustPnL records realized P&L that happened outside the engine.
// POST /api/pnl {"amount":"-1.25","note":"unwound kalshi leg"}
func (h *OperatorHandler) AdjustPnL(w http.ResponseWriter, r *http.Request) {
	var req adjustPnLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"amount\": \"<decimal>\", \"note\": \"...\"}")
		return
	}
	if req.Amount.IsZero() {
		writeError(w, http.StatusBadRequest, "amount must be non-zero")
		return
	}

	total := h.ledger.AdjustPnL(req.Amount)
	h.logger.WarnContext(r.Context(), "handler: pnl adjusted by operator",
		slog.String("amount", req.Amount.String()),
		slog.String("daily_pnl", total.String()),
		slog.String("note", req.Note),
	)
	h.publish(r, "pnl adjusted by operator", map[string]any{
		"action":    "pnl_adjust",
		"amount":    req.Amount.String(),
		"daily_pnl": total.String(),
		"note":      req.Note,
	})
	writeJSON(w, http.StatusOK, map[string]any{"daily_pnl": total})
}

func (h *OperatorHandler) publish(r *http.Request, msg string, fields map[string]any) {
	if h.events == nil {
		return
	}
	h.events.Publish(r.Context(), domain.Event{
		Type:     domain.EventOperatorAction,
		Severity: domain.SeverityWarning,
		Message:  msg,
		Fields:   fields,
		Time:     time.Now().UTC(),
	})
}
