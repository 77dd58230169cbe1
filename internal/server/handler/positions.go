package handler

import (
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// PositionSource exposes the ledger.
type PositionSource interface {
	Snapshot() domain.PositionSnapshot
}

// PositionHandler serves ledger state.
type PositionHandler struct {
	positions PositionSource
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionSource) *PositionHandler {
	return &PositionHandler{positions: positions}
}

// ListPositions returns per-pair holdings, exposure and today's P&L.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPositionsView(h.positions.Snapshot()))
}
