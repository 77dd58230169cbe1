package handler

import (
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/pairing"
)

// PairSource exposes the live pairing table.
type PairSource interface {
	Snapshot() *pairing.Snapshot
}

// PairHandler serves the current pair set.
type PairHandler struct {
	pairs PairSource
}

// NewPairHandler creates a PairHandler.
func NewPairHandler(pairs PairSource) *PairHandler {
	return &PairHandler{pairs: pairs}
}

// ListPairs returns every pair in the current table generation.
// GET /api/pairs
func (h *PairHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	snap := h.pairs.Snapshot()
	views := make([]pairView, 0, snap.Len())
	for _, p := range snap.Pairs() {
		views = append(views, toPairView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": snap.Generation,
		"pairs":      views,
	})
}
