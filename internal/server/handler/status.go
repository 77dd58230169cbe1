package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
)

// EngineView exposes loop counters and the last heartbeat.
type EngineView interface {
	Stats() engine.Stats
	LastHeartbeat() engine.Heartbeat
}

// BreakerView exposes the breaker state.
type BreakerView interface {
	State() domain.BreakerState
}

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	DryRun     bool
	KalshiOnly bool
	Threshold  decimal.Decimal
	StartedAt  time.Time
	// Config is the redacted configuration.
	Config any
}

// StatusHandler serves the engine status.
type StatusHandler struct {
	info    StatusInfo
	engine  EngineView
	breaker BreakerView
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo, eng EngineView, breaker BreakerView) *StatusHandler {
	return &StatusHandler{info: info, engine: eng, breaker: breaker}
}

type bestView struct {
	PairID string          `json:"pair_id"`
	PriceA decimal.Decimal `json:"price_a"`
	PriceB decimal.Decimal `json:"price_b"`
	Fees   decimal.Decimal `json:"fees"`
	Cost   decimal.Decimal `json:"cost"`
	Gap    decimal.Decimal `json:"gap"`
}

type heartbeatView struct {
	At              time.Time `json:"at"`
	Pairs           int       `json:"pairs"`
	FreshKalshi     int       `json:"fresh_kalshi"`
	FreshPolymarket int       `json:"fresh_polymarket"`
	FreshBoth       int       `json:"fresh_both"`
	Best            *bestView `json:"best,omitempty"`
}

type statsView struct {
	Generation      uint64         `json:"generation"`
	Pairs           int            `json:"pairs"`
	Quotes          map[string]int `json:"quotes"`
	QuotesApplied   uint64         `json:"quotes_applied"`
	QuotesDiscarded uint64         `json:"quotes_discarded"`
	Opportunities   uint64         `json:"opportunities"`
	Executions      uint64         `json:"executions"`
}

type statusResponse struct {
	Mode          string         `json:"mode"`
	DryRun        bool           `json:"dry_run"`
	KalshiOnly    bool           `json:"kalshi_only"`
	StartedAt     time.Time      `json:"started_at"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Breaker       breakerView    `json:"breaker"`
	Engine        statsView      `json:"engine"`
	Heartbeat     *heartbeatView `json:"heartbeat,omitempty"`
	Config        any            `json:"config,omitempty"`
}

// GetStatus reports mode, breaker, loop counters and the last heartbeat.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	mode := "live"
	if h.info.DryRun {
		mode = "dry_run"
	}
	resp := statusResponse{
		Mode:          mode,
		DryRun:        h.info.DryRun,
		KalshiOnly:    h.info.KalshiOnly,
		StartedAt:     h.info.StartedAt,
		UptimeSeconds: int64(time.Since(h.info.StartedAt).Seconds()),
		Breaker:       toBreakerView(h.breaker.State()),
		Config:        h.info.Config,
	}

	stats := h.engine.Stats()
	resp.Engine = statsView{
		Generation:      stats.Generation,
		Pairs:           stats.Pairs,
		Quotes:          make(map[string]int, len(stats.Quotes)),
		QuotesApplied:   stats.QuotesApplied,
		QuotesDiscarded: stats.QuotesDiscarded,
		Opportunities:   stats.Opportunities,
		Executions:      stats.Executions,
	}
	for venue, n := range stats.Quotes {
		resp.Engine.Quotes[string(venue)] = n
	}

	if hb := h.engine.LastHeartbeat(); !hb.At.IsZero() {
		view := &heartbeatView{
			At:              hb.At,
			Pairs:           hb.Pairs,
			FreshKalshi:     hb.FreshKalshi,
			FreshPolymarket: hb.FreshPolymarket,
			FreshBoth:       hb.FreshBoth,
		}
		if hb.Best != nil {
			view.Best = &bestView{
				PairID: hb.Best.Pair.ID,
				PriceA: hb.Best.QuoteA.Price,
				PriceB: hb.Best.QuoteB.Price,
				Fees:   hb.Best.Fees,
				Cost:   hb.Best.Cost,
				Gap:    hb.Best.Gap(h.info.Threshold),
			}
		}
		resp.Heartbeat = view
	}

	writeJSON(w, http.StatusOK, resp)
}
