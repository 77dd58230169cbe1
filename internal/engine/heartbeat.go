package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Heartbeat summarizes feed coverage and the closest pair to crossing.
type Heartbeat struct {
	At              time.Time
	Pairs           int
	FreshKalshi     int
	FreshPolymarket int
	FreshBoth       int
	// Best is the lowest-cost pair with both legs fresh, if any.
	Best    *arbitrage.Pricing
	Breaker domain.BreakerState
}

// Report builds a heartbeat from the current table and quotes.
func (e *Engine) Report(now time.Time) Heartbeat {
	snap := e.table.Snapshot()
	hb := Heartbeat{At: now, Pairs: snap.Len(), Breaker: e.breaker.State()}

	for _, pair := range snap.Pairs() {
		fresh := map[domain.Venue]bool{}
		for _, leg := range pair.Legs() {
			if _, err := e.quotes.Fresh(leg.Key(), now); err == nil {
				fresh[leg.Venue] = true
			}
		}
		if fresh[domain.VenueKalshi] {
			hb.FreshKalshi++
		}
		if fresh[domain.VenuePolymarket] {
			hb.FreshPolymarket++
		}

		p, err := e.detector.Price(pair, e.quotes, now)
		if err != nil {
			continue
		}
		hb.FreshBoth++
		if hb.Best == nil || p.Cost.LessThan(hb.Best.Cost) {
			best := p
			hb.Best = &best
		}
	}
	return hb
}

func (e *Engine) beat(ctx context.Context) {
	now := e.now()
	hb := e.Report(now)
	if pruned := e.quotes.Prune(now, e.cfg.QuoteRetention); pruned > 0 {
		e.logger.Debug("engine: pruned quotes", slog.Int("count", pruned))
	}

	e.mu.Lock()
	e.heartbeat = hb
	e.mu.Unlock()

	fields := map[string]any{
		"pairs":            hb.Pairs,
		"fresh_kalshi":     hb.FreshKalshi,
		"fresh_polymarket": hb.FreshPolymarket,
		"fresh_both":       hb.FreshBoth,
		"breaker":          string(hb.Breaker.Mode),
	}
	attrs := []any{
		slog.Int("pairs", hb.Pairs),
		slog.Int("fresh_kalshi", hb.FreshKalshi),
		slog.Int("fresh_polymarket", hb.FreshPolymarket),
		slog.Int("fresh_both", hb.FreshBoth),
		slog.String("breaker", string(hb.Breaker.Mode)),
	}
	if b := hb.Best; b != nil {
		gap := b.Gap(e.detector.Threshold())
		fields["best_pair"] = b.Pair.ID
		fields["best_cost"] = b.Cost.String()
		fields["best_gap"] = gap.String()
		attrs = append(attrs,
			slog.String("best_pair", b.Pair.ID),
			slog.String("leg_a", string(b.QuoteA.Instrument)),
			slog.String("leg_a_price", b.QuoteA.Price.String()),
			slog.String("leg_b", string(b.QuoteB.Instrument)),
			slog.String("leg_b_price", b.QuoteB.Price.String()),
			slog.String("fees", b.Fees.String()),
			slog.String("cost", b.Cost.String()),
			slog.String("gap", gap.String()),
		)
	}

	sev := domain.SeverityInfo
	msg := "heartbeat"
	if hb.Pairs > 0 && hb.FreshBoth == 0 {
		sev = domain.SeverityWarning
		msg = "no pair has fresh quotes on both legs"
		e.logger.Warn("engine: "+msg, attrs...)
	} else {
		e.logger.Info("engine: heartbeat", attrs...)
	}
	e.publish(ctx, domain.Event{
		Type:     domain.EventHeartbeat,
		Severity: sev,
		Message:  msg,
		Fields:   fields,
		Time:     now,
	})
}
