// Package metrics exposes engine counters and gauges in the Prometheus
// text format.
package metrics

import (
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const promNamespace = "arbengine"

// Prometheus owns a private registry so tests can build as many as they
// need.
type Prometheus struct {
	registry *prometheus.Registry

	quotesApplied   *prometheus.CounterVec
	quotesDiscarded *prometheus.CounterVec
	opportunities   prometheus.Counter
	executions      *prometheus.CounterVec
	vetoes          prometheus.Counter
	oneSided        prometheus.Counter
	breakerTrips    *prometheus.CounterVec
	breakerOpen     prometheus.Gauge
	pairs           prometheus.Gauge
	totalExposure   prometheus.Gauge
	dailyPnL        prometheus.Gauge
	bestCost        prometheus.Gauge
}

// NewPrometheus creates and registers every collector.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		quotesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "quotes_applied_total",
			Help:      "Quote events applied to the normalizer.",
		}, []string{"venue"}),
		quotesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "quotes_discarded_total",
			Help:      "Quote events discarded as out of order or invalid.",
		}, []string{"venue"}),
		opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "opportunities_total",
			Help:      "Opportunities detected.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "executions_total",
			Help:      "Finished order sets by outcome.",
		}, []string{"status"}),
		vetoes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "execution_vetoes_total",
			Help:      "Executions refused by the circuit breaker.",
		}),
		oneSided: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "one_sided_fills_total",
			Help:      "Order sets that left an unhedged position.",
		}),
		breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "breaker_trips_total",
			Help:      "Circuit breaker trips by reason.",
		}, []string{"reason"}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker blocks trading.",
		}),
		pairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "pairs",
			Help:      "Market pairs in the current table.",
		}),
		totalExposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "total_exposure_contracts",
			Help:      "Aggregate position in contracts.",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "daily_pnl_dollars",
			Help:      "Realized P&L for the current UTC day.",
		}),
		bestCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "best_pair_cost",
			Help:      "Lowest combined leg cost seen at the last heartbeat.",
		}),
	}
	p.registry.MustRegister(
		p.quotesApplied, p.quotesDiscarded, p.opportunities, p.executions,
		p.vetoes, p.oneSided, p.breakerTrips, p.breakerOpen, p.pairs,
		p.totalExposure, p.dailyPnL, p.bestCost,
	)
	return p
}

// Handler serves the registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// QuoteApplied counts one normalizer outcome.
func (p *Prometheus) QuoteApplied(venue domain.Venue, applied bool) {
	if applied {
		p.quotesApplied.WithLabelValues(string(venue)).Inc()
		return
	}
	p.quotesDiscarded.WithLabelValues(string(venue)).Inc()
}

// Observe updates collectors from an engine event.
func (p *Prometheus) Observe(ev domain.Event) {
	switch ev.Type {
	case domain.EventOpportunityDetected:
		p.opportunities.Inc()
	case domain.EventExecutionVetoed:
		p.vetoes.Inc()
	case domain.EventExecutionCompleted, domain.EventExecutionFailed, domain.EventExecutionSimulated:
		if status, ok := ev.Fields["status"].(string); ok {
			p.executions.WithLabelValues(status).Inc()
		}
	case domain.EventOneSidedFill:
		p.oneSided.Inc()
		p.executions.WithLabelValues(string(domain.ArbExecOneSided)).Inc()
	case domain.EventBreakerTransition:
		to, _ := ev.Fields["to"].(string)
		if to == string(domain.BreakerOpen) {
			reason, _ := ev.Fields["reason"].(string)
			p.breakerTrips.WithLabelValues(reason).Inc()
		}
		if to == string(domain.BreakerClosed) {
			p.breakerOpen.Set(0)
		} else {
			p.breakerOpen.Set(1)
		}
	case domain.EventPairsRefreshed:
		if n, ok := ev.Fields["pairs"].(int); ok {
			p.pairs.Set(float64(n))
		}
	case domain.EventPositionSnapshot:
		setDecimal(p.totalExposure, ev.Fields["total_exposure"])
		setDecimal(p.dailyPnL, ev.Fields["daily_pnl"])
	case domain.EventHeartbeat:
		if n, ok := ev.Fields["pairs"].(int); ok {
			p.pairs.Set(float64(n))
		}
		setDecimal(p.bestCost, ev.Fields["best_cost"])
	}
}

func setDecimal(g prometheus.Gauge, v any) {
	s, ok := v.(string)
	if !ok {
		return
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return
	}
	g.Set(d.InexactFloat64())
}
