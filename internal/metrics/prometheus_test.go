package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.QuoteApplied(domain.VenueKalshi, true)
	prom.QuoteApplied(domain.VenueKalshi, true)
	prom.QuoteApplied(domain.VenuePolymarket, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(prom.quotesApplied.WithLabelValues("kalshi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.quotesDiscarded.WithLabelValues("polymarket")))
}

func TestObserveEvents(t *testing.T) {
	prom := NewPrometheus()

	prom.Observe(domain.Event{Type: domain.EventOpportunityDetected})
	prom.Observe(domain.Event{Type: domain.EventOneSidedFill})
	prom.Observe(domain.Event{Type: domain.EventExecutionCompleted, Fields: map[string]any{"status": "filled"}})
	prom.Observe(domain.Event{Type: domain.EventBreakerTransition, Fields: map[string]any{"to": "open", "reason": "max_daily_loss"}})
	prom.Observe(domain.Event{Type: domain.EventPositionSnapshot, Fields: map[string]any{"total_exposure": "25", "daily_pnl": "-1.5"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.opportunities))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.oneSided))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.executions.WithLabelValues("filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.executions.WithLabelValues("one_sided")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.breakerTrips.WithLabelValues("max_daily_loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.breakerOpen))
	assert.Equal(t, 25.0, testutil.ToFloat64(prom.totalExposure))
	assert.Equal(t, -1.5, testutil.ToFloat64(prom.dailyPnL))

	prom.Observe(domain.Event{Type: domain.EventBreakerTransition, Fields: map[string]any{"to": "closed"}})
	assert.Equal(t, 0.0, testutil.ToFloat64(prom.breakerOpen))
}

func TestHandlerServesRegistry(t *testing.T) {
	prom := NewPrometheus()
	prom.Observe(domain.Event{Type: domain.EventOpportunityDetected})

	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "arbengine_opportunities_total 1"))
}
