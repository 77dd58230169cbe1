package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/pairing"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
)

type fakeEngine struct{}

func (fakeEngine) Stats() engine.Stats {
	return engine.Stats{Generation: 2, Pairs: 1, Quotes: map[domain.Venue]int{domain.VenueKalshi: 1}, QuotesApplied: 10}
}

func (fakeEngine) LastHeartbeat() engine.Heartbeat { return engine.Heartbeat{} }

type fakeBreaker struct {
	mu     sync.Mutex
	state  domain.BreakerState
	resets int
}

func (b *fakeBreaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *fakeBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	b.state = domain.BreakerState{Mode: domain.BreakerClosed}
}

type fakeLedger struct {
	total decimal.Decimal
}

func (l *fakeLedger) AdjustPnL(amount decimal.Decimal) decimal.Decimal {
	l.total = l.total.Add(amount)
	return l.total
}

func (l *fakeLedger) Snapshot() domain.PositionSnapshot {
	return domain.PositionSnapshot{
		Day:           "2025-12-19",
		TotalExposure: decimal.NewFromInt(10),
		DailyPnL:      l.total,
		Pairs: []domain.PairPosition{{
			PairID: "nba-lal-bos:lal",
			LegA:   domain.LegHolding{Instrument: "polymarket:1:yes", Quantity: decimal.NewFromInt(10)},
			LegB:   domain.LegHolding{Instrument: "kalshi:KX:no", Quantity: decimal.NewFromInt(4)},
		}},
	}
}

type fakeExecutions struct {
	execs []domain.ArbExecution
}

func (f *fakeExecutions) ListRecent(_ context.Context, limit int) ([]domain.ArbExecution, error) {
	if limit < len(f.execs) {
		return f.execs[:limit], nil
	}
	return f.execs, nil
}

func (f *fakeExecutions) GetByID(_ context.Context, id string) (domain.ArbExecution, error) {
	for _, e := range f.execs {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.ArbExecution{}, domain.ErrNotFound
}

func (f *fakeExecutions) SumPnL(context.Context, time.Time) (decimal.Decimal, error) {
	return decimal.RequireFromString("1.75"), nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingEvents) Publish(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type denyAfter struct {
	mu    sync.Mutex
	count int
	max   int
}

func (d *denyAfter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	return d.count <= d.max, nil
}

type harness struct {
	url     string
	breaker *fakeBreaker
	ledger  *fakeLedger
	events  *recordingEvents
}

func newHarness(t *testing.T, cfg Config, limiter domain.RateLimiter, checks map[string]handler.Check) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	table := pairing.NewTable()
	_, _, err := table.Replace([]domain.MarketPair{{
		ID:        "nba-lal-bos:lal",
		MarketKey: "nba-lal-bos",
		ArbType:   domain.ArbTypePolyYesKalshiNo,
		LegA:      domain.Instrument{Venue: domain.VenuePolymarket, ID: "1", Outcome: domain.OutcomeYes},
		LegB:      domain.Instrument{Venue: domain.VenueKalshi, ID: "KX", Outcome: domain.OutcomeNo},
	}})
	require.NoError(t, err)

	h := &harness{
		breaker: &fakeBreaker{state: domain.BreakerState{Mode: domain.BreakerOpen, Reason: domain.TripConsecutiveErrors}},
		ledger:  &fakeLedger{total: decimal.Zero},
		events:  &recordingEvents{},
	}
	execs := &fakeExecutions{execs: []domain.ArbExecution{{ID: "e1", PairID: "nba-lal-bos:lal", Status: domain.ArbExecFilled}}}

	srv := NewServer(cfg, Handlers{
		Health:     handler.NewHealthHandler(checks, logger),
		Status:     handler.NewStatusHandler(handler.StatusInfo{DryRun: true, StartedAt: time.Now()}, fakeEngine{}, h.breaker),
		Pairs:      handler.NewPairHandler(table),
		Positions:  handler.NewPositionHandler(h.ledger),
		Executions: handler.NewExecutionHandler(execs, logger),
		Operator:   handler.NewOperatorHandler(h.breaker, h.ledger, h.events, logger),
		Metrics:    http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, "ok") }),
	}, nil, limiter, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	h.url = ts.URL
	return h
}

func getJSON(t *testing.T, url string, header map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthReportsChecks(t *testing.T) {
	h := newHarness(t, Config{}, nil, map[string]handler.Check{
		"postgres": func(context.Context) error { return nil },
	})
	code, body := getJSON(t, h.url+"/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	h = newHarness(t, Config{}, nil, map[string]handler.Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	code, body = getJSON(t, h.url+"/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestAuthGuardsAPIButNotHealth(t *testing.T) {
	h := newHarness(t, Config{APIKey: "secret"}, nil, nil)

	code, _ := getJSON(t, h.url+"/api/health", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = getJSON(t, h.url+"/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := getJSON(t, h.url+"/api/status", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "dry_run", body["mode"])
	assert.Equal(t, "open", body["breaker"].(map[string]any)["mode"])
}

func TestPairsAndPositions(t *testing.T) {
	h := newHarness(t, Config{}, nil, nil)

	code, body := getJSON(t, h.url+"/api/pairs", nil)
	require.Equal(t, http.StatusOK, code)
	pairs := body["pairs"].([]any)
	require.Len(t, pairs, 1)
	assert.Equal(t, "kalshi:KX:no", pairs[0].(map[string]any)["leg_b"].(map[string]any)["key"])

	code, body = getJSON(t, h.url+"/api/positions", nil)
	require.Equal(t, http.StatusOK, code)
	pos := body["pairs"].([]any)[0].(map[string]any)
	assert.Equal(t, "10", pos["exposure"])
	assert.Equal(t, "6", pos["unhedged"])
}

func TestExecutionsEndpoints(t *testing.T) {
	h := newHarness(t, Config{}, nil, nil)

	code, body := getJSON(t, h.url+"/api/executions?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["executions"], 1)

	code, body = getJSON(t, h.url+"/api/executions/e1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "filled", body["status"])

	code, _ = getJSON(t, h.url+"/api/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = getJSON(t, h.url+"/api/pnl?since=2025-12-19", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.75", body["realized_pnl"])
	assert.Equal(t, "2025-12-19T00:00:00Z", body["since"])

	code, _ = getJSON(t, h.url+"/api/pnl?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestOperatorActions(t *testing.T) {
	h := newHarness(t, Config{}, nil, nil)

	code, body := post(t, h.url+"/api/breaker/reset", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "closed", body["breaker"].(map[string]any)["mode"])
	h.breaker.mu.Lock()
	assert.Equal(t, 1, h.breaker.resets)
	h.breaker.mu.Unlock()

	code, body = post(t, h.url+"/api/pnl", `{"amount":"-1.25","note":"unwound kalshi leg"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "-1.25", body["daily_pnl"])

	code, _ = post(t, h.url+"/api/pnl", `{"amount":"0"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = post(t, h.url+"/api/pnl", `{"amount":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	require.Len(t, h.events.events, 2)
	assert.Equal(t, domain.EventOperatorAction, h.events.events[0].Type)
	assert.Equal(t, "pnl_adjust", h.events.events[1].Fields["action"])
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Config{RateLimit: 2, RateWindow: time.Second}, &denyAfter{max: 2}, nil)

	for range 2 {
		code, _ := getJSON(t, h.url+"/api/pairs", nil)
		assert.Equal(t, http.StatusOK, code)
	}
	code, _ := getJSON(t, h.url+"/api/pairs", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestMetricsIsPublic(t *testing.T) {
	h := newHarness(t, Config{APIKey: "secret"}, nil, nil)
	resp, err := http.Get(h.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDEchoedOrGenerated(t *testing.T) {
	h := newHarness(t, Config{}, nil, nil)

	resp, err := http.Get(h.url + "/api/pairs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)

	req, err := http.NewRequest(http.MethodGet, h.url+"/api/pairs", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-1")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-1", resp.Header.Get("X-Request-ID"))
}

func TestCORSAdmitsConfiguredOrigins(t *testing.T) {
	h := newHarness(t, Config{APIKey: "secret", CORSOrigins: []string{"https://dash.example.com/"}}, nil, nil)
	do := func(method, origin string) *http.Response {
		req, err := http.NewRequest(method, h.url+"/api/status", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := do(http.MethodOptions, "https://DASH.example.com")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://DASH.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Request-ID")

	resp = do(http.MethodGet, "https://dash.example.com")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://dash.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-ID", resp.Header.Get("Access-Control-Expose-Headers"))

	resp = do(http.MethodOptions, "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = do(http.MethodGet, "https://evil.example.com")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

type fakeEventLog struct{ msgs []domain.StreamMessage }

func (f fakeEventLog) StreamRead(_ context.Context, stream, after string, count int) ([]domain.StreamMessage, error) {
	if stream != "events:log" {
		return nil, errors.New("unknown stream")
	}
	var out []domain.StreamMessage
	for _, m := range f.msgs {
		if m.ID > after && len(out) < count {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestEventsPagesThroughStream(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log := fakeEventLog{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"type":"heartbeat"}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
		{ID: "3-0", Payload: []byte(`{"type":"one_sided_fill"}`)},
	}}
	srv := NewServer(Config{}, Handlers{
		Health: handler.NewHealthHandler(nil, logger),
		Events: handler.NewEventHandler(log, "events:log", logger),
	}, nil, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	code, body := getJSON(t, ts.URL+"/api/events?limit=2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["events"], 1)
	assert.Equal(t, "2-0", body["next"])

	code, body = getJSON(t, ts.URL+"/api/events?after=2-0", nil)
	require.Equal(t, http.StatusOK, code)
	evs := body["events"].([]any)
	require.Len(t, evs, 1)
	assert.Equal(t, "3-0", evs[0].(map[string]any)["id"])
	assert.Equal(t, "one_sided_fill", evs[0].(map[string]any)["event"].(map[string]any)["type"])
}
