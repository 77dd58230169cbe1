package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type collectSink struct {
	name string
	mu   sync.Mutex
	got  []domain.Event
	err  error
	gate chan struct{}
}

func (c *collectSink) Name() string { return c.name }

func (c *collectSink) Handle(_ context.Context, ev domain.Event) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	c.got = append(c.got, ev)
	c.mu.Unlock()
	return c.err
}

func (c *collectSink) events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.got...)
}

func TestPublisherFansOutWithFilters(t *testing.T) {
	p := NewPublisher(quietLogger())
	all := &collectSink{name: "all"}
	alerts := &collectSink{name: "alerts", err: errors.New("down")}
	var observed []domain.EventType
	p.Observe(func(ev domain.Event) { observed = append(observed, ev.Type) })
	p.Attach(all, 16, nil)
	p.Attach(alerts, 16, AtLeast(domain.SeverityWarning))

	ctx := context.Background()
	p.Publish(ctx, domain.Event{Type: domain.EventHeartbeat, Severity: domain.SeverityInfo})
	p.Publish(ctx, domain.Event{Type: domain.EventOneSidedFill, Severity: domain.SeverityCritical})
	p.Close(time.Second)

	assert.Len(t, all.events(), 2)
	require.Len(t, alerts.events(), 1)
	assert.Equal(t, domain.EventOneSidedFill, alerts.events()[0].Type)
	assert.Equal(t, []domain.EventType{domain.EventHeartbeat, domain.EventOneSidedFill}, observed)
	assert.False(t, all.events()[0].Time.IsZero())

	// Publishing after Close is a no-op.
	p.Publish(ctx, domain.Event{Type: domain.EventHeartbeat})
	assert.Len(t, all.events(), 2)
}

func TestSlowSinkDropsInsteadOfBlocking(t *testing.T) {
	p := NewPublisher(quietLogger())
	slow := &collectSink{name: "slow", gate: make(chan struct{})}
	p.Attach(slow, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Publish(context.Background(), domain.Event{Type: domain.EventHeartbeat})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow sink")
	}

	assert.Greater(t, p.Dropped()["slow"], uint64(0))
	close(slow.gate)
	p.Close(time.Second)
}

func TestWireRoundTrip(t *testing.T) {
	ev := domain.Event{
		Type:     domain.EventOneSidedFill,
		Severity: domain.SeverityCritical,
		PairID:   "nba-lal-bos",
		Message:  "one-sided fill: 10 unhedged",
		Fields:   map[string]any{"unhedged": "10"},
		Time:     time.Date(2025, 12, 19, 18, 0, 0, 0, time.UTC),
	}
	data, err := Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"critical"`)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestBreakerEvent(t *testing.T) {
	at := time.Date(2025, 12, 19, 18, 0, 0, 0, time.UTC)
	trip := BreakerEvent(domain.BreakerTransition{
		From: domain.BreakerClosed, To: domain.BreakerOpen,
		Reason: domain.TripDailyLoss, At: at, CooldownUntil: at.Add(5 * time.Minute),
	})
	assert.Equal(t, domain.SeverityCritical, trip.Severity)
	assert.Equal(t, "max_daily_loss", trip.Fields["reason"])
	assert.Equal(t, "2025-12-19T18:05:00Z", trip.Fields["cooldown_until"])

	closed := BreakerEvent(domain.BreakerTransition{From: domain.BreakerCooldown, To: domain.BreakerClosed, At: at})
	assert.Equal(t, domain.SeverityWarning, closed.Severity)
}

type fakeBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeAudit struct {
	event  string
	detail map[string]any
}

func (a *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.event, a.detail = event, detail
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestBusAndAuditSinks(t *testing.T) {
	ev := domain.Event{Type: domain.EventExecutionCompleted, PairID: "p1", Message: "both legs filled", Fields: map[string]any{"size": "5"}}

	bus := &fakeBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
	require.NoError(t, NewBusSink(bus).Handle(context.Background(), ev))
	assert.Len(t, bus.published[BusChannel], 1)
	assert.Len(t, bus.streamed[BusStream], 1)

	audit := &fakeAudit{}
	require.NoError(t, NewAuditSink(audit).Handle(context.Background(), ev))
	assert.Equal(t, "execution_completed", audit.event)
	assert.Equal(t, "5", audit.detail["size"])
	assert.Equal(t, "p1", audit.detail["pair_id"])
	assert.Equal(t, "info", audit.detail["severity"])
}
