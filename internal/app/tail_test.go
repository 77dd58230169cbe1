package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/events"
)

type chanBus struct {
	ch      chan []byte
	channel string
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }
func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.channel = channel
	return b.ch, nil
}
func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestTailPrintsEventsAtOrAboveSeverity(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 4)}
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	info, err := events.Marshal(domain.Event{Type: domain.EventHeartbeat, Severity: domain.SeverityInfo, Time: at})
	require.NoError(t, err)
	fill, err := events.Marshal(domain.Event{
		Type: domain.EventOneSidedFill, Severity: domain.SeverityCritical, PairID: "nba-lal-bos:lal",
		Message: "leg b unfilled", Fields: map[string]any{"size": "10", "filled": "0"}, Time: at,
	})
	require.NoError(t, err)
	bus.ch <- info
	bus.ch <- []byte("garbage")
	bus.ch <- fill
	close(bus.ch)

	var out bytes.Buffer
	err = tailEvents(context.Background(), bus, domain.SeverityWarning, &out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, err)
	assert.Equal(t, events.BusChannel, bus.channel)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "2026-03-14T12:00:00Z critical one_sided_fill [nba-lal-bos:lal] leg b unfilled filled=0 size=10", lines[0])
}

func TestTailStopsOnCancel(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tailEvents(ctx, bus, domain.SeverityInfo, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, context.Canceled)
}
