package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/events"
)

// Tail follows the live event bus of a running engine and prints one line
// per event at or above minSeverity until ctx is cancelled.
func Tail(ctx context.Context, cfg config.RedisConfig, minSeverity string, out io.Writer, logger *slog.Logger) error {
	if cfg.Addr == "" {
		return errors.New("app: tail needs redis.addr")
	}
	client, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		TLSEnabled: cfg.TLSEnabled,
		Namespace:  cfg.Namespace,
	})
	if err != nil {
		return fmt.Errorf("app: tail: %w", err)
	}
	defer client.Close()

	return tailEvents(ctx, redis.NewSignalBus(client), events.ParseSeverity(minSeverity), out, logger)
}

func tailEvents(ctx context.Context, bus domain.SignalBus, min domain.Severity, out io.Writer, logger *slog.Logger) error {
	ch, err := bus.Subscribe(ctx, events.BusChannel)
	if err != nil {
		return fmt.Errorf("app: tail subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			ev, err := events.Unmarshal(data)
			if err != nil {
				logger.Warn("app: undecodable bus event", slog.String("error", err.Error()))
				continue
			}
			if ev.Severity < min {
				continue
			}
			fmt.Fprintln(out, formatEvent(ev))
		}
	}
}

// formatEvent renders "time severity type [pair] message k=v ...", with
// fields sorted by key.
func formatEvent(ev domain.Event) string {
	var b strings.Builder
	b.WriteString(ev.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, " %-8s %s", ev.Severity, ev.Type)
	if ev.PairID != "" {
		fmt.Fprintf(&b, " [%s]", ev.PairID)
	}
	if ev.Message != "" {
		b.WriteString(" " + ev.Message)
	}
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.Fields[k])
	}
	return b.String()
}
