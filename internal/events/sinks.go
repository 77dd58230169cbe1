package events

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Bus channel and stream names under the redis namespace.
const (
	BusChannel = "events"
	BusStream  = "events:log"
)

// BusSink publishes events on the signal bus and appends them to its
// stream so other processes can follow or replay them.
type BusSink struct {
	bus domain.SignalBus
}

// NewBusSink creates a BusSink.
func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus}
}

// Name implements Sink.
func (s *BusSink) Name() string { return "redis_bus" }

// Handle implements Sink.
func (s *BusSink) Handle(ctx context.Context, ev domain.Event) error {
	data, err := Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, BusChannel, data); err != nil {
		return err
	}
	return s.bus.StreamAppend(ctx, BusStream, data)
}

// AuditSink appends events to the audit log.
type AuditSink struct {
	store domain.AuditStore
}

// NewAuditSink creates an AuditSink.
func NewAuditSink(store domain.AuditStore) *AuditSink {
	return &AuditSink{store: store}
}

// Name implements Sink.
func (s *AuditSink) Name() string { return "audit" }

// Handle implements Sink.
func (s *AuditSink) Handle(ctx context.Context, ev domain.Event) error {
	detail := make(map[string]any, len(ev.Fields)+3)
	for k, v := range ev.Fields {
		detail[k] = v
	}
	detail["severity"] = ev.Severity.String()
	detail["message"] = ev.Message
	if ev.PairID != "" {
		detail["pair_id"] = ev.PairID
	}
	return s.store.Log(ctx, string(ev.Type), detail)
}

// Notifier delivers a formatted alert.
type Notifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// NotifySink forwards events to the operator notifier.
type NotifySink struct {
	n Notifier
}

// NewNotifySink creates a NotifySink.
func NewNotifySink(n Notifier) *NotifySink {
	return &NotifySink{n: n}
}

// Name implements Sink.
func (s *NotifySink) Name() string { return "notify" }

// Handle implements Sink.
func (s *NotifySink) Handle(ctx context.Context, ev domain.Event) error {
	if err := s.n.NotifyEvent(ctx, ev); err != nil {
		return fmt.Errorf("events: notify: %w", err)
	}
	return nil
}

// Broadcaster pushes events to connected dashboards.
type Broadcaster interface {
	BroadcastEvent(ev domain.Event)
}

// HubSink forwards events to the websocket hub.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a HubSink.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

// Name implements Sink.
func (s *HubSink) Name() string { return "ws_hub" }

// Handle implements Sink.
func (s *HubSink) Handle(_ context.Context, ev domain.Event) error {
	s.hub.BroadcastEvent(ev)
	return nil
}
