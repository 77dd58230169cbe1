// Package events fans engine events out to the log, metrics, the redis
// bus, operator notifications, the audit log and the dashboard hub. Slow
// sinks run on their own queues so publishing never blocks the trading
// path.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Sink receives events on its own goroutine.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev domain.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, ev domain.Event) error
}

// Name returns the sink name.
func (s SinkFunc) Name() string { return s.SinkName }

// Handle calls Fn.
func (s SinkFunc) Handle(ctx context.Context, ev domain.Event) error { return s.Fn(ctx, ev) }

type worker struct {
	sink    Sink
	queue   chan domain.Event
	filter  func(domain.Event) bool
	dropped atomic.Uint64
}

// Publisher implements domain.EventPublisher.
type Publisher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	closed   bool
	observer []func(domain.Event)
	workers  []*worker
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewPublisher creates a Publisher that logs every event.
func NewPublisher(logger *slog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		logger: logger.With(slog.String("component", "events")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Observe registers fn to run synchronously on every event. fn must be
// cheap and must not block.
func (p *Publisher) Observe(fn func(domain.Event)) {
	p.mu.Lock()
	p.observer = append(p.observer, fn)
	p.mu.Unlock()
}

// Attach starts a queue of the given size for sink. Events that pass filter
// (nil accepts everything) are queued; when the queue is full the event is
// dropped for that sink only.
func (p *Publisher) Attach(sink Sink, size int, filter func(domain.Event) bool) {
	if size <= 0 {
		size = 256
	}
	w := &worker{sink: sink, queue: make(chan domain.Event, size), filter: filter}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.workers = append(p.workers, w)
	p.wg.Add(1)
	go p.drain(w)
}

// Publish logs ev, runs the observers and queues it for every sink.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	p.log(ctx, ev)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	for _, fn := range p.observer {
		fn(ev)
	}
	for _, w := range p.workers {
		if w.filter != nil && !w.filter(ev) {
			continue
		}
		select {
		case w.queue <- ev:
		default:
			if n := w.dropped.Add(1); n == 1 || n%100 == 0 {
				p.logger.Warn("events: sink queue full, dropping",
					slog.String("sink", w.sink.Name()),
					slog.Uint64("dropped", n),
				)
			}
		}
	}
}

// Dropped reports per-sink drop counts.
func (p *Publisher) Dropped() map[string]uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]uint64, len(p.workers))
	for _, w := range p.workers {
		out[w.sink.Name()] = w.dropped.Load()
	}
	return out
}

// Close stops accepting events, drains the queues within timeout and
// stops the sinks.
func (p *Publisher) Close(timeout time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, w := range p.workers {
		close(w.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("events: drain timed out")
	}
	p.cancel()
}

func (p *Publisher) drain(w *worker) {
	defer p.wg.Done()
	for ev := range w.queue {
		ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
		if err := w.sink.Handle(ctx, ev); err != nil {
			p.logger.Warn("events: sink failed",
				slog.String("sink", w.sink.Name()),
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

func (p *Publisher) log(ctx context.Context, ev domain.Event) {
	level := slog.LevelDebug
	switch ev.Severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityCritical:
		level = slog.LevelError
	}
	if !p.logger.Enabled(ctx, level) {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", string(ev.Type)),
		slog.String("severity", ev.Severity.String()),
	}
	if ev.PairID != "" {
		attrs = append(attrs, slog.String("pair_id", ev.PairID))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	p.logger.LogAttrs(ctx, level, "events: "+ev.Message, attrs...)
}

var _ domain.EventPublisher = (*Publisher)(nil)
