package feed

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Sink receives every quote event an adapter produces.
type Sink func(domain.QuoteEvent)

// subscription tracks which venue instrument ids a feed should be
// subscribed to and which of them the live connection already has.
type subscription struct {
	mu        sync.Mutex
	wanted    map[string]struct{}
	sent      map[string]struct{}
	connected bool
}

func newSubscription() *subscription {
	return &subscription{
		wanted: make(map[string]struct{}),
		sent:   make(map[string]struct{}),
	}
}

// add records ids and claims those not yet sent on a live connection. The
// caller subscribes the returned ids and calls unsend if that fails.
func (s *subscription) add(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh []string
	for _, id := range ids {
		s.wanted[id] = struct{}{}
		if _, ok := s.sent[id]; !ok && s.connected {
			s.sent[id] = struct{}{}
			fresh = append(fresh, id)
		}
	}
	sort.Strings(fresh)
	return fresh
}

func (s *subscription) unsend(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.sent, id)
	}
}

// connect marks the connection live and claims every wanted id.
func (s *subscription) connect() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.sent = make(map[string]struct{}, len(s.wanted))
	all := make([]string, 0, len(s.wanted))
	for id := range s.wanted {
		s.sent[id] = struct{}{}
		all = append(all, id)
	}
	sort.Strings(all)
	return all
}

func (s *subscription) disconnect() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// connectWithRetry calls connect until it succeeds or ctx ends, backing
// off between failed attempts. Once connected the venue client owns
// reconnection.
func connectWithRetry(ctx context.Context, logger *slog.Logger, base time.Duration, connect func(context.Context) error) error {
	delay := base
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := connect(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("feed: connect failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > time.Minute {
			delay = time.Minute
		}
	}
}
