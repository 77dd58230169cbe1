// Package notify delivers operator alerts to chat channels. Alerts are
// filtered by severity and event type before they reach any sender.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// Alert is a rendered notification.
type Alert struct {
	Title    string
	Body     string
	Severity domain.Severity
}

// Notifier renders events and dispatches them to every sender.
type Notifier struct {
	senders     []Sender
	events      map[string]bool
	minSeverity domain.Severity
	logger      *slog.Logger
}

// NewNotifier creates a Notifier. Only events at or above minSeverity are
// sent; a non-empty events list further restricts delivery to those types,
// except critical events, which always pass.
func NewNotifier(senders []Sender, events []string, minSeverity domain.Severity, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:     senders,
		events:      allowed,
		minSeverity: minSeverity,
		logger:      logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Wants reports whether ev passes the filters.
func (n *Notifier) Wants(ev domain.Event) bool {
	if ev.Severity == domain.SeverityCritical {
		return true
	}
	if ev.Severity < n.minSeverity {
		return false
	}
	return len(n.events) == 0 || n.events[string(ev.Type)]
}

// NotifyEvent renders and sends ev if it passes the filters.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	if !n.Wants(ev) {
		return nil
	}
	return n.dispatch(ctx, Render(ev))
}

// Render formats an event for chat.
func Render(ev domain.Event) Alert {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(ev.Severity.String()), strings.ReplaceAll(string(ev.Type), "_", " "))
	var b strings.Builder
	b.WriteString(ev.Message)
	if ev.PairID != "" {
		fmt.Fprintf(&b, "\npair: %s", ev.PairID)
	}
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, ev.Fields[k])
	}
	return Alert{Title: title, Body: b.String(), Severity: ev.Severity}
}

// dispatch sends to every sender; one failure does not stop the others.
func (n *Notifier) dispatch(ctx context.Context, alert Alert) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent", slog.String("sender", s.Name()), slog.String("title", alert.Title))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
