package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Wire is the JSON form of an event on the bus, in the audit log and in
// the archive.
type Wire struct {
	Type     string         `json:"type"`
	Severity string         `json:"severity"`
	PairID   string         `json:"pair_id,omitempty"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
	Time     time.Time      `json:"time"`
}

// ToWire converts ev.
func ToWire(ev domain.Event) Wire {
	return Wire{
		Type:     string(ev.Type),
		Severity: ev.Severity.String(),
		PairID:   ev.PairID,
		Message:  ev.Message,
		Fields:   ev.Fields,
		Time:     ev.Time.UTC(),
	}
}

// Marshal encodes ev as JSON.
func Marshal(ev domain.Event) ([]byte, error) {
	data, err := json.Marshal(ToWire(ev))
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	return data, nil
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(data []byte) (domain.Event, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Event{}, fmt.Errorf("events: unmarshal: %w", err)
	}
	return domain.Event{
		Type:     domain.EventType(w.Type),
		Severity: ParseSeverity(w.Severity),
		PairID:   w.PairID,
		Message:  w.Message,
		Fields:   w.Fields,
		Time:     w.Time,
	}, nil
}

// ParseSeverity is the inverse of Severity.String. Unknown names are info.
func ParseSeverity(s string) domain.Severity {
	switch s {
	case "warning":
		return domain.SeverityWarning
	case "critical":
		return domain.SeverityCritical
	default:
		return domain.SeverityInfo
	}
}

// BreakerEvent describes a breaker transition. Trips are critical and the
// return to Closed is a warning.
func BreakerEvent(t domain.BreakerTransition) domain.Event {
	sev := domain.SeverityInfo
	msg := fmt.Sprintf("breaker %s -> %s", t.From, t.To)
	switch t.To {
	case domain.BreakerOpen:
		sev = domain.SeverityCritical
		msg = fmt.Sprintf("breaker tripped: %s", t.Reason)
	case domain.BreakerClosed:
		sev = domain.SeverityWarning
		msg = "breaker closed, trading resumed"
	}
	fields := map[string]any{
		"from":   string(t.From),
		"to":     string(t.To),
		"reason": string(t.Reason),
	}
	if !t.CooldownUntil.IsZero() {
		fields["cooldown_until"] = t.CooldownUntil.UTC().Format(time.RFC3339)
	}
	return domain.Event{
		Type:     domain.EventBreakerTransition,
		Severity: sev,
		Message:  msg,
		Fields:   fields,
		Time:     t.At,
	}
}

// AtLeast returns a filter passing events of severity min or higher.
func AtLeast(min domain.Severity) func(domain.Event) bool {
	return func(ev domain.Event) bool { return ev.Severity >= min }
}

// OfType returns a filter passing the listed event types.
func OfType(types ...domain.EventType) func(domain.Event) bool {
	set := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(ev domain.Event) bool { return set[ev.Type] }
}
