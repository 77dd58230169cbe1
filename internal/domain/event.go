package domain

import (
	"context"
	"time"
)

// EventType names an operator-facing engine event.
type EventType string

const (
	EventOpportunityDetected EventType = "opportunity_detected"
	EventExecutionAttempted  EventType = "execution_attempted"
	EventExecutionCompleted  EventType = "execution_completed"
	EventExecutionFailed     EventType = "execution_failed"
	EventExecutionSimulated  EventType = "execution_simulated"
	EventExecutionVetoed     EventType = "execution_vetoed"
	EventOneSidedFill        EventType = "one_sided_fill"
	EventBreakerTransition   EventType = "breaker_transition"
	EventPositionSnapshot    EventType = "position_snapshot"
	EventPairsRefreshed      EventType = "pairs_refreshed"
	EventHeartbeat           EventType = "heartbeat"
	EventOperatorAction      EventType = "operator_action"
)

// Severity orders events for alerting.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// Event is a structured observation emitted by the engine.
type Event struct {
	Type     EventType
	Severity Severity
	PairID   string
	Message  string
	Fields   map[string]any
	Time     time.Time
}

// EventPublisher accepts engine events. Implementations must not block the
// caller on slow sinks.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}
