package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// EventLog reads the replayable event stream.
type EventLog interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventHandler pages through recent engine events.
type EventHandler struct {
	log    EventLog
	stream string
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler over stream. A nil log answers 501.
func NewEventHandler(log EventLog, stream string, logger *slog.Logger) *EventHandler {
	return &EventHandler{log: log, stream: stream, logger: logger}
}

type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns events after the given stream id, oldest first; pass
// the returned "next" as ?after= to continue.
// GET /api/events?after=0&limit=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		writeError(w, http.StatusNotImplemented, "event log not configured")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}

	msgs, err := h.log.StreamRead(r.Context(), h.stream, after, parseLimit(r, 100, 1000))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read event stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	out := make([]streamEvent, 0, len(msgs))
	next := after
	for _, m := range msgs {
		next = m.ID
		if json.Valid(m.Payload) {
			out = append(out, streamEvent{ID: m.ID, Event: m.Payload})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "next": next})
}
