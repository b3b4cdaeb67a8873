package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/api/problem"
	"github.com/kunledawodu/counterex/internal/notify"
	"github.com/kunledawodu/counterex/internal/observability"
)

const heartbeatInterval = 25 * time.Second

type EventsHandler struct {
	broker notify.Broker
}

func NewEventsHandler(broker notify.Broker) *EventsHandler {
	return &EventsHandler{broker: broker}
}

// Stream pushes the authenticated user's wallet events over SSE. Events for
// other users are filtered out before writing.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		problem.Write(w, r, http.StatusInternalServerError, problem.Type("events/streaming-unsupported"), "", "response writer does not support streaming")
		return
	}

	sub, err := h.broker.Subscribe(r.Context())
	if err != nil {
		RespondError(w, r, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	observability.AddEventStreamSubscribers(1)
	defer observability.AddEventStreamSubscribers(-1)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if ev.UserID != userID {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				zap.L().Warn("failed to marshal event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
