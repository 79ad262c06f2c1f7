package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reqflow/internal/events"
	"reqflow/internal/logging"
	"reqflow/internal/workflow"
)

// handleEvents streams broadcaster events for one channel as Server-Sent
// Events until the client disconnects or the broadcaster closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "event streaming is disabled", Kind: workflow.KindDependency})
		return
	}
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel == "" {
		channel = events.ChannelAll
	}
	if !events.ValidChannel(channel) {
		s.writeError(w, r, &queryError{param: "channel", err: fmt.Errorf("unknown channel %q", channel)})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported", Kind: workflow.KindInternal})
		return
	}

	sub, cancel := s.events.Subscribe(channel)
	defer cancel()
	if s.metrics != nil {
		s.metrics.SubscriberJoined()
		defer s.metrics.SubscriberLeft()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	logger := logging.WithContext(r.Context(), s.logger)
	logger.Debug("event stream opened", logging.String("channel", channel))
	defer func() { logStreamClosed(logger, sub) }()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				logger.Warn("event encode failed", logging.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Kind, data)
			flusher.Flush()
		}
	}
}

// logStreamClosed reports how many events the subscriber lost over the life
// of the stream, so it must run after the stream ends.
func logStreamClosed(logger *slog.Logger, sub *events.Subscription) {
	logger.Debug("event stream closed",
		logging.String("channel", sub.Channel()),
		logging.Uint64("dropped", sub.Dropped()),
	)
}
