package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"restaurant-orders/internal/logger"
)

// StreamHandler serves a hub topic as Server-Sent Events: GET ?topic=kitchen.<restaurant id>
type StreamHandler struct {
	hub       *Hub
	logger    *logger.Logger
	heartbeat time.Duration
}

func NewStreamHandler(hub *Hub, log *logger.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: log, heartbeat: 25 * time.Second}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if !ValidTopic(topic) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     "topic must be kitchen.<id>, dashboard.<id> or order.<id>",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.hub.Subscribe(topic)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", topic)
	flusher.Flush()

	requestID := logger.GenerateRequestID()
	h.logger.Debug("realtime_stream_opened", "Realtime stream opened", requestID, map[string]interface{}{"topic": topic})
	defer h.logger.Debug("realtime_stream_closed", "Realtime stream closed", requestID, map[string]interface{}{"topic": topic})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case payload, ok := <-sub.C:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
