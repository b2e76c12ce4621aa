package stream

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// jobFilter is the query parameter that narrows a listener to one job.
const jobFilter = "job"

// ServeSSE streams events to one client until it disconnects or the hub
// removes it.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	if h.Active() >= MaxConcurrentConnections {
		http.Error(w, "Server at capacity, please try again later", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	messageChan := make(clientChan, ClientChannelBuffer)
	client := h.AddClient(messageChan, r.URL.Query().Get(jobFilter), r.RemoteAddr, r.UserAgent())
	if client == nil {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}
	defer h.RemoveClient(messageChan)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")
	w.Header().Del("Content-Encoding")

	ctx := r.Context()
	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	if _, err := io.WriteString(w, "data: {\"type\":\"connected\",\"msg\":\"SSE connection established\"}\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			if _, err := io.WriteString(w, formatSSEResponse(msg)); err != nil {
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			client.touch()
		}
	}
}

// StreamHandler serves SSE from the default hub.
func StreamHandler(w http.ResponseWriter, r *http.Request) {
	manager.ServeSSE(w, r)
}

func formatSSEResponse(msg Message) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", msg.Type, msg.Msg)
}
