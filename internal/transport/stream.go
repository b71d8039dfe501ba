package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventStream writes Server-Sent Events. It is owned by one handler
// goroutine.
type EventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// OpenStream sends the event-stream headers and an opening comment.
func OpenStream(w http.ResponseWriter) (*EventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: streaming unsupported by %T", w)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(": stream started\n\n")); err != nil {
		return nil, err
	}
	flusher.Flush()
	return &EventStream{w: w, flusher: flusher}, nil
}

// Send writes one named event with data encoded as JSON.
func (s *EventStream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Stream serves an event stream, answering with 500 when the writer
// cannot stream.
func (h *BaseHandler) Stream(w http.ResponseWriter, r *http.Request) (*EventStream, bool) {
	es, err := OpenStream(w)
	if err != nil {
		h.Logger.Error("failed to open event stream", "path", r.URL.Path, "error", err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	return es, true
}
