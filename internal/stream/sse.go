// ABOUTME: Writes a publisher's events to an HTTP response as Server-Sent Events
// ABOUTME: Each event is a JSON data line; the stream ends with a named complete event

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/2389/voyage-gateway/internal/event"
)

// SetSSEHeaders prepares w for an event stream.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// formatSSEEvent formats one SSE frame. An empty name produces an unnamed
// (message) event.
func formatSSEEvent(name string, data []byte) string {
	if name == "" {
		return fmt.Sprintf("data: %s\n\n", data)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)
}

// WriteSSE drains p onto w until the turn ends. If the client goes away
// (ctx done) or a write fails, p is aborted with ErrBroken; work the turn
// started keeps running and lands in the session instead.
func WriteSSE(ctx context.Context, w io.Writer, p *Publisher) error {
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-ctx.Done():
			p.Abort(ErrBroken)
			return ctx.Err()

		case e, ok := <-p.Events():
			if !ok {
				return p.Err()
			}
			if err := writeEvent(w, e); err != nil {
				p.Abort(ErrBroken)
				return fmt.Errorf("writing event: %w", err)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w io.Writer, e event.Event) error {
	name := ""
	var data []byte
	switch e.Kind {
	case event.KindComplete:
		name = "complete"
		data = []byte("{}")
	case event.KindError:
		name = "error"
		fallthrough
	default:
		encoded, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding %s event: %w", e.Kind, err)
		}
		data = encoded
	}
	_, err := io.WriteString(w, formatSSEEvent(name, data))
	return err
}
