package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Time between keepalive comments on idle streams
const ssePingPeriod = 30 * time.Second

// ServeSSE streams the subscription as Server-Sent Events. The stream opens
// with a snapshot so the receiver never depends on events it missed before
// connecting. The caller owns sub and must close it.
func ServeSSE(w http.ResponseWriter, r *http.Request, sub *Subscription, load SnapshotLoader, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	// Streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	snapshot, err := load(ctx)
	if err != nil {
		logger.Warn("sse snapshot failed", slog.Any("error", err))
		http.Error(w, "could not load match", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	if err := writeSSE(w, Message{Type: MessageSnapshot, Snapshot: snapshot}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(ssePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			msg, err := nextMessage(ctx, sub, event, load)
			if err != nil {
				logger.Warn("sse resync failed", slog.Any("error", err))
				return
			}
			if err := writeSSE(w, msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(formatSSEMessage(string(msg.Type), string(data)))
	return err
}

// formatSSEMessage formats an SSE message with event name and data.
// Each line of data gets its own "data: " prefix.
func formatSSEMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: " + eventName + "\n")
	for _, line := range splitLines(data) {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// splitLines splits on \n, dropping \r and a trailing empty line
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
