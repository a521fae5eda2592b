package feed

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	wsWriteWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	wsPongWait = 60 * time.Second

	// Send pings at this period; must be less than wsPongWait
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS streams the subscription over a WebSocket as JSON messages, in the
// same shape as ServeSSE. Messages from the client are read only to notice
// disconnects. The caller owns sub and must close it.
func ServeWS(w http.ResponseWriter, r *http.Request, sub *Subscription, load SnapshotLoader, logger *slog.Logger) {
	snapshot, err := load(r.Context())
	if err != nil {
		logger.Warn("websocket snapshot failed", slog.Any("error", err))
		http.Error(w, "could not load match", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(conn, cancel)

	if err := writeWS(conn, Message{Type: MessageSnapshot, Snapshot: snapshot}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(wsWriteWait))
				return
			}
			msg, err := nextMessage(ctx, sub, event, load)
			if err != nil {
				logger.Warn("websocket resync failed", slog.Any("error", err))
				return
			}
			if err := writeWS(conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func writeWS(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
