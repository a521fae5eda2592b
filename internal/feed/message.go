package feed

import (
	"context"

	"github.com/mcoot/matchsync/internal/model"
)

// MessageType names what a stream message carries
type MessageType string

const (
	// MessageSnapshot replaces everything the receiver holds for the match
	MessageSnapshot MessageType = "snapshot"
	// MessageChange carries one committed row change
	MessageChange MessageType = "change"
)

// Message is the envelope written to SSE and WebSocket streams
type Message struct {
	Type     MessageType        `json:"type"`
	Event    *model.ChangeEvent `json:"event,omitempty"`
	Snapshot *model.Snapshot    `json:"snapshot,omitempty"`
}

// SnapshotLoader reads the full authoritative state of the streamed match
type SnapshotLoader func(ctx context.Context) (*model.Snapshot, error)

// nextMessage turns the next thing a stream must send into a message.
// A lagging subscription gets a fresh snapshot instead of the event,
// since events it missed cannot be replayed.
func nextMessage(ctx context.Context, sub *Subscription, event model.ChangeEvent, load SnapshotLoader) (Message, error) {
	if sub.TakeLagged() {
		snapshot, err := load(ctx)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: MessageSnapshot, Snapshot: snapshot}, nil
	}
	return Message{Type: MessageChange, Event: &event}, nil
}
