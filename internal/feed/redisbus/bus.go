// Package redisbus relays change events between server processes that
// share one Redis, so a write on any node reaches subscribers on every node.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/matchsync/internal/model"
)

const channelPrefix = "matchsync:feed:"

// LocalPublisher delivers events to this process's subscribers
type LocalPublisher interface {
	Publish(ctx context.Context, event model.ChangeEvent) error
}

// Bus publishes events to Redis and relays events from other nodes locally
type Bus struct {
	client    *redis.Client
	local     LocalPublisher
	nodeID    string
	logger    *slog.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a bus. nodeID must be unique per process.
func New(client *redis.Client, local LocalPublisher, nodeID string, logger *slog.Logger) *Bus {
	return &Bus{
		client: client,
		local:  local,
		nodeID: nodeID,
		logger: logger.With(slog.String("component", "redisbus"), slog.String("node_id", nodeID)),
		ready:  make(chan struct{}),
	}
}

func channelFor(matchID model.MatchID) string {
	return channelPrefix + string(matchID)
}

// Publish delivers the event locally and then to the other nodes
func (b *Bus) Publish(ctx context.Context, event model.ChangeEvent) error {
	event.Origin = b.nodeID
	if err := b.local.Publish(ctx, event); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(event.MatchID), data).Err(); err != nil {
		return model.Transient(err)
	}
	return nil
}

// Ready is closed once the relay is subscribed
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Run relays events published by other nodes until ctx is done
func (b *Bus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to change feed: %w", err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("change feed relay started")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.relay(ctx, msg)
		}
	}
}

func (b *Bus) relay(ctx context.Context, msg *redis.Message) {
	var event model.ChangeEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		b.logger.Warn("discarding undecodable change event",
			slog.String("channel", msg.Channel),
			slog.Any("error", err))
		return
	}
	if event.Origin == b.nodeID {
		return
	}
	if event.MatchID == "" {
		event.MatchID = model.MatchID(strings.TrimPrefix(msg.Channel, channelPrefix))
	}
	if err := b.local.Publish(ctx, event); err != nil {
		b.logger.Warn("failed to relay change event", slog.Any("error", err))
	}
}
