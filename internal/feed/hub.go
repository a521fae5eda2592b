package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/matchsync/internal/model"
)

// Buffer size for each subscriber's pending events
const subscriptionBufferSize = 256

// Subscription is one participant's view of a match's change feed.
// Close must be called when the subscriber goes away.
type Subscription struct {
	hub           *Hub
	participantID model.ParticipantID
	events        chan model.ChangeEvent
	connectedAt   time.Time
	lagged        atomic.Bool
	closeOnce     sync.Once
}

// Events delivers change events until the subscription or its hub is closed
func (s *Subscription) Events() <-chan model.ChangeEvent {
	return s.events
}

// TakeLagged reports whether events were dropped since the last call.
// A lagged subscriber must reload the full snapshot.
func (s *Subscription) TakeLagged() bool {
	return s.lagged.Swap(false)
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub fans change events for a single match out to its subscribers
type Hub struct {
	matchID     model.MatchID
	subscribers map[*Subscription]bool
	mu          sync.RWMutex
	logger      *slog.Logger

	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan model.ChangeEvent
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a new Hub for a match
func NewHub(matchID model.MatchID, logger *slog.Logger) *Hub {
	return &Hub{
		matchID:     matchID,
		subscribers: make(map[*Subscription]bool),
		logger:      logger.With(slog.String("match_id", string(matchID))),
		register:    make(chan *Subscription),
		unregister:  make(chan *Subscription),
		broadcast:   make(chan model.ChangeEvent, subscriptionBufferSize),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.logger.Debug("feed hub started")
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub] = true
			count := len(h.subscribers)
			h.mu.Unlock()
			h.logger.Info("feed subscriber registered",
				slog.String("participant_id", string(sub.participantID)),
				slog.Int("total_subscribers", count))

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.events)
				count := len(h.subscribers)
				h.mu.Unlock()
				h.logger.Info("feed subscriber unregistered",
					slog.String("participant_id", string(sub.participantID)),
					slog.Duration("connection_duration", time.Since(sub.connectedAt)),
					slog.Int("total_subscribers", count))
			} else {
				h.mu.Unlock()
			}

		case event := <-h.broadcast:
			h.mu.RLock()
			dropped := 0
			for sub := range h.subscribers {
				select {
				case sub.events <- event:
				default:
					dropped++
					sub.lagged.Store(true)
				}
			}
			total := len(h.subscribers)
			h.mu.RUnlock()
			if dropped > 0 {
				h.logger.Warn("feed event dropped for lagging subscribers",
					slog.String("entity", string(event.Entity)),
					slog.Int("dropped", dropped),
					slog.Int("total_subscribers", total))
			}

		case <-h.done:
			h.mu.Lock()
			count := len(h.subscribers)
			for sub := range h.subscribers {
				close(sub.events)
				delete(h.subscribers, sub)
			}
			h.mu.Unlock()
			h.logger.Debug("feed hub stopped", slog.Int("disconnected_subscribers", count))
			return
		}
	}
}

// Subscribe registers a new subscriber. The returned subscription's channel
// is already closed if the hub has shut down.
func (h *Hub) Subscribe(participantID model.ParticipantID) *Subscription {
	sub := &Subscription{
		hub:           h,
		participantID: participantID,
		events:        make(chan model.ChangeEvent, subscriptionBufferSize),
		connectedAt:   time.Now(),
	}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.events)
	}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Broadcast queues an event for every subscriber
func (h *Hub) Broadcast(event model.ChangeEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		h.logger.Warn("feed broadcast dropped - hub buffer full")
		h.markAllLagged()
	}
}

func (h *Hub) markAllLagged() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		sub.lagged.Store(true)
	}
}

// Close shuts down the hub and closes every subscription
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// SubscriberCount returns the number of connected subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// HubManager manages hubs for all matches and is the local publisher
// for committed writes.
type HubManager struct {
	hubs   map[model.MatchID]*Hub
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewHubManager creates a new HubManager
func NewHubManager(logger *slog.Logger) *HubManager {
	return &HubManager{
		hubs:   make(map[model.MatchID]*Hub),
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Publish delivers the event to the match's subscribers, if any
func (m *HubManager) Publish(ctx context.Context, event model.ChangeEvent) error {
	if hub := m.GetHub(event.MatchID); hub != nil {
		hub.Broadcast(event)
	}
	return nil
}

// Subscribe joins the match's feed, creating its hub on first use.
// The manager lock is held until the hub has accepted the subscriber so
// CleanupEmptyHubs cannot close the hub in between.
func (m *HubManager) Subscribe(matchID model.MatchID, participantID model.ParticipantID) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateHub(matchID).Subscribe(participantID)
}

// GetOrCreateHub returns the hub for a match, creating one if it doesn't exist
func (m *HubManager) GetOrCreateHub(matchID model.MatchID) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateHub(matchID)
}

func (m *HubManager) getOrCreateHub(matchID model.MatchID) *Hub {
	if hub, ok := m.hubs[matchID]; ok {
		return hub
	}

	hub := NewHub(matchID, m.logger)
	m.hubs[matchID] = hub
	go hub.Run()
	return hub
}

// GetHub returns the hub for a match, or nil if it doesn't exist
func (m *HubManager) GetHub(matchID model.MatchID) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[matchID]
}

// RemoveHub removes and closes a hub
func (m *HubManager) RemoveHub(matchID model.MatchID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[matchID]; ok {
		hub.Close()
		delete(m.hubs, matchID)
		m.logger.Info("feed hub removed", slog.String("match_id", string(matchID)))
	}
}

// CleanupEmptyHubs removes hubs with no subscribers
func (m *HubManager) CleanupEmptyHubs() {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, hub := range m.hubs {
		if hub.SubscriberCount() == 0 {
			hub.Close()
			delete(m.hubs, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("feed empty hubs cleaned up", slog.Int("removed", removed))
	}
}

// RunCleanup removes empty hubs every interval until ctx is done
func (m *HubManager) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CleanupEmptyHubs()
		}
	}
}

// Close shuts down every hub
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, id)
	}
}
