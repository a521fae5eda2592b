package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/testutil"
)

func testEvent(t *testing.T, matchID model.MatchID, name string) model.ChangeEvent {
	t.Helper()
	ev, err := model.NewChangeEvent(matchID, model.EntityUnit, model.OpUpdate,
		&model.Unit{ID: model.UnitID(name), MatchID: matchID}, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return ev
}

func receive(t *testing.T, sub *Subscription) model.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
		return model.ChangeEvent{}
	}
}

func TestFormatSSEMessage(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "change",
			data:      `{"type":"change"}`,
			expected:  "event: change\ndata: {\"type\":\"change\"}\n\n",
		},
		{
			name:      "multi-line data",
			eventName: "snapshot",
			data:      "{\n  \"a\": 1\n}",
			expected:  "event: snapshot\ndata: {\ndata:   \"a\": 1\ndata: }\n\n",
		},
		{
			name:      "empty data",
			eventName: "ping",
			data:      "",
			expected:  "event: ping\ndata: \n\n",
		},
		{
			name:      "data with carriage returns",
			eventName: "test",
			data:      "line1\r\nline2",
			expected:  "event: test\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(formatSSEMessage(tt.eventName, tt.data)))
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single line", input: "hello", expected: []string{"hello"}},
		{name: "two lines", input: "line1\nline2", expected: []string{"line1", "line2"}},
		{name: "trailing newline", input: "line1\n", expected: []string{"line1"}},
		{name: "empty string", input: "", expected: []string{""}},
		{name: "crlf line endings", input: "line1\r\nline2\r\n", expected: []string{"line1", "line2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitLines(tt.input))
		})
	}
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewHub("m1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	sub := hub.Subscribe("p1")
	defer sub.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(testEvent(t, "m1", "u1"))

	ev := receive(t, sub)
	assert.Equal(t, model.MatchID("m1"), ev.MatchID)
	assert.Equal(t, model.EntityUnit, ev.Entity)
	assert.False(t, sub.TakeLagged())
}

func TestHub_BroadcastToMultipleSubscribers(t *testing.T) {
	hub := NewHub("m1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	subs := []*Subscription{hub.Subscribe("p1"), hub.Subscribe("p2"), hub.Subscribe("s1")}
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 3 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(testEvent(t, "m1", "u1"))
	hub.Broadcast(testEvent(t, "m1", "u2"))

	for _, sub := range subs {
		var first, second model.Unit
		require.NoError(t, receive(t, sub).DecodeRow(&first))
		require.NoError(t, receive(t, sub).DecodeRow(&second))
		assert.Equal(t, model.UnitID("u1"), first.ID)
		assert.Equal(t, model.UnitID("u2"), second.ID)
	}
}

func TestHub_CloseSubscription(t *testing.T) {
	hub := NewHub("m1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	sub := hub.Subscribe("p1")
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	sub.Close()
	sub.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestHub_SlowSubscriberIsMarkedLagged(t *testing.T) {
	hub := NewHub("m1", testutil.NopLogger())
	go hub.Run()
	defer hub.Close()

	slow := hub.Subscribe("p1")
	defer slow.Close()
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < subscriptionBufferSize*3; i++ {
		hub.Broadcast(testEvent(t, "m1", "u1"))
	}

	require.Eventually(t, func() bool { return slow.lagged.Load() }, time.Second, 5*time.Millisecond)
	assert.True(t, slow.TakeLagged())
	assert.False(t, slow.TakeLagged(), "lag flag resets once taken")
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub("m1", testutil.NopLogger())
	go hub.Run()

	sub := hub.Subscribe("p1")
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed with hub")
	}

	late := hub.Subscribe("p2")
	_, ok := <-late.Events()
	assert.False(t, ok, "subscribing to a closed hub yields a closed subscription")
	sub.Close()
}

func TestHubManager_PublishRoutesByMatch(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	subA := manager.Subscribe("mA", "p1")
	subB := manager.Subscribe("mB", "p2")
	defer subA.Close()
	defer subB.Close()

	require.NoError(t, manager.Publish(context.Background(), testEvent(t, "mB", "u1")))

	ev := receive(t, subB)
	assert.Equal(t, model.MatchID("mB"), ev.MatchID)

	select {
	case <-subA.Events():
		t.Fatal("event leaked to another match")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubManager_PublishWithoutSubscribers(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	require.NoError(t, manager.Publish(context.Background(), testEvent(t, "nobody", "u1")))
	assert.Nil(t, manager.GetHub("nobody"))
}

func TestHubManager_GetOrCreateHub(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	hub1 := manager.GetOrCreateHub("m1")
	require.NotNil(t, hub1)
	assert.Same(t, hub1, manager.GetOrCreateHub("m1"))
	assert.NotSame(t, hub1, manager.GetOrCreateHub("m2"))
}

func TestHubManager_RemoveHub(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	manager.GetOrCreateHub("m1")
	manager.RemoveHub("m1")
	assert.Nil(t, manager.GetHub("m1"))

	manager.RemoveHub("missing")
}

func TestHubManager_CleanupEmptyHubs(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()

	manager.GetOrCreateHub("empty")
	sub := manager.Subscribe("busy", "p1")
	defer sub.Close()
	busy := manager.GetHub("busy")
	require.Eventually(t, func() bool { return busy.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	manager.CleanupEmptyHubs()

	assert.Nil(t, manager.GetHub("empty"))
	assert.NotNil(t, manager.GetHub("busy"))
}

func TestHubManager_RunCleanupStopsWithContext(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.Close()
	manager.GetOrCreateHub("empty")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.RunCleanup(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return manager.GetHub("empty") == nil }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
