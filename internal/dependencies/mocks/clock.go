package mocks

import (
	"sync"
	"time"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
)

// MockClock is a mock implementation of Clock for testing.
// It is safe to read from several goroutines while a test advances it.
type MockClock struct {
	mu          sync.RWMutex
	CurrentTime time.Time
}

var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a MockClock set to the given time
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{CurrentTime: t}
}

// Now returns the mocked current time
func (c *MockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CurrentTime
}

// Advance moves the clock forward by the given duration
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime = c.CurrentTime.Add(d)
}

// Set sets the clock to the given time
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime = t
}
