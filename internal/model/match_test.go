package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerEffective(t *testing.T) {
	checkpoint := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	running := Timer{State: TimerRunning, RemainingSecs: 3000, CheckpointAt: &checkpoint, DurationSeconds: 3000}

	tests := []struct {
		name  string
		timer Timer
		now   time.Time
		want  int
	}{
		{name: "stopped", timer: NewTimer(0), now: checkpoint, want: DefaultTimerSeconds},
		{name: "paused", timer: Timer{State: TimerPaused, RemainingSecs: 1234}, now: checkpoint.Add(time.Hour), want: 1234},
		{name: "running at checkpoint", timer: running, now: checkpoint, want: 3000},
		{name: "running ten seconds", timer: running, now: checkpoint.Add(10 * time.Second), want: 2990},
		{name: "partial seconds truncate", timer: running, now: checkpoint.Add(10*time.Second + 900*time.Millisecond), want: 2990},
		{name: "running past zero", timer: running, now: checkpoint.Add(2 * time.Hour), want: 0},
		{name: "checkpoint in the future", timer: running, now: checkpoint.Add(-5 * time.Second), want: 3000},
		{name: "running without checkpoint", timer: Timer{State: TimerRunning, RemainingSecs: 50}, now: checkpoint, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.timer.Effective(tt.now))
		})
	}
}

func TestTimerExhausted(t *testing.T) {
	checkpoint := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	timer := Timer{State: TimerRunning, RemainingSecs: 5, CheckpointAt: &checkpoint}

	assert.False(t, timer.Exhausted(checkpoint.Add(4*time.Second)))
	assert.True(t, timer.Exhausted(checkpoint.Add(5*time.Second)))
}

func TestNewTimerDefaultsDuration(t *testing.T) {
	timer := NewTimer(-1)
	assert.Equal(t, TimerStopped, timer.State)
	assert.Equal(t, DefaultTimerSeconds, timer.RemainingSecs)
	assert.Nil(t, timer.CheckpointAt)
}

func TestStoredMatchKeepsSecretHash(t *testing.T) {
	m := &Match{ID: "m-1", Name: "Private", SecretHash: "$2a$hash"}

	data, err := MarshalStored(m)
	require.NoError(t, err)
	loaded, err := UnmarshalStored(data)
	require.NoError(t, err)
	assert.Equal(t, "$2a$hash", loaded.SecretHash)

	public, err := json.Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(public), "$2a$hash")
}

func TestErrorKinds(t *testing.T) {
	assert.ErrorIs(t, ErrTargetAttached, ErrInvalidTarget)
	assert.ErrorIs(t, ErrSlotTaken, ErrConflict)
	assert.ErrorIs(t, ErrNotSlotOwner, ErrUnauthorized)
	assert.ErrorIs(t, ErrMatchNotFound, ErrNotFound)

	cause := errors.New("connection refused")
	err := Transient(cause)
	assert.ErrorIs(t, err, ErrTransientIO)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, Transient(err))
	assert.NoError(t, Transient(nil))
}
