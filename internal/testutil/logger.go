package testutil

import (
	"log/slog"
	"strings"
	"testing"
)

// NopLogger returns a logger that discards all output
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// TestLogger routes log lines through t.Log, so they only show for failing
// or verbose runs and stay attached to the right subtest.
func TestLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
