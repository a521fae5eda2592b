package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/matchsync/internal/feed"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/replica"
)

// Largest SSE line accepted; snapshots of big rosters arrive on one line
const maxSSELine = 4 << 20

func newWatchCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "watch <match>",
		Short: "Follow a match live",
		Long: `Connect to the match's change stream and keep a local copy of the match
up to date. The view is printed whenever it changes and the clock counts down
locally. When you are a player or the host and time runs out, the clock is
paused for everyone.

Watching a match you take no part in registers you as a spectator.
Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchMatch(ctx, cmd.OutOrStdout(), model.MatchID(args[0]), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stream messages as JSON lines")

	return cmd
}

func watchMatch(ctx context.Context, w io.Writer, matchID model.MatchID, jsonOutput bool) error {
	var me model.Participant
	if err := client.DoContext(ctx, http.MethodGet, "/api/v1/participants/me", nil, &me); err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	body, err := client.Stream(ctx, matchPath(matchID, "/events"))
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	messages := make(chan feed.Message)
	streamErr := make(chan error, 1)
	go func() {
		defer close(messages)
		streamErr <- readSSE(body, func(event, data string) error {
			var msg feed.Message
			if err := json.Unmarshal([]byte(data), &msg); err != nil {
				logger.Warn("undecodable stream message", slog.String("event", event), slog.Any("error", err))
				return nil
			}
			select {
			case messages <- msg:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	r := replica.New(matchID)
	watch := replica.NewTimerWatch(r, client, logger)
	out := NewOutput(cfg.Output, w)
	lines := json.NewEncoder(w)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	lastShown := -1

	if !jsonOutput {
		fmt.Fprintf(w, "Connected to match %s\n", matchID)
	}

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				if err := <-streamErr; err != nil && ctx.Err() == nil {
					return fmt.Errorf("stream error: %w", err)
				}
				if !jsonOutput {
					fmt.Fprintln(w, "Disconnected")
				}
				return nil
			}
			if jsonOutput {
				_ = lines.Encode(msg)
			}
			changed, err := applyMessage(r, msg)
			if err != nil {
				logger.Warn("stream message not applied", slog.Any("error", err))
				continue
			}
			if changed && !jsonOutput {
				out.Print(r.View(me.ID, time.Now()))
			}
			if r.Deleted() {
				if !jsonOutput {
					fmt.Fprintln(w, "Match deleted")
				}
				return nil
			}

		case now := <-ticker.C:
			view := r.View(me.ID, now)
			remaining := view.RemainingSeconds
			if drivesTimer(view, me.ID) {
				tick, err := watch.Tick(ctx, now)
				if err != nil {
					logger.Warn("pausing expired timer failed, retrying", slog.Any("error", err))
				}
				remaining = tick.RemainingSeconds
				if tick.Expired && !jsonOutput {
					fmt.Fprintln(w, "Time is up")
				}
			}
			if remaining != lastShown && view.Match != nil && view.Match.Timer.State == model.TimerRunning && !jsonOutput {
				fmt.Fprintf(w, "\rClock: %s ", formatClock(remaining))
			}
			lastShown = remaining

		case <-ctx.Done():
			if !jsonOutput {
				fmt.Fprintln(w, "\nDisconnected")
			}
			return nil
		}
	}
}

func applyMessage(r *replica.Replica, msg feed.Message) (bool, error) {
	switch msg.Type {
	case feed.MessageSnapshot:
		if msg.Snapshot == nil {
			return false, fmt.Errorf("snapshot message without snapshot")
		}
		r.LoadSnapshot(msg.Snapshot)
		return true, nil
	case feed.MessageChange:
		if msg.Event == nil {
			return false, fmt.Errorf("change message without event")
		}
		return r.Apply(*msg.Event)
	}
	return false, fmt.Errorf("unknown message type %q", msg.Type)
}

// drivesTimer reports whether viewer may pause the clock: players and the host
func drivesTimer(v replica.View, viewer model.ParticipantID) bool {
	if v.Match == nil {
		return false
	}
	return v.Role == model.RolePlayer || v.Match.HostID == viewer
}

// readSSE calls fn for every complete event on the stream
func readSSE(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxSSELine)
	var currentEvent string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case line == "":
			// End of event
			if currentEvent != "" {
				if err := fn(currentEvent, strings.Join(dataLines, "\n")); err != nil {
					return err
				}
			}
			currentEvent = ""
			dataLines = nil
		}
	}
	return scanner.Err()
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
