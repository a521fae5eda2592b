package e2e_test

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/config"
	"github.com/mcoot/matchsync/internal/factory"
	"github.com/mcoot/matchsync/internal/feed"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/roster"
	"github.com/mcoot/matchsync/internal/services/scoring"
	"github.com/mcoot/matchsync/internal/services/timer"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "matchctl-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/matchctl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

// as returns a runner for another identity sharing the same binary
func (r *cliRunner) as(t *testing.T) *cliRunner {
	return &cliRunner{
		binaryPath: r.binaryPath,
		serverURL:  r.serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

func (r *cliRunner) args(args []string) []string {
	return append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)
}

func (r *cliRunner) run(args ...string) (string, error) {
	cmd := exec.Command(r.binaryPath, r.args(args)...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// runJSON runs a command that must succeed and decodes its output
func runJSON[T any](t *testing.T, r *cliRunner, args ...string) T {
	t.Helper()
	output, err := r.run(args...)
	require.NoError(t, err, "output: %s", output)
	var v T
	require.NoError(t, json.Unmarshal([]byte(output), &v), "output: %s", output)
	return v
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// startTestServer runs the production wiring over memory storage
func startTestServer(t *testing.T) string {
	t.Helper()

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	cfg, err := config.FromMap(map[string]string{config.Prefix + "ADDR": addr})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	app, err := factory.New(cfg, logger)
	require.NoError(t, err)

	server := &http.Server{
		Addr:    addr,
		Handler: app.Router(),
	}

	// Start server
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		_ = app.Close()
	})

	// Wait for server to be ready
	serverURL := "http://" + addr
	waitForServer(t, serverURL+"/api/v1/health")
	return serverURL
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

type messageResponse struct {
	Message string `json:"message"`
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))

	resp := runJSON[response.Health](t, cli, "health")
	assert.Equal(t, "ok", resp.Status)
}

func TestCLI_IdentityCommands(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))

	auth := runJSON[response.AuthResponse](t, cli, "guest", "--name", "Alice")
	assert.Equal(t, "Alice", auth.Participant.DisplayName)
	assert.NotEmpty(t, auth.SessionToken)

	// The token was saved to the token file
	me := runJSON[model.Participant](t, cli, "me")
	assert.Equal(t, auth.Participant.ID, me.ID)

	msg := runJSON[messageResponse](t, cli, "logout")
	assert.Equal(t, "Logged out", msg.Message)

	output, err := cli.run("me")
	assert.Error(t, err)
	assert.Contains(t, output, "UNAUTHORIZED")
}

func TestCLI_FullMatchFlow(t *testing.T) {
	alice := newCLIRunner(t, startTestServer(t))
	bob := alice.as(t)
	carol := alice.as(t)

	runJSON[response.AuthResponse](t, alice, "guest", "--name", "Alice")
	runJSON[response.AuthResponse](t, bob, "guest", "--name", "Bob")
	runJSON[response.AuthResponse](t, carol, "guest", "--name", "Carol")

	m := runJSON[response.Match](t, alice, "match", "create", "Cup final")
	matchID := string(m.ID)
	assert.True(t, m.IsPublic)
	assert.Equal(t, model.DefaultTimerSeconds, m.RemainingSeconds)

	p := runJSON[model.MatchPlayer](t, alice, "slot", "claim", matchID, "1", "--name", "The Bat")
	assert.Equal(t, "The Bat", p.PlayerName)
	runJSON[model.MatchPlayer](t, bob, "slot", "claim", matchID, "2")

	output, err := carol.run("slot", "claim", matchID, "2")
	assert.Error(t, err)
	assert.Contains(t, output, "SLOT_TAKEN")

	// Rosters
	runJSON[model.Unit](t, alice, "unit", "add", matchID, "1", "--name", "Batman", "--points", "100")
	joker := runJSON[model.Unit](t, bob, "unit", "add", matchID, "2", "--name", "Joker", "--points", "80")
	car := runJSON[model.Unit](t, bob, "unit", "add", matchID, "2", "--name", "Jokermobile", "--points", "30")
	attached := runJSON[model.Unit](t, bob, "unit", "attach", matchID, string(car.ID), string(joker.ID), "--kind", model.AttachmentEquipment)
	require.NotNil(t, attached.AttachedTo)

	units := runJSON[response.Units](t, carol, "unit", "list", matchID, "2")
	assert.Len(t, units.Units, 2)

	// Carol spectates and cannot change anything
	runJSON[messageResponse](t, carol, "spectate", matchID)
	output, err = carol.run("unit", "ko", matchID, string(joker.ID))
	assert.Error(t, err)
	assert.Contains(t, output, "SPECTATORS_READ_ONLY")

	ko := runJSON[roster.KOResult](t, bob, "unit", "ko", matchID, string(joker.ID))
	assert.True(t, ko.Changed)

	state := runJSON[response.MatchState](t, alice, "match", "get", matchID)
	assert.Equal(t, model.MatchStatusActive, state.Match.Status)
	require.Len(t, state.Players, 2)
	assert.Equal(t, 80, state.Players[0].VictoryPoints)
	assert.Equal(t, model.RolePlayer, state.Role)

	revive := runJSON[roster.KOResult](t, bob, "unit", "revive", matchID, string(joker.ID))
	assert.Len(t, revive.Detached, 1)

	// Clock
	started := runJSON[response.Match](t, bob, "timer", "start", matchID)
	assert.Equal(t, model.TimerRunning, started.Timer.State)
	status := runJSON[timer.Status](t, carol, "timer", "show", matchID)
	assert.Equal(t, model.TimerRunning, status.Timer.State)
	paused := runJSON[response.Match](t, alice, "timer", "pause", matchID)
	assert.Equal(t, model.TimerPaused, paused.Timer.State)

	report := runJSON[scoring.RepairReport](t, alice, "match", "repair", matchID)
	assert.Empty(t, report.Corrections)

	finished := runJSON[response.Match](t, alice, "match", "status", matchID, "finished")
	assert.Equal(t, model.MatchStatusFinished, finished.Status)

	output, err = bob.run("match", "delete", matchID)
	assert.Error(t, err)
	assert.Contains(t, output, "NOT_HOST")
	runJSON[messageResponse](t, alice, "match", "delete", matchID)
}

func TestCLI_InvalidSlotArgument(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))
	runJSON[response.AuthResponse](t, cli, "guest", "--name", "Alice")

	output, err := cli.run("slot", "claim", "m-1", "3")
	assert.Error(t, err)
	assert.Contains(t, output, "slot must be 1 or 2")
}

func TestCLI_WatchStreamsChanges(t *testing.T) {
	alice := newCLIRunner(t, startTestServer(t))
	carol := alice.as(t)

	runJSON[response.AuthResponse](t, alice, "guest", "--name", "Alice")
	runJSON[response.AuthResponse](t, carol, "guest", "--name", "Carol")
	m := runJSON[response.Match](t, alice, "match", "create", "Watched")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	watch := exec.CommandContext(ctx, carol.binaryPath, carol.args([]string{"watch", string(m.ID), "--json"})...)
	stdout, err := watch.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, watch.Start())
	defer func() {
		cancel()
		_ = watch.Wait()
	}()

	lines := bufio.NewScanner(stdout)
	lines.Buffer(make([]byte, 64*1024), 1<<20)
	next := func() feed.Message {
		t.Helper()
		for lines.Scan() {
			line := strings.TrimSpace(lines.Text())
			if line == "" {
				continue
			}
			var msg feed.Message
			require.NoError(t, json.Unmarshal([]byte(line), &msg), "line: %s", line)
			return msg
		}
		t.Fatalf("watch ended: %v", lines.Err())
		return feed.Message{}
	}

	first := next()
	require.Equal(t, feed.MessageSnapshot, first.Type)
	assert.Equal(t, m.ID, first.Snapshot.Match.ID)

	runJSON[model.MatchPlayer](t, alice, "slot", "claim", string(m.ID), "1")

	change := next()
	require.Equal(t, feed.MessageChange, change.Type)
	assert.Equal(t, model.EntityPlayer, change.Event.Entity)
}
