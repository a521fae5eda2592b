package factory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/matchsync/internal/feed"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/replica"
	"github.com/mcoot/matchsync/internal/services/match"
	"github.com/mcoot/matchsync/internal/testutil"
)

// stubImporter always returns the same team
type stubImporter struct {
	team *model.ImportedTeam
}

func (s *stubImporter) ImportTeam(ctx context.Context, teamRef string) (*model.ImportedTeam, error) {
	return s.team, nil
}

// seatPauser pauses the clock as one participant
type seatPauser struct {
	app    *TestApp
	caller model.ParticipantID
}

func (p seatPauser) PauseTimer(ctx context.Context, matchID model.MatchID) (*model.Match, error) {
	return p.app.TimerController.Pause(ctx, matchID, p.caller)
}

// follow keeps r in step with the feed, reloading after a lag
func follow(sub *feed.Subscription, r *replica.Replica, load func() *model.Snapshot) {
	for ev := range sub.Events() {
		if sub.TakeLagged() {
			r.LoadSnapshot(load())
			continue
		}
		_, _ = r.Apply(ev)
	}
}

type IntegrationSuite struct {
	suite.Suite
	app   *TestApp
	ctx   context.Context
	alice model.ParticipantID
	bob   model.ParticipantID
	carol model.ParticipantID
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp(WithImporter(&stubImporter{team: &model.ImportedTeam{
		Name: "Gotham Knights",
		Units: []model.UnitInput{
			{Collection: "bm", Number: "001", Name: "Batman", Points: 100},
			{Collection: "bm", Number: "002", Name: "Robin", Points: 50},
		},
	}}))
	s.ctx = context.Background()
	s.alice = s.guest("Alice")
	s.bob = s.guest("Bob")
	s.carol = s.guest("Carol")
}

func (s *IntegrationSuite) TearDownTest() {
	s.Require().NoError(s.app.Close())
}

func (s *IntegrationSuite) guest(name string) model.ParticipantID {
	session, err := s.app.AuthService.CreateGuest(s.ctx, name)
	s.Require().NoError(err)
	return session.ParticipantID
}

func (s *IntegrationSuite) snapshot(id model.MatchID) *model.Snapshot {
	snap, err := s.app.MatchController.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	return snap
}

// watch subscribes viewer and returns a replica following the match
func (s *IntegrationSuite) watch(id model.MatchID, viewer model.ParticipantID) *replica.Replica {
	sub := s.app.Hubs.Subscribe(id, viewer)
	s.T().Cleanup(sub.Close)
	r := replica.New(id)
	r.LoadSnapshot(s.snapshot(id))
	go follow(sub, r, func() *model.Snapshot { return s.snapshot(id) })
	return r
}

// Test: a full match from creation to time expiry, observed by a spectator
func (s *IntegrationSuite) TestCompleteMatchFlow() {
	s.app.MockRandom.QueueID("m-1")
	m, err := s.app.MatchController.CreateMatch(s.ctx, s.alice, match.CreateRequest{Name: "League night", Public: true})
	s.Require().NoError(err)

	_, err = s.app.MatchController.Spectate(s.ctx, m.ID, s.carol)
	s.Require().NoError(err)
	view := s.watch(m.ID, s.carol)

	_, err = s.app.MatchController.ClaimSlot(s.ctx, m.ID, model.SlotOne, s.alice, "", "")
	s.Require().NoError(err)
	_, err = s.app.MatchController.ClaimSlot(s.ctx, m.ID, model.SlotTwo, s.bob, "", "")
	s.Require().NoError(err)

	// Rosters: Alice imports, Bob builds by hand
	imported, err := s.app.RosterController.ImportTeam(s.ctx, m.ID, s.alice, model.SlotOne, "gotham")
	s.Require().NoError(err)
	s.Len(imported.Units, 2)
	joker, err := s.app.RosterController.AddUnit(s.ctx, m.ID, s.bob, model.SlotTwo, model.UnitInput{Name: "Joker", Points: 80})
	s.Require().NoError(err)
	bike, err := s.app.RosterController.AddUnit(s.ctx, m.ID, s.bob, model.SlotTwo, model.UnitInput{Name: "Jokermobile", Points: 30})
	s.Require().NoError(err)
	_, err = s.app.RosterController.Attach(s.ctx, m.ID, s.bob, bike.ID, joker.ID, model.AttachmentEquipment)
	s.Require().NoError(err)

	// Play
	_, err = s.app.TimerController.Start(s.ctx, m.ID, s.alice)
	s.Require().NoError(err)
	_, err = s.app.RosterController.SetKO(s.ctx, m.ID, s.alice, joker.ID, true)
	s.Require().Error(err, "alice cannot touch bob's units")
	_, err = s.app.RosterController.SetKO(s.ctx, m.ID, s.bob, joker.ID, true)
	s.Require().NoError(err)
	_, err = s.app.RosterController.SetKO(s.ctx, m.ID, s.alice, imported.Units[1].ID, true)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		v := view.View(s.carol, s.app.MockClock.Now())
		return v.Match != nil && v.Match.Status == model.MatchStatusActive &&
			v.Slots[0].VictoryPoints == 80 && v.Slots[1].VictoryPoints == 50 &&
			v.Slots[0].TotalPoints == 150 && v.Slots[1].TotalPoints == 80 &&
			len(v.Slots[1].Units) == 2
	}, time.Second, 10*time.Millisecond)
	s.Equal(model.RoleSpectator, view.View(s.carol, s.app.MockClock.Now()).Role)

	// Reviving the Joker drops its equipment and returns the points
	result, err := s.app.RosterController.SetKO(s.ctx, m.ID, s.bob, joker.ID, false)
	s.Require().NoError(err)
	s.Len(result.Detached, 1)
	s.Eventually(func() bool {
		v := view.View(s.carol, s.app.MockClock.Now())
		return v.Slots[0].VictoryPoints == 0 && v.Slots[1].TotalPoints == 110
	}, time.Second, 10*time.Millisecond)

	// Time runs out. Both players notice; the clock is paused once.
	s.app.MockClock.Advance(time.Duration(model.DefaultTimerSeconds) * time.Second)
	s.Eventually(func() bool {
		timer, ok := view.Timer()
		return ok && timer.State == model.TimerRunning
	}, time.Second, 10*time.Millisecond)
	aliceWatch := replica.NewTimerWatch(view, seatPauser{s.app, s.alice}, testutil.NopLogger())
	bobWatch := replica.NewTimerWatch(view, seatPauser{s.app, s.bob}, testutil.NopLogger())

	tick, err := aliceWatch.Tick(s.ctx, s.app.MockClock.Now())
	s.Require().NoError(err)
	s.True(tick.Expired)
	_, err = bobWatch.Tick(s.ctx, s.app.MockClock.Now())
	s.Require().NoError(err)

	stored, err := s.app.MatchController.GetMatch(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(model.TimerPaused, stored.Timer.State)
	s.Equal(0, stored.Timer.RemainingSecs)

	// The ledgers never drifted
	report, err := s.app.MatchController.Repair(s.ctx, m.ID, s.alice)
	s.Require().NoError(err)
	s.Empty(report.Corrections)

	_, err = s.app.MatchController.SetStatus(s.ctx, m.ID, s.alice, model.MatchStatusFinished)
	s.Require().NoError(err)
	s.Eventually(func() bool {
		v := view.View(s.carol, s.app.MockClock.Now())
		return v.Match.Status == model.MatchStatusFinished
	}, time.Second, 10*time.Millisecond)
}

// Test: a KO scored against an empty slot is credited when someone sits down
func (s *IntegrationSuite) TestDeferredTransferOnClaim() {
	s.app.MockRandom.QueueID("m-1")
	m, err := s.app.MatchController.CreateMatch(s.ctx, s.alice, match.CreateRequest{Name: "Solo practice", Public: true})
	s.Require().NoError(err)
	_, err = s.app.MatchController.ClaimSlot(s.ctx, m.ID, model.SlotOne, s.alice, "", "")
	s.Require().NoError(err)

	unit, err := s.app.RosterController.AddUnit(s.ctx, m.ID, s.alice, model.SlotOne, model.UnitInput{Name: "Batman", Points: 100})
	s.Require().NoError(err)
	_, err = s.app.RosterController.SetKO(s.ctx, m.ID, s.alice, unit.ID, true)
	s.Require().NoError(err)

	player, err := s.app.MatchController.ClaimSlot(s.ctx, m.ID, model.SlotTwo, s.bob, "", "")
	s.Require().NoError(err)
	s.Equal(100, player.VictoryPoints)
}

// Test: leaving under the freeze policy keeps the roster for the next player
func (s *IntegrationSuite) TestFrozenSlotHandOver() {
	s.app.MockRandom.QueueID("m-1")
	m, err := s.app.MatchController.CreateMatch(s.ctx, s.alice, match.CreateRequest{Name: "Relay", Public: true})
	s.Require().NoError(err)
	_, err = s.app.MatchController.ClaimSlot(s.ctx, m.ID, model.SlotTwo, s.bob, "", "")
	s.Require().NoError(err)
	_, err = s.app.RosterController.AddUnit(s.ctx, m.ID, s.bob, model.SlotTwo, model.UnitInput{Name: "Joker", Points: 80})
	s.Require().NoError(err)

	s.Require().NoError(s.app.MatchController.LeaveSlot(s.ctx, m.ID, s.bob))
	_, err = s.app.RosterController.AddUnit(s.ctx, m.ID, s.bob, model.SlotTwo, model.UnitInput{Name: "Harley", Points: 40})
	s.ErrorIs(err, model.ErrNotSlotOwner)

	player, err := s.app.MatchController.ClaimSlot(s.ctx, m.ID, model.SlotTwo, s.carol, "", "")
	s.Require().NoError(err)
	s.Equal(80, player.TotalPoints)
	units, err := s.app.RosterController.ListUnits(s.ctx, m.ID, model.SlotTwo)
	s.Require().NoError(err)
	s.Len(units, 1)
}

// Test: deleting a match reaches its watchers as a delete
func (s *IntegrationSuite) TestDeleteReachesWatchers() {
	s.app.MockRandom.QueueID("m-1")
	m, err := s.app.MatchController.CreateMatch(s.ctx, s.alice, match.CreateRequest{Name: "Short lived", Public: true})
	s.Require().NoError(err)
	view := s.watch(m.ID, s.carol)

	s.Require().NoError(s.app.MatchController.DeleteMatch(s.ctx, m.ID, s.alice))
	s.Eventually(view.Deleted, time.Second, 10*time.Millisecond)
}

// Test: two server nodes sharing Redis see each other's writes
func TestRedisNodesShareFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewRedisTestApp(client, "node-a")
	nodeB := NewRedisTestApp(client, "node-b")
	for _, node := range []*TestApp{nodeA, nodeB} {
		go func() { _ = node.Bus.Run(ctx) }()
		select {
		case <-node.Bus.Ready():
		case <-time.After(time.Second):
			t.Fatal("relay did not subscribe")
		}
	}
	t.Cleanup(func() {
		_ = nodeA.Close()
		_ = nodeB.Close()
	})

	require.NoError(t, nodeA.Storage.SaveParticipant(ctx, &model.Participant{ID: "alice", DisplayName: "Alice"}))
	require.NoError(t, nodeA.Storage.SaveParticipant(ctx, &model.Participant{ID: "bob", DisplayName: "Bob"}))
	nodeA.MockRandom.QueueID("m-1")
	m, err := nodeA.MatchController.CreateMatch(ctx, "alice", match.CreateRequest{Name: "Cross node", Public: true})
	require.NoError(t, err)

	// Bob is connected to node B
	sub := nodeB.Hubs.Subscribe(m.ID, "bob")
	defer sub.Close()
	view := replica.New(m.ID)
	load := func() *model.Snapshot {
		snap, err := nodeB.MatchController.Snapshot(ctx, m.ID)
		require.NoError(t, err)
		return snap
	}
	view.LoadSnapshot(load())
	go follow(sub, view, load)

	// Alice's writes go through node A
	_, err = nodeA.MatchController.ClaimSlot(ctx, m.ID, model.SlotOne, "alice", "", "")
	require.NoError(t, err)
	_, err = nodeA.MatchController.ClaimSlot(ctx, m.ID, model.SlotTwo, "bob", "", "")
	require.NoError(t, err)
	nodeA.MockRandom.QueueID("u-1")
	unit, err := nodeA.RosterController.AddUnit(ctx, m.ID, "alice", model.SlotOne, model.UnitInput{Name: "Batman", Points: 100})
	require.NoError(t, err)
	_, err = nodeA.RosterController.SetKO(ctx, m.ID, "alice", unit.ID, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v := view.View("bob", nodeB.MockClock.Now())
		return v.Role == model.RolePlayer && v.Slots[1].VictoryPoints == 100 &&
			len(v.Slots[0].Units) == 1 && v.Slots[0].Units[0].IsKO
	}, 2*time.Second, 20*time.Millisecond)
}
