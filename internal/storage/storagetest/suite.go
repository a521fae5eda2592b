// Package storagetest holds behaviour every storage backend must share.
// Backend packages embed Suite in their own suite and supply NewStorage.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/dependencies/mocks"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

// Suite runs the storage contract against the backend built by NewStorage
type Suite struct {
	suite.Suite
	NewStorage func(clk clock.Clock) storage.Storage

	Store storage.Storage
	Clock *mocks.MockClock
	Ctx   context.Context
}

// SetupTest builds a fresh backend for every test
func (s *Suite) SetupTest() {
	s.Clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.Ctx = context.Background()
	s.Store = s.NewStorage(s.Clock)
}

func (s *Suite) createMatch(id model.MatchID) *model.Match {
	m := &model.Match{
		ID:       id,
		Name:     "Friday skirmish",
		HostID:   "host-1",
		IsPublic: true,
		Status:   model.MatchStatusWaiting,
		Timer:    model.NewTimer(model.DefaultTimerSeconds),
	}
	s.Require().NoError(s.Store.CreateMatch(s.Ctx, m))
	return m
}

func (s *Suite) seatPlayer(matchID model.MatchID, slot model.Slot, who model.ParticipantID) *model.MatchPlayer {
	p, err := s.Store.SavePlayer(s.Ctx, &model.MatchPlayer{
		MatchID:       matchID,
		Slot:          slot,
		ParticipantID: who,
		PlayerName:    string(who),
	})
	s.Require().NoError(err)
	return p
}

func (s *Suite) addUnit(matchID model.MatchID, id model.UnitID, slot model.Slot, points int) *model.Unit {
	u, err := s.Store.SaveUnit(s.Ctx, &model.Unit{
		ID:         id,
		MatchID:    matchID,
		Slot:       slot,
		Collection: "btas",
		Number:     "001",
		Name:       "Unit " + string(id),
		Points:     points,
	})
	s.Require().NoError(err)
	return u
}

// Participant tests

func (s *Suite) TestSaveAndGetParticipant() {
	err := s.Store.SaveParticipant(s.Ctx, &model.Participant{ID: "p-1", DisplayName: "Alice", CreatedAt: s.Clock.Now()})
	s.Require().NoError(err)

	p, err := s.Store.GetParticipant(s.Ctx, "p-1")
	s.Require().NoError(err)
	s.Equal("Alice", p.DisplayName)
}

func (s *Suite) TestGetParticipantNotFound() {
	_, err := s.Store.GetParticipant(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrParticipantNotFound)
	s.ErrorIs(err, model.ErrNotFound)
}

// Match tests

func (s *Suite) TestCreateAndGetMatch() {
	s.createMatch("m-1")

	m, err := s.Store.GetMatch(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Equal("Friday skirmish", m.Name)
	s.Equal(model.MatchStatusWaiting, m.Status)
	s.Equal(model.TimerStopped, m.Timer.State)
	s.Equal(model.DefaultTimerSeconds, m.Timer.RemainingSecs)
	s.Nil(m.Timer.CheckpointAt)
	s.Equal(int64(1), m.Version)
}

func (s *Suite) TestCreateMatchKeepsSecretHash() {
	m := &model.Match{ID: "m-1", Name: "private", HostID: "host-1", SecretHash: "hash", Status: model.MatchStatusWaiting, Timer: model.NewTimer(0)}
	s.Require().NoError(s.Store.CreateMatch(s.Ctx, m))

	got, err := s.Store.GetMatch(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Equal("hash", got.SecretHash)
}

func (s *Suite) TestGetMatchNotFound() {
	_, err := s.Store.GetMatch(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestUpdateMatchTimerBumpsVersion() {
	s.createMatch("m-1")
	s.Clock.Advance(time.Minute)
	checkpoint := s.Clock.Now()

	m, err := s.Store.UpdateMatchTimer(s.Ctx, "m-1", model.Timer{
		State:           model.TimerRunning,
		RemainingSecs:   2990,
		CheckpointAt:    &checkpoint,
		DurationSeconds: model.DefaultTimerSeconds,
	})
	s.Require().NoError(err)
	s.Equal(int64(2), m.Version)
	s.Equal(model.TimerRunning, m.Timer.State)
	s.Require().NotNil(m.Timer.CheckpointAt)
	s.True(checkpoint.Equal(*m.Timer.CheckpointAt))

	got, err := s.Store.GetMatch(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Equal(2990, got.Timer.RemainingSecs)
	s.Equal("Friday skirmish", got.Name)
}

func (s *Suite) TestUpdateMatchTimerNotFound() {
	_, err := s.Store.UpdateMatchTimer(s.Ctx, "missing", model.NewTimer(0))
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestUpdateMatchStatus() {
	s.createMatch("m-1")

	m, err := s.Store.UpdateMatchStatus(s.Ctx, "m-1", model.MatchStatusActive)
	s.Require().NoError(err)
	s.Equal(model.MatchStatusActive, m.Status)
	s.Equal(int64(2), m.Version)
}

func (s *Suite) TestDeleteMatchCascades() {
	s.createMatch("m-1")
	s.createMatch("m-2")
	s.seatPlayer("m-1", model.SlotOne, "alice")
	s.addUnit("m-1", "u-1", model.SlotOne, 50)
	s.addUnit("m-2", "u-2", model.SlotOne, 50)
	_, err := s.Store.AddSpectator(s.Ctx, &model.Spectator{MatchID: "m-1", ParticipantID: "carol"})
	s.Require().NoError(err)

	s.Require().NoError(s.Store.DeleteMatch(s.Ctx, "m-1"))

	_, err = s.Store.GetMatch(s.Ctx, "m-1")
	s.ErrorIs(err, model.ErrMatchNotFound)
	_, err = s.Store.GetPlayer(s.Ctx, "m-1", model.SlotOne)
	s.ErrorIs(err, model.ErrSlotNotFound)
	units, err := s.Store.ListUnits(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Empty(units)
	spectators, err := s.Store.ListSpectators(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Empty(spectators)

	others, err := s.Store.ListUnits(s.Ctx, "m-2")
	s.Require().NoError(err)
	s.Len(others, 1)
}

func (s *Suite) TestDeleteMatchNotFound() {
	err := s.Store.DeleteMatch(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrMatchNotFound)
}

// Player tests

func (s *Suite) TestSavePlayerRequiresMatch() {
	_, err := s.Store.SavePlayer(s.Ctx, &model.MatchPlayer{MatchID: "missing", Slot: model.SlotOne, ParticipantID: "alice"})
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestSavePlayerUpsertBumpsVersion() {
	s.createMatch("m-1")
	first := s.seatPlayer("m-1", model.SlotOne, "alice")
	s.Equal(int64(1), first.Version)

	s.Clock.Advance(time.Second)
	second, err := s.Store.SavePlayer(s.Ctx, &model.MatchPlayer{
		MatchID:       "m-1",
		Slot:          model.SlotOne,
		ParticipantID: "",
		PlayerName:    "alice",
		VictoryPoints: 30,
	})
	s.Require().NoError(err)
	s.Equal(int64(2), second.Version)
	s.True(first.CreatedAt.Equal(second.CreatedAt))
	s.False(second.Seated())
	s.Equal(30, second.VictoryPoints)
}

func (s *Suite) TestClaimSlotCreatesRow() {
	s.createMatch("m-1")

	p, changed, err := s.Store.ClaimSlot(s.Ctx, "m-1", model.SlotOne, "alice", "Alice")
	s.Require().NoError(err)
	s.True(changed)
	s.Equal(model.ParticipantID("alice"), p.ParticipantID)
	s.Equal("Alice", p.PlayerName)
	s.Equal(int64(1), p.Version)
	s.Zero(p.VictoryPoints)
}

func (s *Suite) TestClaimSlotRequiresMatch() {
	_, _, err := s.Store.ClaimSlot(s.Ctx, "missing", model.SlotOne, "alice", "Alice")
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestClaimSlotTakenBySomeoneElse() {
	s.createMatch("m-1")
	s.seatPlayer("m-1", model.SlotOne, "alice")

	_, _, err := s.Store.ClaimSlot(s.Ctx, "m-1", model.SlotOne, "bob", "Bob")
	s.ErrorIs(err, model.ErrSlotTaken)
}

func (s *Suite) TestClaimSlotTwiceIsNoChange() {
	s.createMatch("m-1")
	first, _, err := s.Store.ClaimSlot(s.Ctx, "m-1", model.SlotOne, "alice", "Alice")
	s.Require().NoError(err)

	again, changed, err := s.Store.ClaimSlot(s.Ctx, "m-1", model.SlotOne, "alice", "Alice")
	s.Require().NoError(err)
	s.False(changed)
	s.Equal(first.Version, again.Version)
}

func (s *Suite) TestClaimSlotRejectsSecondSlot() {
	s.createMatch("m-1")
	s.seatPlayer("m-1", model.SlotOne, "alice")

	_, _, err := s.Store.ClaimSlot(s.Ctx, "m-1", model.SlotTwo, "alice", "Alice")
	s.ErrorIs(err, model.ErrAlreadySeated)
}

func (s *Suite) TestClaimSlotKeepsVacatedLedger() {
	s.createMatch("m-1")
	_, err := s.Store.SavePlayer(s.Ctx, &model.MatchPlayer{
		MatchID:       "m-1",
		Slot:          model.SlotTwo,
		PlayerName:    "gone",
		VictoryPoints: 45,
		TotalPoints:   300,
	})
	s.Require().NoError(err)

	p, changed, err := s.Store.ClaimSlot(s.Ctx, "m-1", model.SlotTwo, "bob", "Bob")
	s.Require().NoError(err)
	s.True(changed)
	s.Equal(model.ParticipantID("bob"), p.ParticipantID)
	s.Equal(45, p.VictoryPoints)
	s.Equal(300, p.TotalPoints)
	s.Equal(int64(2), p.Version)
}

func (s *Suite) TestConcurrentClaimSlotSingleWinner() {
	s.createMatch("m-1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []model.ParticipantID
	)
	for _, who := range []model.ParticipantID{"alice", "bob", "carol", "dave"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := s.Store.ClaimSlot(s.Ctx, "m-1", model.SlotOne, who, string(who))
			if err != nil {
				s.ErrorIs(err, model.ErrSlotTaken)
				return
			}
			if changed {
				mu.Lock()
				winners = append(winners, who)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Require().Len(winners, 1)
	p, err := s.Store.GetPlayer(s.Ctx, "m-1", model.SlotOne)
	s.Require().NoError(err)
	s.Equal(winners[0], p.ParticipantID)
}

func (s *Suite) TestListPlayersOrderedBySlot() {
	s.createMatch("m-1")
	s.seatPlayer("m-1", model.SlotTwo, "bob")
	s.seatPlayer("m-1", model.SlotOne, "alice")

	players, err := s.Store.ListPlayers(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Require().Len(players, 2)
	s.Equal(model.SlotOne, players[0].Slot)
	s.Equal(model.SlotTwo, players[1].Slot)
}

func (s *Suite) TestDeletePlayer() {
	s.createMatch("m-1")
	s.seatPlayer("m-1", model.SlotOne, "alice")

	s.Require().NoError(s.Store.DeletePlayer(s.Ctx, "m-1", model.SlotOne))
	_, err := s.Store.GetPlayer(s.Ctx, "m-1", model.SlotOne)
	s.ErrorIs(err, model.ErrSlotNotFound)

	s.NoError(s.Store.DeletePlayer(s.Ctx, "m-1", model.SlotOne))
}

func (s *Suite) TestAdjustVictoryPointsFloorsAtZero() {
	s.createMatch("m-1")
	s.seatPlayer("m-1", model.SlotOne, "alice")

	p, err := s.Store.AdjustVictoryPoints(s.Ctx, "m-1", model.SlotOne, 40)
	s.Require().NoError(err)
	s.Equal(40, p.VictoryPoints)

	p, err = s.Store.AdjustVictoryPoints(s.Ctx, "m-1", model.SlotOne, -100)
	s.Require().NoError(err)
	s.Equal(0, p.VictoryPoints)
	s.Equal(int64(3), p.Version)
}

func (s *Suite) TestAdjustVictoryPointsMissingSlot() {
	s.createMatch("m-1")
	_, err := s.Store.AdjustVictoryPoints(s.Ctx, "m-1", model.SlotTwo, 10)
	s.ErrorIs(err, model.ErrSlotNotFound)
}

func (s *Suite) TestConcurrentAdjustVictoryPointsLosesNothing() {
	s.createMatch("m-1")
	s.seatPlayer("m-1", model.SlotOne, "alice")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Store.AdjustVictoryPoints(s.Ctx, "m-1", model.SlotOne, 5)
			s.NoError(err)
		}()
	}
	wg.Wait()

	p, err := s.Store.GetPlayer(s.Ctx, "m-1", model.SlotOne)
	s.Require().NoError(err)
	s.Equal(50, p.VictoryPoints)
}

func (s *Suite) TestSetScores() {
	s.createMatch("m-1")
	s.seatPlayer("m-1", model.SlotOne, "alice")

	_, err := s.Store.SetVictoryPoints(s.Ctx, "m-1", model.SlotOne, 70)
	s.Require().NoError(err)
	p, err := s.Store.SetTotalPoints(s.Ctx, "m-1", model.SlotOne, 300)
	s.Require().NoError(err)
	s.Equal(70, p.VictoryPoints)
	s.Equal(300, p.TotalPoints)
}

// Unit tests

func (s *Suite) TestSaveUnitRequiresMatch() {
	_, err := s.Store.SaveUnit(s.Ctx, &model.Unit{ID: "u-1", MatchID: "missing", Slot: model.SlotOne, Name: "x", Points: 10})
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestSaveAndGetUnit() {
	s.createMatch("m-1")
	saved := s.addUnit("m-1", "u-1", model.SlotOne, 75)
	s.Equal(int64(1), saved.Version)

	u, err := s.Store.GetUnit(s.Ctx, "m-1", "u-1")
	s.Require().NoError(err)
	s.Equal(75, u.Points)
	s.Equal("btas", u.Collection)
	s.Equal("001", u.Number)
	s.False(u.IsKO)
	s.Nil(u.AttachedTo)
}

func (s *Suite) TestGetUnitScopedToMatch() {
	s.createMatch("m-1")
	s.createMatch("m-2")
	s.addUnit("m-1", "u-1", model.SlotOne, 75)

	_, err := s.Store.GetUnit(s.Ctx, "m-2", "u-1")
	s.ErrorIs(err, model.ErrUnitNotFound)
}

func (s *Suite) TestListUnitsInCreationOrder() {
	s.createMatch("m-1")
	s.addUnit("m-1", "u-b", model.SlotOne, 10)
	s.Clock.Advance(time.Second)
	s.addUnit("m-1", "u-a", model.SlotTwo, 20)
	s.Clock.Advance(time.Second)
	s.addUnit("m-1", "u-c", model.SlotOne, 30)

	units, err := s.Store.ListUnits(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Require().Len(units, 3)
	s.Equal(model.UnitID("u-b"), units[0].ID)
	s.Equal(model.UnitID("u-a"), units[1].ID)
	s.Equal(model.UnitID("u-c"), units[2].ID)
}

func (s *Suite) TestSetKOReportsChange() {
	s.createMatch("m-1")
	s.addUnit("m-1", "u-1", model.SlotOne, 75)

	u, changed, err := s.Store.SetKO(s.Ctx, "m-1", "u-1", true)
	s.Require().NoError(err)
	s.True(changed)
	s.True(u.IsKO)
	s.Equal(int64(2), u.Version)

	u, changed, err = s.Store.SetKO(s.Ctx, "m-1", "u-1", true)
	s.Require().NoError(err)
	s.False(changed)
	s.True(u.IsKO)
	s.Equal(int64(2), u.Version)
}

func (s *Suite) TestSetKONotFound() {
	s.createMatch("m-1")
	_, _, err := s.Store.SetKO(s.Ctx, "m-1", "missing", true)
	s.ErrorIs(err, model.ErrUnitNotFound)
}

func (s *Suite) TestConcurrentSetKOChangesOnce() {
	s.createMatch("m-1")
	s.addUnit("m-1", "u-1", model.SlotOne, 75)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := s.Store.SetKO(s.Ctx, "m-1", "u-1", true)
			s.NoError(err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, changes)
}

func (s *Suite) TestSetAttachmentAndDetach() {
	s.createMatch("m-1")
	s.addUnit("m-1", "carrier", model.SlotOne, 100)
	s.addUnit("m-1", "cargo", model.SlotOne, 10)

	target := model.UnitID("carrier")
	u, err := s.Store.SetAttachment(s.Ctx, "m-1", "cargo", &target, model.AttachmentEquipment)
	s.Require().NoError(err)
	s.Require().NotNil(u.AttachedTo)
	s.Equal(target, *u.AttachedTo)
	s.Equal(model.AttachmentEquipment, u.AttachmentKind)

	u, err = s.Store.SetAttachment(s.Ctx, "m-1", "cargo", nil, "")
	s.Require().NoError(err)
	s.Nil(u.AttachedTo)
	s.Empty(u.AttachmentKind)
}

func (s *Suite) TestConcurrentCrossingAttachesKeepOneLevel() {
	s.createMatch("m-1")
	for i := range 10 {
		a := model.UnitID(fmt.Sprintf("a-%d", i))
		b := model.UnitID(fmt.Sprintf("b-%d", i))
		s.addUnit("m-1", a, model.SlotOne, 50)
		s.addUnit("m-1", b, model.SlotOne, 50)

		pairs := [][2]model.UnitID{{a, b}, {b, a}}
		errs := make([]error, len(pairs))
		var wg sync.WaitGroup
		for j, pair := range pairs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				target := pair[1]
				_, errs[j] = s.Store.SetAttachment(s.Ctx, "m-1", pair[0], &target, model.AttachmentEquipment)
			}()
		}
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				s.ErrorIs(err, model.ErrInvalidTarget)
				failed++
			}
		}
		s.Equal(1, failed, "round %d", i)
	}

	units, err := s.Store.ListUnits(s.Ctx, "m-1")
	s.Require().NoError(err)
	graph := model.BuildAttachmentGraph(units)
	for _, u := range units {
		if u.AttachedTo == nil {
			continue
		}
		target := graph.Unit(*u.AttachedTo)
		s.Require().NotNil(target)
		s.Nil(target.AttachedTo, "%s rides on %s which is itself attached", u.ID, target.ID)
	}
}

func (s *Suite) TestSaveUnitRejectsInvalidAttachment() {
	s.createMatch("m-1")
	s.addUnit("m-1", "carrier", model.SlotOne, 100)
	cargo := s.addUnit("m-1", "cargo", model.SlotOne, 10)

	target := model.UnitID("carrier")
	cargo.AttachedTo = &target
	cargo.AttachmentKind = model.AttachmentEquipment
	_, err := s.Store.SaveUnit(s.Ctx, cargo)
	s.Require().NoError(err)

	onCargo := model.UnitID("cargo")
	_, err = s.Store.SaveUnit(s.Ctx, &model.Unit{
		ID:             "rider",
		MatchID:        "m-1",
		Slot:           model.SlotOne,
		Name:           "rider",
		Points:         5,
		AttachedTo:     &onCargo,
		AttachmentKind: model.AttachmentEquipment,
	})
	s.ErrorIs(err, model.ErrTargetAttached)

	_, err = s.Store.GetUnit(s.Ctx, "m-1", "rider")
	s.ErrorIs(err, model.ErrUnitNotFound)
}

func (s *Suite) TestKnockedOutUnitKeepsAttachment() {
	s.createMatch("m-1")
	s.addUnit("m-1", "carrier", model.SlotOne, 100)
	s.addUnit("m-1", "other", model.SlotOne, 100)
	s.addUnit("m-1", "cargo", model.SlotOne, 10)

	target := model.UnitID("carrier")
	_, err := s.Store.SetAttachment(s.Ctx, "m-1", "cargo", &target, model.AttachmentEquipment)
	s.Require().NoError(err)
	_, _, err = s.Store.SetKO(s.Ctx, "m-1", "cargo", true)
	s.Require().NoError(err)

	other := model.UnitID("other")
	_, err = s.Store.SetAttachment(s.Ctx, "m-1", "cargo", &other, model.AttachmentEquipment)
	s.ErrorIs(err, model.ErrUnitKnockedOut)
	_, err = s.Store.SetAttachment(s.Ctx, "m-1", "cargo", nil, "")
	s.ErrorIs(err, model.ErrUnitKnockedOut)

	u, err := s.Store.GetUnit(s.Ctx, "m-1", "cargo")
	s.Require().NoError(err)
	s.Require().NotNil(u.AttachedTo)
	s.Equal(target, *u.AttachedTo)

	// Knocking out a carrier does not stop others attaching to it
	_, _, err = s.Store.SetKO(s.Ctx, "m-1", "other", true)
	s.Require().NoError(err)
	s.addUnit("m-1", "spare", model.SlotOne, 10)
	_, err = s.Store.SetAttachment(s.Ctx, "m-1", "spare", &other, model.AttachmentEquipment)
	s.NoError(err)
}

func (s *Suite) TestDetachDependents() {
	s.createMatch("m-1")
	s.addUnit("m-1", "carrier", model.SlotOne, 100)
	s.addUnit("m-1", "cargo-1", model.SlotOne, 10)
	s.addUnit("m-1", "cargo-2", model.SlotOne, 10)
	s.addUnit("m-1", "other", model.SlotOne, 10)

	target := model.UnitID("carrier")
	_, err := s.Store.SetAttachment(s.Ctx, "m-1", "cargo-1", &target, model.AttachmentEquipment)
	s.Require().NoError(err)
	_, err = s.Store.SetAttachment(s.Ctx, "m-1", "cargo-2", &target, model.AttachmentAvatar)
	s.Require().NoError(err)

	detached, err := s.Store.DetachDependents(s.Ctx, "m-1", "carrier")
	s.Require().NoError(err)
	s.Len(detached, 2)

	units, err := s.Store.ListUnits(s.Ctx, "m-1")
	s.Require().NoError(err)
	for _, u := range units {
		s.Nil(u.AttachedTo, "unit %s", u.ID)
	}
}

func (s *Suite) TestDeleteUnitsForSlot() {
	s.createMatch("m-1")
	s.addUnit("m-1", "u-1", model.SlotOne, 10)
	s.addUnit("m-1", "u-2", model.SlotTwo, 20)

	deleted, err := s.Store.DeleteUnitsForSlot(s.Ctx, "m-1", model.SlotOne)
	s.Require().NoError(err)
	s.Require().Len(deleted, 1)
	s.Equal(model.UnitID("u-1"), deleted[0].ID)

	units, err := s.Store.ListUnits(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Require().Len(units, 1)
	s.Equal(model.UnitID("u-2"), units[0].ID)
}

// Spectator tests

func (s *Suite) TestAddSpectatorIsIdempotent() {
	s.createMatch("m-1")

	created, err := s.Store.AddSpectator(s.Ctx, &model.Spectator{MatchID: "m-1", ParticipantID: "carol"})
	s.Require().NoError(err)
	s.True(created)

	created, err = s.Store.AddSpectator(s.Ctx, &model.Spectator{MatchID: "m-1", ParticipantID: "carol"})
	s.Require().NoError(err)
	s.False(created)

	spectators, err := s.Store.ListSpectators(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Len(spectators, 1)
}

func (s *Suite) TestAddSpectatorRequiresMatch() {
	_, err := s.Store.AddSpectator(s.Ctx, &model.Spectator{MatchID: "missing", ParticipantID: "carol"})
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestRemoveSpectator() {
	s.createMatch("m-1")
	_, err := s.Store.AddSpectator(s.Ctx, &model.Spectator{MatchID: "m-1", ParticipantID: "carol"})
	s.Require().NoError(err)

	s.Require().NoError(s.Store.RemoveSpectator(s.Ctx, "m-1", "carol"))

	spectators, err := s.Store.ListSpectators(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Empty(spectators)
}
