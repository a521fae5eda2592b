package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/matchsync/internal/dependencies/mocks"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage/memory"
	"github.com/mcoot/matchsync/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) take() []model.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := p.events
	p.events = nil
	return events
}

type RealtimeSuite struct {
	suite.Suite
	ctx       context.Context
	publisher *recordingPublisher
	store     *Storage
}

func TestRealtimeSuite(t *testing.T) {
	suite.Run(t, new(RealtimeSuite))
}

func (s *RealtimeSuite) SetupTest() {
	s.ctx = context.Background()
	clk := mocks.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.publisher = &recordingPublisher{}
	s.store = New(memory.New(clk), s.publisher, clk, testutil.NopLogger())

	s.Require().NoError(s.store.CreateMatch(s.ctx, &model.Match{
		ID: "m-1", Name: "feed", Status: model.MatchStatusWaiting, Timer: model.NewTimer(0),
	}))
	events := s.publisher.take()
	s.Require().Len(events, 1)
	s.Equal(model.EntityMatch, events[0].Entity)
	s.Equal(model.OpInsert, events[0].Operation)
}

func (s *RealtimeSuite) TestClaimPublishesOnlyRealChanges() {
	p, changed, err := s.store.ClaimSlot(s.ctx, "m-1", model.SlotOne, "alice", "Alice")
	s.Require().NoError(err)
	s.True(changed)

	events := s.publisher.take()
	s.Require().Len(events, 1)
	s.Equal(model.EntityPlayer, events[0].Entity)
	s.Equal(model.OpInsert, events[0].Operation)

	var row model.MatchPlayer
	s.Require().NoError(events[0].DecodeRow(&row))
	s.Equal(p.Version, row.Version)
	s.Equal(model.ParticipantID("alice"), row.ParticipantID)

	_, changed, err = s.store.ClaimSlot(s.ctx, "m-1", model.SlotOne, "alice", "Alice")
	s.Require().NoError(err)
	s.False(changed)
	s.Empty(s.publisher.take())
}

func (s *RealtimeSuite) TestUnitWrites() {
	u, err := s.store.SaveUnit(s.ctx, &model.Unit{ID: "u-1", MatchID: "m-1", Slot: model.SlotOne, Name: "Batman", Points: 100})
	s.Require().NoError(err)
	s.Equal(int64(1), u.Version)
	s.Equal(model.OpInsert, s.publisher.take()[0].Operation)

	_, err = s.store.SaveUnit(s.ctx, u)
	s.Require().NoError(err)
	s.Equal(model.OpUpdate, s.publisher.take()[0].Operation)

	_, changed, err := s.store.SetKO(s.ctx, "m-1", "u-1", true)
	s.Require().NoError(err)
	s.True(changed)
	s.Len(s.publisher.take(), 1)

	_, changed, err = s.store.SetKO(s.ctx, "m-1", "u-1", true)
	s.Require().NoError(err)
	s.False(changed)
	s.Empty(s.publisher.take())
}

func (s *RealtimeSuite) TestFailedWritesPublishNothing() {
	_, _, err := s.store.SetKO(s.ctx, "m-1", "missing", true)
	s.ErrorIs(err, model.ErrUnitNotFound)

	_, err = s.store.SaveUnit(s.ctx, &model.Unit{ID: "u-1", MatchID: "nope", Name: "x", Points: 1})
	s.ErrorIs(err, model.ErrMatchNotFound)

	s.NoError(s.store.DeletePlayer(s.ctx, "m-1", model.SlotTwo))
	s.Empty(s.publisher.take())
}

func (s *RealtimeSuite) TestSpectatorInsertOnce() {
	sp := &model.Spectator{MatchID: "m-1", ParticipantID: "carol"}
	created, err := s.store.AddSpectator(s.ctx, sp)
	s.Require().NoError(err)
	s.True(created)
	created, err = s.store.AddSpectator(s.ctx, sp)
	s.Require().NoError(err)
	s.False(created)

	events := s.publisher.take()
	s.Require().Len(events, 1)
	var row model.Spectator
	s.Require().NoError(events[0].DecodeRow(&row))
	s.False(row.CreatedAt.IsZero())

	s.Require().NoError(s.store.RemoveSpectator(s.ctx, "m-1", "carol"))
	events = s.publisher.take()
	s.Require().Len(events, 1)
	s.Equal(model.OpDelete, events[0].Operation)
}

func (s *RealtimeSuite) TestDeleteCarriesLastRow() {
	s.Require().NoError(s.store.DeleteMatch(s.ctx, "m-1"))

	events := s.publisher.take()
	s.Require().Len(events, 1)
	s.Equal(model.OpDelete, events[0].Operation)
	var row model.Match
	s.Require().NoError(events[0].DecodeRow(&row))
	s.Equal("feed", row.Name)
}

func (s *RealtimeSuite) TestPublishFailureKeepsWrite() {
	s.publisher.err = errors.New("bus down")

	_, err := s.store.SaveUnit(s.ctx, &model.Unit{ID: "u-2", MatchID: "m-1", Slot: model.SlotTwo, Name: "Joker", Points: 80})
	s.Require().NoError(err)

	stored, err := s.store.GetUnit(s.ctx, "m-1", "u-2")
	s.Require().NoError(err)
	s.Equal("Joker", stored.Name)
}
