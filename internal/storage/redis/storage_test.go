package redis

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
	"github.com/mcoot/matchsync/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
	mini    *miniredis.Miniredis
	storage *Storage
}

func TestStorageSuite(t *testing.T) {
	s := new(StorageSuite)
	s.NewStorage = func(clk clock.Clock) storage.Storage {
		s.mini = miniredis.RunT(s.T())
		client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})

		cfg := DefaultConfig()
		cfg.ParticipantTTL = time.Hour
		cfg.MatchTTL = 2 * time.Hour

		s.storage = NewWithClient(client, cfg, clk)
		return s.storage
	}
	suite.Run(t, s)
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *StorageSuite) createMatch(id model.MatchID) {
	m := &model.Match{ID: id, Name: "ttl", Status: model.MatchStatusWaiting, Timer: model.NewTimer(0)}
	s.Require().NoError(s.Store.CreateMatch(s.Ctx, m))
}

func (s *StorageSuite) TestMatchTTL() {
	s.createMatch("m-1")
	s.Equal(2*time.Hour, s.mini.TTL(matchKey("m-1")))
}

func (s *StorageSuite) TestParticipantTTL() {
	err := s.Store.SaveParticipant(s.Ctx, &model.Participant{ID: "p-1", DisplayName: "Alice"})
	s.Require().NoError(err)
	s.Equal(time.Hour, s.mini.TTL(participantKey("p-1")))
}

func (s *StorageSuite) TestUpdatesKeepTTL() {
	s.createMatch("m-1")
	s.mini.FastForward(30 * time.Minute)

	_, err := s.Store.UpdateMatchStatus(s.Ctx, "m-1", model.MatchStatusActive)
	s.Require().NoError(err)

	s.Equal(90*time.Minute, s.mini.TTL(matchKey("m-1")))
}

func (s *StorageSuite) TestUnitIndexMaintained() {
	s.createMatch("m-1")
	_, err := s.Store.SaveUnit(s.Ctx, &model.Unit{ID: "u-1", MatchID: "m-1", Slot: model.SlotOne, Name: "x", Points: 10})
	s.Require().NoError(err)

	members, err := s.mini.Members(unitsForMatchIndexKey("m-1"))
	s.Require().NoError(err)
	s.Equal([]string{"u-1"}, members)

	_, err = s.Store.DeleteUnitsForSlot(s.Ctx, "m-1", model.SlotOne)
	s.Require().NoError(err)
	s.False(s.mini.Exists(unitKey("u-1")))
}

func (s *StorageSuite) TestSecretHashPersistedButNotInPublicJSON() {
	m := &model.Match{ID: "m-1", Name: "private", SecretHash: "bcrypt-hash", Status: model.MatchStatusWaiting, Timer: model.NewTimer(0)}
	s.Require().NoError(s.Store.CreateMatch(s.Ctx, m))

	raw, err := s.mini.Get(matchKey("m-1"))
	s.Require().NoError(err)
	s.Contains(raw, "bcrypt-hash")

	got, err := s.Store.GetMatch(s.Ctx, "m-1")
	s.Require().NoError(err)
	s.Equal("bcrypt-hash", got.SecretHash)
}

func (s *StorageSuite) TestUnreachableServerIsTransient() {
	s.createMatch("m-1")
	s.mini.Close()

	_, err := s.Store.GetMatch(s.Ctx, "m-1")
	s.ErrorIs(err, model.ErrTransientIO)
}

func (s *StorageSuite) TestWritesRacingDeleteMatchLeaveNoRows() {
	for i := range 20 {
		id := model.MatchID(fmt.Sprintf("m-%d", i))
		s.createMatch(id)

		var wg sync.WaitGroup
		errs := make([]error, 4)
		wg.Add(4)
		go func() {
			defer wg.Done()
			errs[0] = s.Store.DeleteMatch(s.Ctx, id)
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = s.Store.SavePlayer(s.Ctx, &model.MatchPlayer{MatchID: id, Slot: model.SlotOne, PlayerName: "a"})
		}()
		go func() {
			defer wg.Done()
			_, errs[2] = s.Store.SaveUnit(s.Ctx, &model.Unit{ID: model.UnitID(fmt.Sprintf("u-%d", i)), MatchID: id, Slot: model.SlotOne, Name: "x", Points: 10})
		}()
		go func() {
			defer wg.Done()
			_, _, errs[3] = s.Store.ClaimSlot(s.Ctx, id, model.SlotTwo, "p-2", "b")
		}()
		wg.Wait()

		s.Require().NoError(errs[0])
		for _, err := range errs[1:] {
			if err != nil {
				s.ErrorIs(err, model.ErrMatchNotFound)
			}
		}
	}

	// Every write either landed before the delete and went with it, or saw the match gone
	s.Empty(s.mini.Keys())
}

func (s *StorageSuite) TestAttachmentKeepsUnitTTL() {
	s.createMatch("m-1")
	for _, id := range []model.UnitID{"u-1", "u-2"} {
		_, err := s.Store.SaveUnit(s.Ctx, &model.Unit{ID: id, MatchID: "m-1", Slot: model.SlotOne, Name: "x", Points: 10})
		s.Require().NoError(err)
	}
	s.mini.FastForward(30 * time.Minute)

	target := model.UnitID("u-2")
	_, err := s.Store.SetAttachment(s.Ctx, "m-1", "u-1", &target, model.AttachmentEquipment)
	s.Require().NoError(err)

	s.Equal(90*time.Minute, s.mini.TTL(unitKey("u-1")))
}
