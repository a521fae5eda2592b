package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/matchsync/internal/dependencies/mocks"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage/memory"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.storage = memory.New(s.clock)
	s.random = mocks.NewMockRandom()
	s.service = New(s.storage, s.clock, s.random, DefaultConfig())
	s.ctx = context.Background()
}

// CreateGuest tests

func (s *ServiceSuite) TestCreateGuestSucceeds() {
	s.random.QueueID("p-alice")

	session, err := s.service.CreateGuest(s.ctx, "  Alice ")
	s.Require().NoError(err)

	s.NotEmpty(session.Token)
	s.Equal(model.ParticipantID("p-alice"), session.ParticipantID)
	s.Equal("Alice", session.Participant.DisplayName)
	s.True(session.ExpiresAt.Equal(s.clock.Now().Add(24 * time.Hour)))
}

func (s *ServiceSuite) TestCreateGuestPersistsParticipant() {
	session, err := s.service.CreateGuest(s.ctx, "Alice")
	s.Require().NoError(err)

	participant, err := s.storage.GetParticipant(s.ctx, session.ParticipantID)
	s.Require().NoError(err)
	s.Equal("Alice", participant.DisplayName)
}

func (s *ServiceSuite) TestCreateGuestRequiresName() {
	_, err := s.service.CreateGuest(s.ctx, "   ")
	s.ErrorIs(err, model.ErrInvalidName)
}

func (s *ServiceSuite) TestTokensAreUnique() {
	first, err := s.service.CreateGuest(s.ctx, "Alice")
	s.Require().NoError(err)
	second, err := s.service.CreateGuest(s.ctx, "Bob")
	s.Require().NoError(err)

	s.NotEqual(first.Token, second.Token)
	s.NotEqual(first.ParticipantID, second.ParticipantID)
}

// ValidateSession tests

func (s *ServiceSuite) TestValidateSessionSucceeds() {
	session, _ := s.service.CreateGuest(s.ctx, "Alice")

	validated, err := s.service.ValidateSession(session.Token)
	s.Require().NoError(err)
	s.Equal(session.ParticipantID, validated.ParticipantID)
}

func (s *ServiceSuite) TestValidateSessionUnknownToken() {
	_, err := s.service.ValidateSession("nope")
	s.ErrorIs(err, model.ErrInvalidSession)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestValidateSessionExpired() {
	session, _ := s.service.CreateGuest(s.ctx, "Alice")

	s.clock.Advance(25 * time.Hour)

	_, err := s.service.ValidateSession(session.Token)
	s.ErrorIs(err, model.ErrInvalidSession)
}

func (s *ServiceSuite) TestInvalidateSession() {
	session, _ := s.service.CreateGuest(s.ctx, "Alice")

	s.service.InvalidateSession(session.Token)

	_, err := s.service.ValidateSession(session.Token)
	s.ErrorIs(err, model.ErrInvalidSession)
}

func (s *ServiceSuite) TestGetParticipant() {
	session, _ := s.service.CreateGuest(s.ctx, "Alice")

	participant, err := s.service.GetParticipant(session.Token)
	s.Require().NoError(err)
	s.Equal("Alice", participant.DisplayName)
}

// CleanExpiredSessions tests

func (s *ServiceSuite) TestCleanExpiredSessions() {
	old, _ := s.service.CreateGuest(s.ctx, "Alice")
	s.clock.Advance(23 * time.Hour)
	fresh, _ := s.service.CreateGuest(s.ctx, "Bob")
	s.clock.Advance(2 * time.Hour)

	s.Equal(1, s.service.CleanExpiredSessions())

	_, err := s.service.ValidateSession(old.Token)
	s.ErrorIs(err, model.ErrInvalidSession)
	_, err = s.service.ValidateSession(fresh.Token)
	s.NoError(err)
}

func (s *ServiceSuite) TestCustomSessionDuration() {
	service := New(s.storage, s.clock, s.random, Config{SessionDuration: time.Hour})
	session, err := service.CreateGuest(s.ctx, "Alice")
	s.Require().NoError(err)

	s.clock.Advance(61 * time.Minute)
	_, err = service.ValidateSession(session.Token)
	s.ErrorIs(err, model.ErrInvalidSession)
}
