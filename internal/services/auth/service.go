package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/dependencies/random"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

// Session represents an authenticated session
type Session struct {
	Token         string              `json:"token"`
	ParticipantID model.ParticipantID `json:"participant_id"`
	Participant   model.Participant   `json:"participant"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
}

// Service issues guest identities and tracks their sessions
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random

	mu       sync.RWMutex
	sessions map[string]*Session

	sessionDuration time.Duration
}

// Config holds configuration for the auth service
type Config struct {
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"24h"`
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 24 * time.Hour,
	}
}

// New creates a new AuthService
func New(storage storage.Storage, clock clock.Clock, random random.Random, cfg Config) *Service {
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = DefaultConfig().SessionDuration
	}
	return &Service{
		storage:         storage,
		clock:           clock,
		random:          random,
		sessions:        make(map[string]*Session),
		sessionDuration: cfg.SessionDuration,
	}
}

// CreateGuest creates an anonymous participant and session
func (s *Service) CreateGuest(ctx context.Context, displayName string) (*Session, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, model.ErrInvalidName
	}

	participant := &model.Participant{
		ID:          model.ParticipantID(s.random.ID()),
		DisplayName: displayName,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.storage.SaveParticipant(ctx, participant); err != nil {
		return nil, err
	}

	return s.createSession(participant), nil
}

// ValidateSession checks if a session token is valid and returns the session
func (s *Service) ValidateSession(token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, model.ErrInvalidSession
	}

	if s.clock.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, model.ErrInvalidSession
	}

	return session, nil
}

// InvalidateSession removes a session
func (s *Service) InvalidateSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// GetParticipant returns the participant for a session token
func (s *Service) GetParticipant(token string) (*model.Participant, error) {
	session, err := s.ValidateSession(token)
	if err != nil {
		return nil, err
	}
	return &session.Participant, nil
}

func (s *Service) createSession(participant *model.Participant) *Session {
	now := s.clock.Now()
	session := &Session{
		Token:         generateToken(),
		ParticipantID: participant.ID,
		Participant:   *participant,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.sessionDuration),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}

// generateToken returns an unguessable session token
func generateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return "sess_" + base64.RawURLEncoding.EncodeToString(b)
}

// CleanExpiredSessions removes expired sessions (call periodically)
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// RunCleanup removes expired sessions every interval until ctx is done
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.CleanExpiredSessions()
		}
	}
}
