package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/repository"
)

const DefaultSessionTTL = 7 * 24 * time.Hour

type SessionService struct {
	sessionRepo repository.SessionRepository
	ttl         time.Duration
	now         func() time.Time
}

func NewSessionService(sessionRepo repository.SessionRepository, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{sessionRepo: sessionRepo, ttl: ttl, now: time.Now}
}

func (s *SessionService) TTL() time.Duration { return s.ttl }

// Create mints a random id and stores a session with fixed validity.
func (s *SessionService) Create(ctx context.Context, user domain.User) (*domain.Session, error) {
	now := s.now()
	if user.Name == "" {
		user.Name = user.Login
	}
	session := &domain.Session{
		ID:        uuid.NewString(),
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Resolve returns repository.ErrSessionNotFound for unknown or expired ids.
// Other errors mean the store could not be consulted.
func (s *SessionService) Resolve(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.sessionRepo.Get(ctx, id)
	switch {
	case err == nil:
		observability.RecordSessionLookup(ctx, "hit")
		return session, nil
	case errors.Is(err, repository.ErrSessionNotFound):
		observability.RecordSessionLookup(ctx, "miss")
		return nil, err
	default:
		observability.RecordSessionLookup(ctx, "error")
		return nil, err
	}
}

func (s *SessionService) Revoke(ctx context.Context, id string) error {
	return s.sessionRepo.Delete(ctx, id)
}
