package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/store"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "session:"

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
}

// KVSessionRepository keeps sessions as JSON under session:{id}.
type KVSessionRepository struct {
	kv  store.KV
	now func() time.Time
}

func NewSessionRepository(kv store.KV) *KVSessionRepository {
	return &KVSessionRepository{kv: kv, now: time.Now}
}

func (r *KVSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return fmt.Errorf("session %s already expired", s.ID)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.kv.Set(ctx, sessionKey(s.ID), string(raw), ttl); err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return fmt.Errorf("store session: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

// Get returns ErrSessionNotFound for missing, undecodable and expired
// records. Expired records are deleted before returning.
func (r *KVSessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := r.kv.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "get", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "get", "error")
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "get", "corrupt")
		return nil, ErrSessionNotFound
	}
	if s.Expired(r.now()) {
		if err := r.kv.Delete(ctx, sessionKey(id)); err != nil {
			observability.RecordRepositoryOperation(ctx, "session", "get", "error")
			return nil, err
		}
		observability.RecordRepositoryOperation(ctx, "session", "get", "expired")
		return nil, ErrSessionNotFound
	}
	observability.RecordRepositoryOperation(ctx, "session", "get", "success")
	return &s, nil
}

func (r *KVSessionRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := r.kv.Delete(ctx, sessionKey(id)); err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete", "success")
	return nil
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
