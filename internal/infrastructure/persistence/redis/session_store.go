package redis

import (
	"context"
	"errors"
	"time"

	"github.com/classroll/classroll-bot/internal/domain/dialogue"
)

// SessionStore implements dialogue.Backend on Redis. Each user's session is
// one JSON value; every write refreshes its TTL.
type SessionStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewSessionStore creates a session store. A non-positive ttl means TTLSessionData.
func NewSessionStore(cache *Cache, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = TTLSessionData
	}
	return &SessionStore{cache: cache, ttl: ttl}
}

// Load implements dialogue.Backend.
func (s *SessionStore) Load(ctx context.Context, userID string) (dialogue.Session, bool, error) {
	var session dialogue.Session
	err := s.cache.Get(ctx, SessionKey(userID), &session)
	switch {
	case err == nil:
		return session, true, nil
	case errors.Is(err, ErrCacheMiss):
		return dialogue.Session{}, false, nil
	default:
		return dialogue.Session{}, false, err
	}
}

// Save implements dialogue.Backend.
func (s *SessionStore) Save(ctx context.Context, userID string, session dialogue.Session) error {
	return s.cache.Set(ctx, SessionKey(userID), session, s.ttl)
}

// Delete implements dialogue.Backend.
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, SessionKey(userID))
}
