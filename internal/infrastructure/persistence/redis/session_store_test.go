package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/internal/domain/shared"
)

func unreachableCache() *Cache {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = -1
	cfg.DialTimeout = 100 * time.Millisecond
	return NewCacheFromClient(NewClient(cfg))
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "session:919876543210@c.us", SessionKey("919876543210@c.us"))
}

func TestNewSessionStore_DefaultTTL(t *testing.T) {
	assert.Equal(t, TTLSessionData, NewSessionStore(nil, 0).ttl)
	assert.Equal(t, time.Hour, NewSessionStore(nil, time.Hour).ttl)
}

func TestCache_RejectsEmptyKey(t *testing.T) {
	c := unreachableCache()
	defer c.Close()

	assert.ErrorIs(t, c.Set(context.Background(), "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Get(context.Background(), "", new(int)), ErrCacheKeyEmpty)
}

func TestSessionStore_UnreachableServerIsTransport(t *testing.T) {
	c := unreachableCache()
	defer c.Close()

	tracker := dialogue.NewTracker(NewSessionStore(c, 0), nil)

	s, err := tracker.Current(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, shared.IsTransport(err))
	assert.True(t, s.IsIdle())

	err = tracker.Begin(context.Background(), "u1", dialogue.AwaitSubjectName())
	assert.True(t, shared.IsTransport(err))
}

func TestNewCache_PingFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = -1
	cfg.DialTimeout = 100 * time.Millisecond

	_, err := NewCache(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}
