package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/classroll/classroll-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKEND
// ══════════════════════════════════════════════════════════════════════════════

// Backend persists sessions keyed by user ID.
// Implementations: MemoryBackend here, redis.SessionStore in infrastructure.
type Backend interface {
	// Load returns the stored session; found is false when none is stored.
	Load(ctx context.Context, userID string) (s Session, found bool, err error)
	Save(ctx context.Context, userID string, s Session) error
	Delete(ctx context.Context, userID string) error
}

// MemoryBackend keeps sessions in process memory.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]Session)}
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context, userID string) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok, nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(_ context.Context, userID string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = s
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Tracker is the per-user dialogue state machine store. Operations on one user
// never read or write another user's session.
type Tracker struct {
	backend Backend
	clock   func() time.Time
}

// NewTracker wraps a backend. A nil clock means time.Now.
func NewTracker(backend Backend, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{backend: backend, clock: clock}
}

// Current returns the user's session, or Idle when none is stored.
func (t *Tracker) Current(ctx context.Context, userID string) (Session, error) {
	s, found, err := t.backend.Load(ctx, userID)
	if err != nil {
		return Idle(), shared.WrapError("dialogue", "Current", shared.ErrTransport, "failed to load session", err)
	}
	if !found {
		return Idle(), nil
	}
	if s.Stage == "" {
		s.Stage = StageIdle
	}
	return s, nil
}

// Begin starts a dialogue, replacing whatever the user had before.
func (t *Tracker) Begin(ctx context.Context, userID string, s Session) error {
	return t.put(ctx, "Begin", userID, s)
}

// Advance moves the user to the next stage (or to an idle menu).
func (t *Tracker) Advance(ctx context.Context, userID string, s Session) error {
	return t.put(ctx, "Advance", userID, s)
}

// Clear resets the user to Idle with no menu.
func (t *Tracker) Clear(ctx context.Context, userID string) error {
	if err := t.backend.Delete(ctx, userID); err != nil {
		return shared.WrapError("dialogue", "Clear", shared.ErrTransport, "failed to clear session", err)
	}
	return nil
}

func (t *Tracker) put(ctx context.Context, op, userID string, s Session) error {
	if s.IsBlank() {
		return t.Clear(ctx, userID)
	}
	if s.Stage == "" {
		s.Stage = StageIdle
	}
	s.UpdatedAt = t.clock().UTC()
	if err := t.backend.Save(ctx, userID, s); err != nil {
		return shared.WrapError("dialogue", op, shared.ErrTransport, "failed to save session", err)
	}
	return nil
}
