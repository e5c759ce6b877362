package session

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/innovaedu/wabot/core/logger"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// NewMemoryStoreWithClock is like NewMemoryStore but with an injectable
// clock for expiry tests.
func NewMemoryStoreWithClock(now func() time.Time) Store {
	return &memoryStore{
		sessions: make(map[string]*Session),
		now:      now,
	}
}

func (m *memoryStore) Get(waID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.now()
	sess, ok := m.sessions[waID]
	if !ok {
		sess = &Session{
			WaID:         waID,
			Step:         StepWelcome,
			Data:         make(map[string]string),
			LastActivity: ts,
			CreatedAt:    ts,
		}
		m.sessions[waID] = sess
		return sess
	}
	sess.LastActivity = ts
	return sess
}

func (m *memoryStore) Peek(waID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[waID]
	return sess, ok
}

func (m *memoryStore) Delete(waID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, waID)
}

func (m *memoryStore) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for waID, sess := range m.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(m.sessions, waID)
			removed++
		}
	}
	return removed
}

func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunSweeper periodically removes idle sessions until ctx is done.
func RunSweeper(ctx context.Context, store Store, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := store.Sweep(maxIdle)
			if removed > 0 {
				logger.Info(ctx, "session", "sweep",
					slog.String("status", "ok"),
					slog.Int("count", removed),
					slog.Int("remaining", store.Len()),
				)
			}
		}
	}
}
