package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCreatesWelcomeSession(t *testing.T) {
	store := NewMemoryStore()

	sess := store.Get("923001234567")

	require.NotNil(t, sess)
	assert.Equal(t, "923001234567", sess.WaID)
	assert.Equal(t, StepWelcome, sess.Step)
	assert.NotNil(t, sess.Data)
	assert.Equal(t, 1, store.Len())

	again := store.Get("923001234567")
	assert.Same(t, sess, again)
	assert.Equal(t, 1, store.Len())
}

func TestGetTouchesActivity(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithClock(func() time.Time { return current })

	sess := store.Get("u1")
	created := sess.LastActivity

	current = current.Add(10 * time.Minute)
	store.Get("u1")

	assert.Equal(t, created.Add(10*time.Minute), sess.LastActivity)
	assert.Equal(t, created, sess.CreatedAt)
}

func TestPeekDoesNotCreate(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Peek("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())

	store.Get("u1")
	sess, ok := store.Peek("u1")
	require.True(t, ok)
	assert.Equal(t, "u1", sess.WaID)
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithClock(func() time.Time { return current })

	store.Get("idle")
	current = current.Add(45 * time.Minute)
	store.Get("active")

	current = current.Add(30 * time.Minute)
	removed := store.Sweep(time.Hour)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
	_, ok := store.Peek("idle")
	assert.False(t, ok)
	_, ok = store.Peek("active")
	assert.True(t, ok)
}

func TestSweepRestartsLifecycle(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithClock(func() time.Time { return current })

	sess := store.Get("u1")
	sess.Step = Step("somewhere_deep")

	current = current.Add(2 * time.Hour)
	store.Sweep(time.Hour)

	fresh := store.Get("u1")
	assert.Equal(t, StepWelcome, fresh.Step)
	assert.NotSame(t, sess, fresh)
}

func TestDelete(t *testing.T) {
	store := NewMemoryStore()
	store.Get("u1")
	store.Delete("u1")
	assert.Equal(t, 0, store.Len())
}
