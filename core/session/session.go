// Package session tracks per-user conversation sessions for the bot.
// It is intentionally agnostic of the concrete flow steps so it can be
// reused by other conversational surfaces.
package session

import (
	"time"
)

// Step identifies the conversation step a user is currently in.
type Step string

// StepWelcome is the entry step assigned to every new session.
const StepWelcome Step = "welcome"

// Session holds the conversational state of one WhatsApp identity.
type Session struct {
	WaID string
	Step Step
	// Data accumulates answers captured during form steps.
	Data map[string]string
	// SuppressMenuOnce skips the automatic menu chaser after the next
	// reply, used when a step already ends with its own menu.
	SuppressMenuOnce bool
	LastActivity     time.Time
	CreatedAt        time.Time
}

// Store manages session lifecycle keyed by WhatsApp identity.
type Store interface {
	// Get returns the session for the identity, creating a fresh one at
	// the welcome step when none exists, and marks it active.
	Get(waID string) *Session
	// Peek returns the session without creating or touching it.
	Peek(waID string) (*Session, bool)
	// Delete removes the session for the identity.
	Delete(waID string)
	// Sweep drops sessions idle longer than maxIdle and reports how
	// many were removed.
	Sweep(maxIdle time.Duration) int
	// Len reports the number of live sessions.
	Len() int
}
