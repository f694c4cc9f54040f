// Package flow implements the guided-report conversation engine: the
// per-chat session lifecycle, the table-driven report-collection state
// machine, and the category/guidance lookups it depends on.
package flow

import (
	"context"
	"time"

	"github.com/campussafe/safebot/internal/models"
)

// SessionManager manages the per-chat conversation session lifecycle.
type SessionManager interface {
	// Get returns the existing session for a chat, or a freshly initialized
	// empty one. It never returns a nil session without an error.
	Get(ctx context.Context, chatID string) (*models.ConversationSession, error)

	// Save persists the session, replacing any previous state for the chat.
	Save(ctx context.Context, session *models.ConversationSession) error

	// Reset returns the chat to the initial empty session.
	Reset(ctx context.Context, chatID string) error
}

// Messenger sends outbound messages to a chat. Implemented by
// messaging.Service; declared here to avoid a circular import.
type Messenger interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Verifier starts the out-of-band identity verification handshake for a
// chat and returns the link the user must open, plus the session-token
// expiry. Implemented by verify.Gate.
type Verifier interface {
	StartVerification(ctx context.Context, chatID string) (link string, expiresAt time.Time, err error)
}

// IncidentCreator is the narrow slice of the store the engine submits
// completed reports through. Called exactly once per successful flow.
type IncidentCreator interface {
	AddIncident(incident models.Incident) error
}

// Notifier is told about successfully stored reports so downstream
// alerting (e.g. security SMS) can fan out. Failures are the notifier's
// own concern; the engine never blocks or rolls back on them.
type Notifier interface {
	IncidentCreated(ctx context.Context, incident models.Incident)
}
