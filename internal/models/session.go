// Package models defines conversation session types to avoid circular imports.
package models

import "time"

// VerificationPhase represents where a chat identity stands in the
// out-of-band verification handshake.
type VerificationPhase string

const (
	// PhaseUnverified is the initial phase; report collection is unreachable.
	PhaseUnverified VerificationPhase = "UNVERIFIED"
	// PhaseAwaitingConfirmation means a session token has been issued and the
	// gate is waiting for the external form to complete.
	PhaseAwaitingConfirmation VerificationPhase = "AWAITING_CONFIRMATION"
	// PhaseVerified is terminal for the session lifetime unless revoked.
	PhaseVerified VerificationPhase = "VERIFIED"
)

// StepType represents the current position in the report-collection flow.
// StepNone means the session is idle.
type StepType string

const (
	StepNone        StepType = ""
	StepTitle       StepType = "TITLE"
	StepCategory    StepType = "CATEGORY"
	StepLocation    StepType = "LOCATION"
	StepOccurredAt  StepType = "OCCURRED_AT"
	StepDescription StepType = "DESCRIPTION"
)

// IncidentDraft is the partially filled report assembled across the flow.
// Fields are populated strictly in step order; OccurredAt stays nil until
// the OCCURRED_AT step accepts a parseable time.
type IncidentDraft struct {
	Title       string     `json:"title,omitempty"`
	Category    Category   `json:"category,omitempty"`
	Location    string     `json:"location,omitempty"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
	Description string     `json:"description,omitempty"`
}

// FailedInputThreshold is the number of consecutive unrecognized idle inputs
// after which the session is reset back to the menu.
const FailedInputThreshold = 3

// ConversationSession holds the per-chat conversational state. Exactly one
// session exists per chat identity; it is never destroyed, only reset.
type ConversationSession struct {
	ChatID           string            `json:"chat_id"`
	Phase            VerificationPhase `json:"phase"`
	Step             StepType          `json:"step"`
	Identity         *StudentInfo      `json:"identity,omitempty"`
	Draft            IncidentDraft     `json:"draft"`
	FailedInputCount int               `json:"failed_input_count"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewConversationSession returns the initial empty session for a chat.
func NewConversationSession(chatID string) *ConversationSession {
	now := time.Now()
	return &ConversationSession{
		ChatID:    chatID,
		Phase:     PhaseUnverified,
		Step:      StepNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InFlow reports whether the session is mid-flow, either inside the
// verification handshake or inside report collection.
func (s *ConversationSession) InFlow() bool {
	return s.Step != StepNone || s.Phase == PhaseAwaitingConfirmation
}

// ResetFlow discards the draft and returns the session to idle. The
// verification phase and identity survive: verification lasts for the
// session lifetime and is only dropped by explicit revocation.
func (s *ConversationSession) ResetFlow() {
	s.Step = StepNone
	s.Draft = IncidentDraft{}
	s.FailedInputCount = 0
	if s.Phase == PhaseAwaitingConfirmation {
		s.Phase = PhaseUnverified
	}
}

// Revoke drops the verified identity and returns the session to its
// initial state.
func (s *ConversationSession) Revoke() {
	s.ResetFlow()
	s.Phase = PhaseUnverified
	s.Identity = nil
}

// TokenKind distinguishes the two phases of the verification handshake.
type TokenKind string

const (
	// TokenKindSession binds "this chat is waiting" to the external form.
	TokenKindSession TokenKind = "session"
	// TokenKindConfirmation binds the form's verified identity back to the chat.
	TokenKindConfirmation TokenKind = "confirmation"
)

// VerificationToken is a short-lived, single-use credential mediating the
// two-phase verification handshake. Consumed tokens are deleted immediately;
// expired ones are swept in the background but rejected at lookup regardless.
type VerificationToken struct {
	Token     string       `json:"token"`
	Kind      TokenKind    `json:"kind"`
	ChatID    string       `json:"chat_id"`
	StudentID string       `json:"student_id,omitempty"`
	Student   *StudentInfo `json:"student,omitempty"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
