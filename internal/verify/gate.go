// Package verify implements the two-phase student verification gate.
//
// Phase one issues a short-lived session token that ties "this chat is
// waiting for verification" to the external web form. Phase two checks the
// submitted identity against the campus roster, consumes the session token,
// and mints a single-use confirmation token that binds the verified identity
// back to the originating chat.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/store"
	"github.com/campussafe/safebot/internal/util"
)

// Errors returned by the gate. ErrTokenInvalid deliberately does not
// distinguish unknown from expired tokens.
var (
	ErrTokenInvalid    = errors.New("verification token is invalid or expired")
	ErrChatMismatch    = errors.New("verification token was issued for a different chat")
	ErrStudentNotFound = errors.New("no matching student found in the roster")
)

const (
	// DefaultSessionTTL bounds how long the web form may take from the moment
	// the link is sent.
	DefaultSessionTTL = 15 * time.Minute
	// DefaultConfirmationTTL bounds the window between form completion and the
	// confirmation callback.
	DefaultConfirmationTTL = 30 * time.Minute

	tokenByteLength = 32
)

// Opts holds configuration for the gate.
type Opts struct {
	BaseURL         string
	SessionTTL      time.Duration
	ConfirmationTTL time.Duration
	Now             func() time.Time
}

// Option configures the verification gate.
type Option func(*Opts)

// WithBaseURL sets the public base URL the verification link is built from.
func WithBaseURL(baseURL string) Option {
	return func(o *Opts) { o.BaseURL = baseURL }
}

// WithSessionTTL overrides the session-token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithConfirmationTTL overrides the confirmation-token lifetime.
func WithConfirmationTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.ConfirmationTTL = ttl }
}

// WithNow overrides the gate's time source (used in tests).
func WithNow(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Gate mediates the verification handshake over a Store.
type Gate struct {
	store           store.Store
	baseURL         string
	sessionTTL      time.Duration
	confirmationTTL time.Duration
	now             func() time.Time
}

// NewGate creates a verification gate backed by st.
func NewGate(st store.Store, opts ...Option) *Gate {
	o := Opts{
		BaseURL:         "http://localhost:8080",
		SessionTTL:      DefaultSessionTTL,
		ConfirmationTTL: DefaultConfirmationTTL,
		Now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Gate{
		store:           st,
		baseURL:         strings.TrimRight(o.BaseURL, "/"),
		sessionTTL:      o.SessionTTL,
		confirmationTTL: o.ConfirmationTTL,
		now:             o.Now,
	}
}

// CreateSession mints a fresh session token for the chat. Any previous
// pending token for the same chat stays in the store until it expires;
// only the token presented to VerifyStudent is ever consumed.
func (g *Gate) CreateSession(chatID string) (*models.VerificationToken, error) {
	raw, err := util.GenerateSecureToken(tokenByteLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	now := g.now()
	token := models.VerificationToken{
		Token:     raw,
		Kind:      models.TokenKindSession,
		ChatID:    chatID,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.sessionTTL),
	}
	if err := g.store.SaveVerificationToken(token); err != nil {
		return nil, fmt.Errorf("failed to save session token: %w", err)
	}
	slog.Debug("Gate.CreateSession: session token issued", "chatID", chatID, "expiresAt", token.ExpiresAt)
	return &token, nil
}

// StartVerification issues a session token and returns the verification
// link to hand to the user. Satisfies the conversation engine's Verifier.
func (g *Gate) StartVerification(ctx context.Context, chatID string) (string, time.Time, error) {
	token, err := g.CreateSession(chatID)
	if err != nil {
		return "", time.Time{}, err
	}
	link := fmt.Sprintf("%s/verify?token=%s", g.baseURL, url.QueryEscape(token.Token))
	return link, token.ExpiresAt, nil
}

// VerifyStudent is phase two of the handshake: the web form presents the
// session token together with the claimed identity. On a roster match the
// session token is consumed and a confirmation token is minted. A failed
// roster lookup leaves the session token in place so the student can
// correct a typo and retry within the TTL.
func (g *Gate) VerifyStudent(fullName, indexNumber, chatID, sessionToken string) (*models.VerificationToken, error) {
	token, err := g.lookupToken(sessionToken, models.TokenKindSession)
	if err != nil {
		return nil, err
	}
	if token.ChatID != chatID {
		slog.Warn("Gate.VerifyStudent: chat mismatch", "tokenChatID", token.ChatID, "claimedChatID", chatID)
		return nil, ErrChatMismatch
	}

	student, err := g.store.FindStudent(fullName, indexNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	if student == nil {
		slog.Info("Gate.VerifyStudent: no roster match", "indexNumber", indexNumber)
		return nil, ErrStudentNotFound
	}

	if err := g.store.DeleteVerificationToken(token.Token); err != nil {
		return nil, fmt.Errorf("failed to consume session token: %w", err)
	}

	now := g.now()
	student.Verified = true
	student.TelegramChatID = chatID
	student.LastVerifiedAt = &now
	student.UpdatedAt = now
	if err := g.store.SaveStudent(*student); err != nil {
		return nil, fmt.Errorf("failed to update student record: %w", err)
	}

	raw, err := util.GenerateSecureToken(tokenByteLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate confirmation token: %w", err)
	}
	confirmation := models.VerificationToken{
		Token:     raw,
		Kind:      models.TokenKindConfirmation,
		ChatID:    chatID,
		StudentID: student.ID,
		Student:   student.Info(),
		IssuedAt:  now,
		ExpiresAt: now.Add(g.confirmationTTL),
	}
	if err := g.store.SaveVerificationToken(confirmation); err != nil {
		return nil, fmt.Errorf("failed to save confirmation token: %w", err)
	}
	slog.Info("Gate.VerifyStudent: student verified", "chatID", chatID, "indexNumber", student.IndexNumber)
	return &confirmation, nil
}

// ConfirmVerification consumes a confirmation token and returns the bound
// record. A non-empty chatID must match the chat the token was issued for.
// The token is single-use: it is deleted before this method returns.
func (g *Gate) ConfirmVerification(confirmationToken, chatID string) (*models.VerificationToken, error) {
	token, err := g.lookupToken(confirmationToken, models.TokenKindConfirmation)
	if err != nil {
		return nil, err
	}
	if chatID != "" && token.ChatID != chatID {
		slog.Warn("Gate.ConfirmVerification: chat mismatch", "tokenChatID", token.ChatID, "claimedChatID", chatID)
		return nil, ErrChatMismatch
	}
	if err := g.store.DeleteVerificationToken(token.Token); err != nil {
		return nil, fmt.Errorf("failed to consume confirmation token: %w", err)
	}
	slog.Info("Gate.ConfirmVerification: confirmation consumed", "chatID", token.ChatID)
	return token, nil
}

// Status reports whether the chat has a verified student bound to it.
func (g *Gate) Status(chatID string) (bool, *models.StudentInfo, error) {
	student, err := g.store.GetStudentByChatID(chatID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to query roster: %w", err)
	}
	if student == nil {
		return false, nil, nil
	}
	return true, student.Info(), nil
}

// Revoke unbinds the chat from its verified student record.
func (g *Gate) Revoke(chatID string) error {
	student, err := g.store.GetStudentByChatID(chatID)
	if err != nil {
		return fmt.Errorf("failed to query roster: %w", err)
	}
	if student == nil {
		return nil
	}
	student.Verified = false
	student.TelegramChatID = ""
	student.UpdatedAt = g.now()
	if err := g.store.SaveStudent(*student); err != nil {
		return fmt.Errorf("failed to update student record: %w", err)
	}
	slog.Info("Gate.Revoke: verification revoked", "chatID", chatID, "indexNumber", student.IndexNumber)
	return nil
}

// lookupToken fetches a token, enforces its kind, and rejects expired ones
// at read time. Expired tokens are deleted opportunistically; the background
// sweeper is an optimization, never the correctness mechanism.
func (g *Gate) lookupToken(raw string, kind models.TokenKind) (*models.VerificationToken, error) {
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	token, err := g.store.GetVerificationToken(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load verification token: %w", err)
	}
	if token == nil || token.Kind != kind {
		return nil, ErrTokenInvalid
	}
	if token.Expired(g.now()) {
		if delErr := g.store.DeleteVerificationToken(token.Token); delErr != nil {
			slog.Warn("Gate.lookupToken: failed to delete expired token", "error", delErr)
		}
		return nil, ErrTokenInvalid
	}
	return token, nil
}
