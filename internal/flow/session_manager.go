package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/store"
)

// StoreBasedSessionManager implements SessionManager using a Store backend.
type StoreBasedSessionManager struct {
	store store.Store
}

// NewStoreBasedSessionManager creates a SessionManager backed by a Store.
func NewStoreBasedSessionManager(st store.Store) *StoreBasedSessionManager {
	slog.Debug("Creating StoreBasedSessionManager")
	return &StoreBasedSessionManager{store: st}
}

// Get retrieves the session for a chat, creating a fresh empty one if none
// exists. The fresh session is not persisted until the first Save.
func (sm *StoreBasedSessionManager) Get(ctx context.Context, chatID string) (*models.ConversationSession, error) {
	sess, err := sm.store.GetSession(chatID)
	if err != nil {
		slog.Error("SessionManager Get error", "error", err, "chatID", chatID)
		return nil, err
	}
	if sess == nil {
		slog.Debug("SessionManager Get creating new session", "chatID", chatID)
		return models.NewConversationSession(chatID), nil
	}
	slog.Debug("SessionManager Get found", "chatID", chatID, "phase", sess.Phase, "step", sess.Step)
	return sess, nil
}

// Save persists the session as a full replace.
func (sm *StoreBasedSessionManager) Save(ctx context.Context, session *models.ConversationSession) error {
	session.UpdatedAt = time.Now()
	if err := sm.store.SaveSession(*session); err != nil {
		slog.Error("SessionManager Save error", "error", err, "chatID", session.ChatID)
		return err
	}
	slog.Debug("SessionManager Save succeeded", "chatID", session.ChatID, "phase", session.Phase, "step", session.Step)
	return nil
}

// Reset replaces the chat's session with the initial empty state.
func (sm *StoreBasedSessionManager) Reset(ctx context.Context, chatID string) error {
	if err := sm.store.SaveSession(*models.NewConversationSession(chatID)); err != nil {
		slog.Error("SessionManager Reset error", "error", err, "chatID", chatID)
		return err
	}
	slog.Info("SessionManager Reset succeeded", "chatID", chatID)
	return nil
}
