// Package store provides storage backends for SafeBot.
//
// It defines the Store interface over conversation sessions, verification
// tokens, the student roster, incident reports, and admin accounts, with
// in-memory, SQLite, and PostgreSQL implementations.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campussafe/safebot/internal/models"
)

// Store is the persistence abstraction every SafeBot module goes through.
// The conversation engine must not assume process-local memory, so the same
// logic works over the in-memory, SQLite, or Postgres backends.
type Store interface {
	// Sessions.
	GetSession(chatID string) (*models.ConversationSession, error)
	SaveSession(session models.ConversationSession) error
	DeleteSession(chatID string) error

	// Verification tokens.
	SaveVerificationToken(token models.VerificationToken) error
	GetVerificationToken(token string) (*models.VerificationToken, error)
	DeleteVerificationToken(token string) error
	// DeleteExpiredVerificationTokens removes tokens past expiry and returns
	// how many were swept. Lookup-time expiry checks do not depend on it.
	DeleteExpiredVerificationTokens(now time.Time) (int, error)

	// Student roster.
	FindStudent(fullName, indexNumber string) (*models.Student, error)
	GetStudentByIndex(indexNumber string) (*models.Student, error)
	GetStudentByChatID(chatID string) (*models.Student, error)
	SaveStudent(student models.Student) error

	// Incident reports.
	AddIncident(incident models.Incident) error
	GetIncidents() ([]models.Incident, error)
	GetIncident(id string) (*models.Incident, error)

	// Admin accounts.
	GetAdminByEmail(email string) (*models.Admin, error)
	SaveAdmin(admin models.Admin) error

	Close() error
}

// InMemoryStore is a map-backed Store used in tests and for single-process
// deployments without a database.
type InMemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]models.ConversationSession
	tokens    map[string]models.VerificationToken
	students  map[string]models.Student // keyed by uppercase index number
	incidents []models.Incident
	admins    map[string]models.Admin // keyed by lowercase email
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.ConversationSession),
		tokens:   make(map[string]models.VerificationToken),
		students: make(map[string]models.Student),
		admins:   make(map[string]models.Admin),
	}
}

func (s *InMemoryStore) GetSession(chatID string) (*models.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return nil, nil
	}
	copied := sess
	return &copied, nil
}

func (s *InMemoryStore) SaveSession(session models.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ChatID] = session
	return nil
}

func (s *InMemoryStore) DeleteSession(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	return nil
}

func (s *InMemoryStore) SaveVerificationToken(token models.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Token] = token
	return nil
}

func (s *InMemoryStore) GetVerificationToken(token string) (*models.VerificationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	copied := t
	return &copied, nil
}

func (s *InMemoryStore) DeleteVerificationToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *InMemoryStore) DeleteExpiredVerificationTokens(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, key)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStore) FindStudent(fullName, indexNumber string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[strings.ToUpper(strings.TrimSpace(indexNumber))]
	if !ok {
		return nil, nil
	}
	if !strings.EqualFold(strings.TrimSpace(fullName), st.FullName) {
		return nil, nil
	}
	copied := st
	return &copied, nil
}

func (s *InMemoryStore) GetStudentByIndex(indexNumber string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[strings.ToUpper(strings.TrimSpace(indexNumber))]
	if !ok {
		return nil, nil
	}
	copied := st
	return &copied, nil
}

func (s *InMemoryStore) GetStudentByChatID(chatID string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.students {
		if st.TelegramChatID == chatID && st.Verified {
			copied := st
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) SaveStudent(student models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	student.IndexNumber = strings.ToUpper(strings.TrimSpace(student.IndexNumber))
	s.students[student.IndexNumber] = student
	return nil
}

func (s *InMemoryStore) AddIncident(incident models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, incident)
	return nil
}

func (s *InMemoryStore) GetIncidents() ([]models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Incident, len(s.incidents))
	copy(out, s.incidents)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) GetIncident(id string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inc := range s.incidents {
		if inc.ID == id {
			copied := inc
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetAdminByEmail(email string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, nil
	}
	copied := a
	return &copied, nil
}

func (s *InMemoryStore) SaveAdmin(admin models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[strings.ToLower(strings.TrimSpace(admin.Email))] = admin
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
