// Package store provides storage backends for SafeBot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/campussafe/safebot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSession(chatID string) (*models.ConversationSession, error) {
	row := s.db.QueryRow(`SELECT chat_id, phase, step, identity, draft, failed_input_count, created_at, updated_at
		FROM sessions WHERE chat_id = ?`, chatID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "chatID", chatID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to get session for %s: %w", chatID, err)
	}
	return sess, nil
}

func (s *SQLiteStore) SaveSession(session models.ConversationSession) error {
	identity, err := studentInfoJSON(session.Identity)
	if err != nil {
		slog.Error("SQLiteStore SaveSession identity marshal failed", "error", err, "chatID", session.ChatID)
		return err
	}
	draft, err := draftJSON(session.Draft)
	if err != nil {
		slog.Error("SQLiteStore SaveSession draft marshal failed", "error", err, "chatID", session.ChatID)
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO sessions
		(chat_id, phase, step, identity, draft, failed_input_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ChatID, session.Phase, session.Step, identity, draft,
		session.FailedInputCount, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "chatID", session.ChatID)
		return fmt.Errorf("failed to save session for %s: %w", session.ChatID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "chatID", session.ChatID, "phase", session.Phase, "step", session.Step)
	return nil
}

func (s *SQLiteStore) DeleteSession(chatID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE chat_id = ?`, chatID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to delete session for %s: %w", chatID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveVerificationToken(token models.VerificationToken) error {
	student, err := studentInfoJSON(token.Student)
	if err != nil {
		slog.Error("SQLiteStore SaveVerificationToken marshal failed", "error", err)
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO verification_tokens
		(token, kind, chat_id, student_id, student, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.Token, token.Kind, token.ChatID, nilIfEmpty(token.StudentID), student,
		token.IssuedAt, token.ExpiresAt)
	if err != nil {
		slog.Error("SQLiteStore SaveVerificationToken failed", "error", err, "kind", token.Kind)
		return fmt.Errorf("failed to save verification token: %w", err)
	}
	slog.Debug("SQLiteStore SaveVerificationToken succeeded", "kind", token.Kind, "chatID", token.ChatID)
	return nil
}

func (s *SQLiteStore) GetVerificationToken(token string) (*models.VerificationToken, error) {
	row := s.db.QueryRow(`SELECT token, kind, chat_id, student_id, student, issued_at, expires_at
		FROM verification_tokens WHERE token = ?`, token)
	t, err := scanVerificationToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetVerificationToken failed", "error", err)
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) DeleteVerificationToken(token string) error {
	_, err := s.db.Exec(`DELETE FROM verification_tokens WHERE token = ?`, token)
	if err != nil {
		slog.Error("SQLiteStore DeleteVerificationToken failed", "error", err)
		return fmt.Errorf("failed to delete verification token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredVerificationTokens(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM verification_tokens WHERE expires_at <= ?`, now)
	if err != nil {
		slog.Error("SQLiteStore DeleteExpiredVerificationTokens failed", "error", err)
		return 0, fmt.Errorf("failed to sweep expired tokens: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		slog.Debug("SQLiteStore swept expired verification tokens", "count", affected)
	}
	return int(affected), nil
}

func (s *SQLiteStore) FindStudent(fullName, indexNumber string) (*models.Student, error) {
	row := s.db.QueryRow(`SELECT id, full_name, index_number, department, email, verified, telegram_chat_id, last_verified_at, created_at, updated_at
		FROM students WHERE LOWER(full_name) = LOWER(TRIM(?)) AND index_number = UPPER(TRIM(?))`,
		fullName, indexNumber)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindStudent failed", "error", err, "indexNumber", indexNumber)
		return nil, fmt.Errorf("failed to find student: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) GetStudentByIndex(indexNumber string) (*models.Student, error) {
	row := s.db.QueryRow(`SELECT id, full_name, index_number, department, email, verified, telegram_chat_id, last_verified_at, created_at, updated_at
		FROM students WHERE index_number = UPPER(TRIM(?))`, indexNumber)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetStudentByIndex failed", "error", err, "indexNumber", indexNumber)
		return nil, fmt.Errorf("failed to get student by index: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) GetStudentByChatID(chatID string) (*models.Student, error) {
	row := s.db.QueryRow(`SELECT id, full_name, index_number, department, email, verified, telegram_chat_id, last_verified_at, created_at, updated_at
		FROM students WHERE telegram_chat_id = ? AND verified = 1`, chatID)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetStudentByChatID failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to get student by chat id: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) SaveStudent(student models.Student) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO students
		(id, full_name, index_number, department, email, verified, telegram_chat_id, last_verified_at, created_at, updated_at)
		VALUES (?, ?, UPPER(TRIM(?)), ?, ?, ?, ?, ?, ?, ?)`,
		student.ID, student.FullName, student.IndexNumber,
		nilIfEmpty(student.Department), nilIfEmpty(student.Email), student.Verified,
		nilIfEmpty(student.TelegramChatID), student.LastVerifiedAt,
		student.CreatedAt, student.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveStudent failed", "error", err, "indexNumber", student.IndexNumber)
		return fmt.Errorf("failed to save student %s: %w", student.IndexNumber, err)
	}
	return nil
}

func (s *SQLiteStore) AddIncident(incident models.Incident) error {
	student, err := studentInfoJSON(incident.Student)
	if err != nil {
		slog.Error("SQLiteStore AddIncident marshal failed", "error", err, "id", incident.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO incidents
		(id, title, category, description, location, occurred_at, urgency, anonymous, contact_email, status, student, chat_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		incident.ID, incident.Title, incident.Category, incident.Description,
		incident.Location, incident.OccurredAt, incident.Urgency, incident.Anonymous,
		nilIfEmpty(incident.ContactEmail), incident.Status, student,
		nilIfEmpty(incident.ChatID), incident.CreatedAt, incident.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddIncident failed", "error", err, "id", incident.ID)
		return fmt.Errorf("failed to insert incident %s: %w", incident.ID, err)
	}
	slog.Debug("SQLiteStore AddIncident succeeded", "id", incident.ID, "category", incident.Category)
	return nil
}

func (s *SQLiteStore) GetIncidents() ([]models.Incident, error) {
	rows, err := s.db.Query(`SELECT id, title, category, description, location, occurred_at, urgency, anonymous, contact_email, status, student, chat_id, created_at, updated_at
		FROM incidents ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore GetIncidents query failed", "error", err)
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			slog.Error("SQLiteStore GetIncidents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetIncidents rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate incident rows: %w", err)
	}
	slog.Debug("SQLiteStore GetIncidents succeeded", "count", len(incidents))
	return incidents, nil
}

func (s *SQLiteStore) GetIncident(id string) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT id, title, category, description, location, occurred_at, urgency, anonymous, contact_email, status, student, chat_id, created_at, updated_at
		FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetIncident failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get incident %s: %w", id, err)
	}
	return inc, nil
}

func (s *SQLiteStore) GetAdminByEmail(email string) (*models.Admin, error) {
	row := s.db.QueryRow(`SELECT id, email, name, password_hash, created_at
		FROM admins WHERE email = LOWER(TRIM(?))`, email)
	a, err := scanAdmin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetAdminByEmail failed", "error", err)
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) SaveAdmin(admin models.Admin) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO admins (id, email, name, password_hash, created_at)
		VALUES (?, LOWER(TRIM(?)), ?, ?, ?)`,
		admin.ID, admin.Email, nilIfEmpty(admin.Name), admin.PasswordHash, admin.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveAdmin failed", "error", err, "email", admin.Email)
		return fmt.Errorf("failed to save admin %s: %w", admin.Email, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
