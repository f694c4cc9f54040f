// Package store provides storage backends for SafeBot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/campussafe/safebot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(chatID string) (*models.ConversationSession, error) {
	row := s.db.QueryRow(`SELECT chat_id, phase, step, identity, draft, failed_input_count, created_at, updated_at
		FROM sessions WHERE chat_id = $1`, chatID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "chatID", chatID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to get session for %s: %w", chatID, err)
	}
	return sess, nil
}

func (s *PostgresStore) SaveSession(session models.ConversationSession) error {
	identity, err := studentInfoJSON(session.Identity)
	if err != nil {
		slog.Error("PostgresStore SaveSession identity marshal failed", "error", err, "chatID", session.ChatID)
		return err
	}
	draft, err := draftJSON(session.Draft)
	if err != nil {
		slog.Error("PostgresStore SaveSession draft marshal failed", "error", err, "chatID", session.ChatID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions
		(chat_id, phase, step, identity, draft, failed_input_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chat_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			step = EXCLUDED.step,
			identity = EXCLUDED.identity,
			draft = EXCLUDED.draft,
			failed_input_count = EXCLUDED.failed_input_count,
			updated_at = EXCLUDED.updated_at`,
		session.ChatID, session.Phase, session.Step, identity, draft,
		session.FailedInputCount, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "chatID", session.ChatID)
		return fmt.Errorf("failed to save session for %s: %w", session.ChatID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "chatID", session.ChatID, "phase", session.Phase, "step", session.Step)
	return nil
}

func (s *PostgresStore) DeleteSession(chatID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE chat_id = $1`, chatID)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to delete session for %s: %w", chatID, err)
	}
	return nil
}

func (s *PostgresStore) SaveVerificationToken(token models.VerificationToken) error {
	student, err := studentInfoJSON(token.Student)
	if err != nil {
		slog.Error("PostgresStore SaveVerificationToken marshal failed", "error", err)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO verification_tokens
		(token, kind, chat_id, student_id, student, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token) DO UPDATE SET
			kind = EXCLUDED.kind,
			chat_id = EXCLUDED.chat_id,
			student_id = EXCLUDED.student_id,
			student = EXCLUDED.student,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at`,
		token.Token, token.Kind, token.ChatID, nilIfEmpty(token.StudentID), student,
		token.IssuedAt, token.ExpiresAt)
	if err != nil {
		slog.Error("PostgresStore SaveVerificationToken failed", "error", err, "kind", token.Kind)
		return fmt.Errorf("failed to save verification token: %w", err)
	}
	slog.Debug("PostgresStore SaveVerificationToken succeeded", "kind", token.Kind, "chatID", token.ChatID)
	return nil
}

func (s *PostgresStore) GetVerificationToken(token string) (*models.VerificationToken, error) {
	row := s.db.QueryRow(`SELECT token, kind, chat_id, student_id, student, issued_at, expires_at
		FROM verification_tokens WHERE token = $1`, token)
	t, err := scanVerificationToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetVerificationToken failed", "error", err)
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) DeleteVerificationToken(token string) error {
	_, err := s.db.Exec(`DELETE FROM verification_tokens WHERE token = $1`, token)
	if err != nil {
		slog.Error("PostgresStore DeleteVerificationToken failed", "error", err)
		return fmt.Errorf("failed to delete verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredVerificationTokens(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM verification_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		slog.Error("PostgresStore DeleteExpiredVerificationTokens failed", "error", err)
		return 0, fmt.Errorf("failed to sweep expired tokens: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		slog.Debug("PostgresStore swept expired verification tokens", "count", affected)
	}
	return int(affected), nil
}

func (s *PostgresStore) FindStudent(fullName, indexNumber string) (*models.Student, error) {
	row := s.db.QueryRow(`SELECT id, full_name, index_number, department, email, verified, telegram_chat_id, last_verified_at, created_at, updated_at
		FROM students WHERE LOWER(full_name) = LOWER(TRIM($1)) AND index_number = UPPER(TRIM($2))`,
		fullName, indexNumber)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindStudent failed", "error", err, "indexNumber", indexNumber)
		return nil, fmt.Errorf("failed to find student: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) GetStudentByIndex(indexNumber string) (*models.Student, error) {
	row := s.db.QueryRow(`SELECT id, full_name, index_number, department, email, verified, telegram_chat_id, last_verified_at, created_at, updated_at
		FROM students WHERE index_number = UPPER(TRIM($1))`, indexNumber)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetStudentByIndex failed", "error", err, "indexNumber", indexNumber)
		return nil, fmt.Errorf("failed to get student by index: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) GetStudentByChatID(chatID string) (*models.Student, error) {
	row := s.db.QueryRow(`SELECT id, full_name, index_number, department, email, verified, telegram_chat_id, last_verified_at, created_at, updated_at
		FROM students WHERE telegram_chat_id = $1 AND verified = TRUE`, chatID)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetStudentByChatID failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to get student by chat id: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) SaveStudent(student models.Student) error {
	_, err := s.db.Exec(`INSERT INTO students
		(id, full_name, index_number, department, email, verified, telegram_chat_id, last_verified_at, created_at, updated_at)
		VALUES ($1, $2, UPPER(TRIM($3)), $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (index_number) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			department = EXCLUDED.department,
			email = EXCLUDED.email,
			verified = EXCLUDED.verified,
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			last_verified_at = EXCLUDED.last_verified_at,
			updated_at = EXCLUDED.updated_at`,
		student.ID, student.FullName, student.IndexNumber,
		nilIfEmpty(student.Department), nilIfEmpty(student.Email), student.Verified,
		nilIfEmpty(student.TelegramChatID), student.LastVerifiedAt,
		student.CreatedAt, student.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveStudent failed", "error", err, "indexNumber", student.IndexNumber)
		return fmt.Errorf("failed to save student %s: %w", student.IndexNumber, err)
	}
	return nil
}

func (s *PostgresStore) AddIncident(incident models.Incident) error {
	student, err := studentInfoJSON(incident.Student)
	if err != nil {
		slog.Error("PostgresStore AddIncident marshal failed", "error", err, "id", incident.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO incidents
		(id, title, category, description, location, occurred_at, urgency, anonymous, contact_email, status, student, chat_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		incident.ID, incident.Title, incident.Category, incident.Description,
		incident.Location, incident.OccurredAt, incident.Urgency, incident.Anonymous,
		nilIfEmpty(incident.ContactEmail), incident.Status, student,
		nilIfEmpty(incident.ChatID), incident.CreatedAt, incident.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore AddIncident failed", "error", err, "id", incident.ID)
		return fmt.Errorf("failed to insert incident %s: %w", incident.ID, err)
	}
	slog.Debug("PostgresStore AddIncident succeeded", "id", incident.ID, "category", incident.Category)
	return nil
}

func (s *PostgresStore) GetIncidents() ([]models.Incident, error) {
	rows, err := s.db.Query(`SELECT id, title, category, description, location, occurred_at, urgency, anonymous, contact_email, status, student, chat_id, created_at, updated_at
		FROM incidents ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore GetIncidents query failed", "error", err)
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			slog.Error("PostgresStore GetIncidents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetIncidents rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate incident rows: %w", err)
	}
	slog.Debug("PostgresStore GetIncidents succeeded", "count", len(incidents))
	return incidents, nil
}

func (s *PostgresStore) GetIncident(id string) (*models.Incident, error) {
	row := s.db.QueryRow(`SELECT id, title, category, description, location, occurred_at, urgency, anonymous, contact_email, status, student, chat_id, created_at, updated_at
		FROM incidents WHERE id = $1`, id)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetIncident failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get incident %s: %w", id, err)
	}
	return inc, nil
}

func (s *PostgresStore) GetAdminByEmail(email string) (*models.Admin, error) {
	row := s.db.QueryRow(`SELECT id, email, name, password_hash, created_at
		FROM admins WHERE email = LOWER(TRIM($1))`, email)
	a, err := scanAdmin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetAdminByEmail failed", "error", err)
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) SaveAdmin(admin models.Admin) error {
	_, err := s.db.Exec(`INSERT INTO admins (id, email, name, password_hash, created_at)
		VALUES ($1, LOWER(TRIM($2)), $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			password_hash = EXCLUDED.password_hash`,
		admin.ID, admin.Email, nilIfEmpty(admin.Name), admin.PasswordHash, admin.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveAdmin failed", "error", err, "email", admin.Email)
		return fmt.Errorf("failed to save admin %s: %w", admin.Email, err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
