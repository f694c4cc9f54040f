package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/campussafe/safebot/internal/models"
)

// rowScanner abstracts sql.Row and sql.Rows so the scan helpers work for both.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// studentInfoJSON marshals an identity snapshot for a nullable JSON column.
func studentInfoJSON(info *models.StudentInfo) (interface{}, error) {
	if info == nil {
		return nil, nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal student info failed: %w", err)
	}
	return string(data), nil
}

// draftJSON marshals the incident draft for a nullable JSON column.
// An empty draft is stored as NULL.
func draftJSON(draft models.IncidentDraft) (interface{}, error) {
	if draft == (models.IncidentDraft{}) {
		return nil, nil
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("marshal draft failed: %w", err)
	}
	return string(data), nil
}

// scanSession scans a ConversationSession row.
func scanSession(row rowScanner) (*models.ConversationSession, error) {
	var sess models.ConversationSession
	var identity, draft sql.NullString
	err := row.Scan(&sess.ChatID, &sess.Phase, &sess.Step, &identity, &draft,
		&sess.FailedInputCount, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if identity.Valid && identity.String != "" {
		var info models.StudentInfo
		if err := json.Unmarshal([]byte(identity.String), &info); err != nil {
			return nil, fmt.Errorf("unmarshal session identity failed: %w", err)
		}
		sess.Identity = &info
	}
	if draft.Valid && draft.String != "" {
		if err := json.Unmarshal([]byte(draft.String), &sess.Draft); err != nil {
			return nil, fmt.Errorf("unmarshal session draft failed: %w", err)
		}
	}
	return &sess, nil
}

// scanVerificationToken scans a VerificationToken row.
func scanVerificationToken(row rowScanner) (*models.VerificationToken, error) {
	var t models.VerificationToken
	var studentID, student sql.NullString
	err := row.Scan(&t.Token, &t.Kind, &t.ChatID, &studentID, &student,
		&t.IssuedAt, &t.ExpiresAt)
	if err != nil {
		return nil, err
	}
	t.StudentID = studentID.String
	if student.Valid && student.String != "" {
		var info models.StudentInfo
		if err := json.Unmarshal([]byte(student.String), &info); err != nil {
			return nil, fmt.Errorf("unmarshal token student failed: %w", err)
		}
		t.Student = &info
	}
	return &t, nil
}

// scanStudent scans a Student row.
func scanStudent(row rowScanner) (*models.Student, error) {
	var st models.Student
	var department, email, chatID sql.NullString
	var lastVerified sql.NullTime
	err := row.Scan(&st.ID, &st.FullName, &st.IndexNumber, &department, &email,
		&st.Verified, &chatID, &lastVerified, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	st.Department = department.String
	st.Email = email.String
	st.TelegramChatID = chatID.String
	if lastVerified.Valid {
		st.LastVerifiedAt = &lastVerified.Time
	}
	return &st, nil
}

// scanIncident scans an Incident row.
func scanIncident(row rowScanner) (*models.Incident, error) {
	var inc models.Incident
	var contactEmail, student, chatID sql.NullString
	err := row.Scan(&inc.ID, &inc.Title, &inc.Category, &inc.Description,
		&inc.Location, &inc.OccurredAt, &inc.Urgency, &inc.Anonymous,
		&contactEmail, &inc.Status, &student, &chatID, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inc.ContactEmail = contactEmail.String
	inc.ChatID = chatID.String
	if student.Valid && student.String != "" {
		var info models.StudentInfo
		if err := json.Unmarshal([]byte(student.String), &info); err != nil {
			return nil, fmt.Errorf("unmarshal incident student failed: %w", err)
		}
		inc.Student = &info
	}
	return &inc, nil
}

// scanAdmin scans an Admin row.
func scanAdmin(row rowScanner) (*models.Admin, error) {
	var a models.Admin
	var name sql.NullString
	err := row.Scan(&a.ID, &a.Email, &name, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Name = name.String
	return &a, nil
}
