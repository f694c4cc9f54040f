package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/campussafe/safebot/internal/models"
)

// runStoreTests exercises the Store contract against a backend.
func runStoreTests(t *testing.T, st Store) {
	t.Run("sessions", func(t *testing.T) { testSessions(t, st) })
	t.Run("tokens", func(t *testing.T) { testTokens(t, st) })
	t.Run("students", func(t *testing.T) { testStudents(t, st) })
	t.Run("incidents", func(t *testing.T) { testIncidents(t, st) })
	t.Run("admins", func(t *testing.T) { testAdmins(t, st) })
}

func TestInMemoryStore(t *testing.T) {
	runStoreTests(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "safebot-test.db")
	st, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("failed to open SQLite store: %v", err)
	}
	defer st.Close()
	runStoreTests(t, st)
}

func testSessions(t *testing.T, st Store) {
	missing, err := st.GetSession("nobody")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing session, got %+v", missing)
	}

	now := time.Now().UTC().Truncate(time.Second)
	occurred := now.Add(-2 * time.Hour)
	sess := models.ConversationSession{
		ChatID: "chat-1",
		Phase:  models.PhaseVerified,
		Step:   models.StepLocation,
		Identity: &models.StudentInfo{
			Name:        "Ama Mensah",
			IndexNumber: "UG12345",
			Department:  "Physics",
		},
		Draft: models.IncidentDraft{
			Title:      "Broken railing",
			Category:   models.CategorySafetyViolation,
			OccurredAt: &occurred,
		},
		FailedInputCount: 1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := st.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	loaded, err := st.GetSession("chat-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("session not found after save")
	}
	if loaded.Phase != models.PhaseVerified || loaded.Step != models.StepLocation {
		t.Errorf("phase/step = %q/%q", loaded.Phase, loaded.Step)
	}
	if loaded.Identity == nil || loaded.Identity.IndexNumber != "UG12345" {
		t.Errorf("identity not round-tripped: %+v", loaded.Identity)
	}
	if loaded.Draft.Title != "Broken railing" || loaded.Draft.Category != models.CategorySafetyViolation {
		t.Errorf("draft not round-tripped: %+v", loaded.Draft)
	}
	if loaded.Draft.OccurredAt == nil || !loaded.Draft.OccurredAt.Equal(occurred) {
		t.Errorf("draft occurredAt = %v, want %v", loaded.Draft.OccurredAt, occurred)
	}
	if loaded.FailedInputCount != 1 {
		t.Errorf("failedInputCount = %d", loaded.FailedInputCount)
	}

	// Save is a full replace.
	sess.Step = models.StepNone
	sess.Draft = models.IncidentDraft{}
	if err := st.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession replace failed: %v", err)
	}
	loaded, _ = st.GetSession("chat-1")
	if loaded.Step != models.StepNone || loaded.Draft.Title != "" {
		t.Errorf("replace did not clear flow state: %+v", loaded)
	}

	if err := st.DeleteSession("chat-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	loaded, _ = st.GetSession("chat-1")
	if loaded != nil {
		t.Errorf("session survived delete: %+v", loaded)
	}
}

func testTokens(t *testing.T, st Store) {
	now := time.Now().UTC().Truncate(time.Second)
	token := models.VerificationToken{
		Token:     "tok-alive",
		Kind:      models.TokenKindSession,
		ChatID:    "chat-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
	if err := st.SaveVerificationToken(token); err != nil {
		t.Fatalf("SaveVerificationToken failed: %v", err)
	}

	confirmation := models.VerificationToken{
		Token:     "tok-expired",
		Kind:      models.TokenKindConfirmation,
		ChatID:    "chat-1",
		StudentID: "s_1",
		Student:   &models.StudentInfo{Name: "Ama Mensah", IndexNumber: "UG12345"},
		IssuedAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(-30 * time.Minute),
	}
	if err := st.SaveVerificationToken(confirmation); err != nil {
		t.Fatalf("SaveVerificationToken failed: %v", err)
	}

	loaded, err := st.GetVerificationToken("tok-expired")
	if err != nil {
		t.Fatalf("GetVerificationToken failed: %v", err)
	}
	if loaded == nil || loaded.Kind != models.TokenKindConfirmation {
		t.Fatalf("token not round-tripped: %+v", loaded)
	}
	if loaded.Student == nil || loaded.Student.Name != "Ama Mensah" {
		t.Errorf("student snapshot not round-tripped: %+v", loaded.Student)
	}
	if !loaded.Expired(now) {
		t.Error("token should report expired")
	}

	removed, err := st.DeleteExpiredVerificationTokens(now)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("sweep removed %d, want 1", removed)
	}
	if gone, _ := st.GetVerificationToken("tok-expired"); gone != nil {
		t.Error("expired token survived sweep")
	}
	if alive, _ := st.GetVerificationToken("tok-alive"); alive == nil {
		t.Error("live token removed by sweep")
	}

	if err := st.DeleteVerificationToken("tok-alive"); err != nil {
		t.Fatalf("DeleteVerificationToken failed: %v", err)
	}
	if gone, _ := st.GetVerificationToken("tok-alive"); gone != nil {
		t.Error("token survived delete")
	}
}

func testStudents(t *testing.T, st Store) {
	now := time.Now().UTC().Truncate(time.Second)
	student := models.Student{
		ID:          "s_1",
		FullName:    "Ama Mensah",
		IndexNumber: "ug12345",
		Department:  "Physics",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := st.SaveStudent(student); err != nil {
		t.Fatalf("SaveStudent failed: %v", err)
	}

	// Lookup is case-insensitive on both fields.
	found, err := st.FindStudent("AMA MENSAH", "UG12345")
	if err != nil {
		t.Fatalf("FindStudent failed: %v", err)
	}
	if found == nil {
		t.Fatal("student not found")
	}
	if found.IndexNumber != "UG12345" {
		t.Errorf("index number not canonicalized: %q", found.IndexNumber)
	}

	if miss, _ := st.FindStudent("Ama Mensah", "UG99999"); miss != nil {
		t.Errorf("unexpected match: %+v", miss)
	}
	if miss, _ := st.FindStudent("Someone Else", "UG12345"); miss != nil {
		t.Errorf("name mismatch should not match: %+v", miss)
	}

	// Chat binding only resolves verified students.
	if bound, _ := st.GetStudentByChatID("chat-9"); bound != nil {
		t.Errorf("unexpected chat binding: %+v", bound)
	}
	found.Verified = true
	found.TelegramChatID = "chat-9"
	if err := st.SaveStudent(*found); err != nil {
		t.Fatalf("SaveStudent update failed: %v", err)
	}
	bound, err := st.GetStudentByChatID("chat-9")
	if err != nil || bound == nil {
		t.Fatalf("chat binding lookup failed: %v, %v", bound, err)
	}
	if bound.IndexNumber != "UG12345" {
		t.Errorf("wrong student bound: %+v", bound)
	}

	byIndex, err := st.GetStudentByIndex(" ug12345 ")
	if err != nil || byIndex == nil {
		t.Fatalf("GetStudentByIndex failed: %v, %v", byIndex, err)
	}
}

func testIncidents(t *testing.T, st Store) {
	now := time.Now().UTC().Truncate(time.Second)
	older := models.Incident{
		ID:          "inc-1",
		Title:       "Broken window",
		Category:    models.CategorySafetyViolation,
		Description: "glass on the stairs",
		Location:    "Block C",
		OccurredAt:  now.Add(-3 * time.Hour),
		Urgency:     models.UrgencyMedium,
		Anonymous:   true,
		Status:      models.IncidentStatusPending,
		CreatedAt:   now.Add(-time.Hour),
		UpdatedAt:   now.Add(-time.Hour),
	}
	newer := models.Incident{
		ID:          "inc-2",
		Title:       "Stolen laptop",
		Category:    models.CategoryTheft,
		Description: "taken from the reading room",
		Location:    "Library",
		OccurredAt:  now.Add(-time.Hour),
		Urgency:     models.UrgencyHigh,
		Status:      models.IncidentStatusPending,
		Student:     &models.StudentInfo{Name: "Ama Mensah", IndexNumber: "UG12345"},
		ChatID:      "chat-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := st.AddIncident(older); err != nil {
		t.Fatalf("AddIncident failed: %v", err)
	}
	if err := st.AddIncident(newer); err != nil {
		t.Fatalf("AddIncident failed: %v", err)
	}

	incidents, err := st.GetIncidents()
	if err != nil {
		t.Fatalf("GetIncidents failed: %v", err)
	}
	if len(incidents) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(incidents))
	}
	if incidents[0].ID != "inc-2" {
		t.Errorf("expected newest first, got %q", incidents[0].ID)
	}
	if incidents[0].Student == nil || incidents[0].Student.IndexNumber != "UG12345" {
		t.Errorf("student snapshot not round-tripped: %+v", incidents[0].Student)
	}

	single, err := st.GetIncident("inc-1")
	if err != nil || single == nil {
		t.Fatalf("GetIncident failed: %v, %v", single, err)
	}
	if !single.Anonymous || single.Title != "Broken window" {
		t.Errorf("incident not round-tripped: %+v", single)
	}
	if miss, _ := st.GetIncident("inc-404"); miss != nil {
		t.Errorf("unexpected incident: %+v", miss)
	}
}

func testAdmins(t *testing.T, st Store) {
	admin := models.Admin{
		ID:           "a_1",
		Email:        "Security@Campus.Edu",
		Name:         "Security Desk",
		PasswordHash: "$2a$10$fakehashfortestingonly",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := st.SaveAdmin(admin); err != nil {
		t.Fatalf("SaveAdmin failed: %v", err)
	}
	loaded, err := st.GetAdminByEmail("security@campus.edu")
	if err != nil || loaded == nil {
		t.Fatalf("GetAdminByEmail failed: %v, %v", loaded, err)
	}
	if loaded.PasswordHash != admin.PasswordHash {
		t.Errorf("password hash not round-tripped")
	}
	if miss, _ := st.GetAdminByEmail("nobody@campus.edu"); miss != nil {
		t.Errorf("unexpected admin: %+v", miss)
	}
}
