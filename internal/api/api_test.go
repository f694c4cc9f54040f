package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/store"
	"github.com/campussafe/safebot/internal/testutil"
	"github.com/campussafe/safebot/internal/verify"
)

const testJWTSecret = "test-secret"

type recordingNotifier struct {
	verified []string
	revoked  []string
}

func (n *recordingNotifier) OnVerified(ctx context.Context, chatID string, identity *models.StudentInfo) error {
	n.verified = append(n.verified, chatID)
	return nil
}

func (n *recordingNotifier) OnRevoked(ctx context.Context, chatID string) error {
	n.revoked = append(n.revoked, chatID)
	return nil
}

type serverFixture struct {
	server   *Server
	mux      *http.ServeMux
	st       store.Store
	gate     *verify.Gate
	notifier *recordingNotifier
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	st := store.NewInMemoryStore()
	gate := verify.NewGate(st, verify.WithBaseURL("https://safebot.example.edu"))
	notifier := &recordingNotifier{}
	server, err := NewServer(st, gate, notifier, WithJWTSecret(testJWTSecret))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return &serverFixture{
		server:   server,
		mux:      server.routes(),
		st:       st,
		gate:     gate,
		notifier: notifier,
	}
}

func (f *serverFixture) do(t *testing.T, method, url string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, method, url, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func (f *serverFixture) adminToken(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2secure"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	admin := models.Admin{
		ID:           "a_test",
		Email:        "security@campus.edu",
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := f.st.SaveAdmin(admin); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	rr := f.do(t, http.MethodPost, "/api/admin/login", map[string]string{
		"email":    "security@campus.edu",
		"password": "hunter2secure",
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "admin login")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	token, _ := result["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)
	rr := f.do(t, http.MethodGet, "/health", nil, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
}

func TestCreateIncident(t *testing.T) {
	f := newServerFixture(t)

	rr := f.do(t, http.MethodPost, "/api/incidents", map[string]interface{}{
		"title":         "Broken streetlight",
		"category":      "Safety Violation",
		"description":   "the path behind the library is dark",
		"location":      "Library path",
		"occurred_at":   time.Now().Add(-time.Hour).Format(time.RFC3339),
		"anonymous":     false,
		"contact_email": "student@campus.edu",
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create incident")
	testutil.AssertJSONResponse(t, rr, "ok")

	incidents, err := f.st.GetIncidents()
	if err != nil || len(incidents) != 1 {
		t.Fatalf("expected 1 stored incident, got %d (%v)", len(incidents), err)
	}
	if incidents[0].Status != models.IncidentStatusPending {
		t.Errorf("status = %q, want pending", incidents[0].Status)
	}
	if incidents[0].Urgency != models.DefaultUrgency {
		t.Errorf("urgency = %q, want default", incidents[0].Urgency)
	}
}

func TestCreateIncidentValidation(t *testing.T) {
	f := newServerFixture(t)

	// Missing title.
	rr := f.do(t, http.MethodPost, "/api/incidents", map[string]interface{}{
		"category":    "Theft",
		"description": "x",
		"location":    "y",
		"occurred_at": time.Now().Format(time.RFC3339),
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing title")

	// Unknown category.
	rr = f.do(t, http.MethodPost, "/api/incidents", map[string]interface{}{
		"title":       "t",
		"category":    "Gossip",
		"description": "x",
		"location":    "y",
		"occurred_at": time.Now().Format(time.RFC3339),
		"anonymous":   true,
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "bad category")

	if incidents, _ := f.st.GetIncidents(); len(incidents) != 0 {
		t.Errorf("invalid submissions must not be stored, got %d", len(incidents))
	}
}

func TestListIncidentsRequiresAdmin(t *testing.T) {
	f := newServerFixture(t)

	rr := f.do(t, http.MethodGet, "/api/incidents", nil, nil)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "no token")

	rr = f.do(t, http.MethodGet, "/api/incidents", nil, map[string]string{
		"Authorization": "Bearer not-a-jwt",
	})
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "garbage token")

	token := f.adminToken(t)
	rr = f.do(t, http.MethodGet, "/api/incidents", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "valid token")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestAdminLoginRejectsBadCredentials(t *testing.T) {
	f := newServerFixture(t)
	f.adminToken(t) // seeds the admin

	rr := f.do(t, http.MethodPost, "/api/admin/login", map[string]string{
		"email":    "security@campus.edu",
		"password": "wrong",
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "wrong password")

	rr = f.do(t, http.MethodPost, "/api/admin/login", map[string]string{
		"email":    "nobody@campus.edu",
		"password": "hunter2secure",
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "unknown email")
}

func TestVerificationHandshake(t *testing.T) {
	f := newServerFixture(t)
	testutil.SeedStudent(t, f.st, "Ama Mensah", "UG12345")

	// Phase one: mint a session token for the chat.
	rr := f.do(t, http.MethodPost, "/api/auth/create-session", map[string]string{"chat_id": "chat-1"}, nil)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	sessionToken, _ := result["session_token"].(string)
	if sessionToken == "" {
		t.Fatal("no session token returned")
	}

	// Phase two: the form submits identity plus the session token.
	rr = f.do(t, http.MethodPost, "/api/auth/verify-student", map[string]string{
		"full_name":     "Ama Mensah",
		"index_number":  "UG12345",
		"chat_id":       "chat-1",
		"session_token": sessionToken,
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "verify student")
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	result, _ = resp["result"].(map[string]interface{})
	confirmationToken, _ := result["confirmation_token"].(string)
	if confirmationToken == "" {
		t.Fatal("no confirmation token returned")
	}

	// Confirmation consumes the token and notifies the chat.
	rr = f.do(t, http.MethodPost, "/api/auth/confirm-verification", map[string]string{
		"token":   confirmationToken,
		"chat_id": "chat-1",
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "confirm verification")
	if len(f.notifier.verified) != 1 || f.notifier.verified[0] != "chat-1" {
		t.Errorf("engine not notified: %v", f.notifier.verified)
	}

	// Single use: the same confirmation token is rejected the second time.
	rr = f.do(t, http.MethodPost, "/api/auth/confirm-verification", map[string]string{
		"token":   confirmationToken,
		"chat_id": "chat-1",
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "confirmation replay")

	// Status now reports verified.
	rr = f.do(t, http.MethodGet, "/api/auth/verification-status/chat-1", nil, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "verification status")
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	result, _ = resp["result"].(map[string]interface{})
	if verified, _ := result["verified"].(bool); !verified {
		t.Error("chat should report verified")
	}
}

func TestVerifyStudentUnknownIdentity(t *testing.T) {
	f := newServerFixture(t)

	rr := f.do(t, http.MethodPost, "/api/auth/create-session", map[string]string{"chat_id": "chat-1"}, nil)
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	sessionToken, _ := result["session_token"].(string)

	rr = f.do(t, http.MethodPost, "/api/auth/verify-student", map[string]string{
		"full_name":     "Nobody Real",
		"index_number":  "UG00000",
		"chat_id":       "chat-1",
		"session_token": sessionToken,
	}, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown student")
}

func TestRevokeVerification(t *testing.T) {
	f := newServerFixture(t)
	student := testutil.SeedStudent(t, f.st, "Ama Mensah", "UG12345")
	student.Verified = true
	student.TelegramChatID = "chat-1"
	if err := f.st.SaveStudent(student); err != nil {
		t.Fatalf("failed to bind student: %v", err)
	}
	token := f.adminToken(t)

	rr := f.do(t, http.MethodPost, "/api/auth/revoke-verification",
		map[string]string{"chat_id": "chat-1"},
		map[string]string{"Authorization": "Bearer " + token})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "revoke")
	if len(f.notifier.revoked) != 1 || f.notifier.revoked[0] != "chat-1" {
		t.Errorf("engine not notified of revocation: %v", f.notifier.revoked)
	}

	rr = f.do(t, http.MethodGet, "/api/auth/verification-status/chat-1", nil, nil)
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	if verified, _ := result["verified"].(bool); verified {
		t.Error("chat should be unverified after revoke")
	}
}

func TestRevokeVerificationRequiresAdmin(t *testing.T) {
	f := newServerFixture(t)
	rr := f.do(t, http.MethodPost, "/api/auth/revoke-verification", map[string]string{"chat_id": "chat-1"}, nil)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "no token")
}
