// Package testutil provides common test utilities and helpers for SafeBot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/store"
)

// MockMessenger records outbound chat messages for assertions.
type MockMessenger struct {
	mu   sync.Mutex
	Sent []SentMessage
	// Err, when set, is returned from every SendMessage call.
	Err error
}

// SentMessage is one recorded outbound message.
type SentMessage struct {
	To   string
	Body string
}

// NewMockMessenger creates an empty mock messenger.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{}
}

// SendMessage records the message.
func (m *MockMessenger) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockMessenger) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// LastMessage returns the most recent message, failing the test when none
// was sent.
func (m *MockMessenger) LastMessage(t *testing.T) SentMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		t.Fatal("no messages were sent")
	}
	return m.Sent[len(m.Sent)-1]
}

// SeedStudent adds a roster entry for verification tests.
func SeedStudent(t *testing.T, st store.Store, fullName, indexNumber string) models.Student {
	t.Helper()
	student := models.Student{
		ID:          "s_test_" + indexNumber,
		FullName:    fullName,
		IndexNumber: indexNumber,
		Department:  "Computer Science",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := st.SaveStudent(student); err != nil {
		t.Fatalf("failed to seed student: %v", err)
	}
	return student
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}
