package alert

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/store"
	"github.com/campussafe/safebot/internal/twiliosms"
)

func pendingIncident(id string, category models.Category) models.Incident {
	now := time.Now()
	return models.Incident{
		ID:          id,
		Title:       "test " + id,
		Category:    category,
		Description: "d",
		Location:    "l",
		OccurredAt:  now,
		Urgency:     models.UrgencyMedium,
		Anonymous:   true,
		Status:      models.IncidentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestIncidentCreatedSendsAlert(t *testing.T) {
	mock := twiliosms.NewMockClient()
	n := NewSMSNotifier(mock, "+15550001111")

	incident := pendingIncident("inc-1", models.CategoryTheft)
	incident.Student = &models.StudentInfo{Name: "Ama Mensah", IndexNumber: "UG12345"}
	n.IncidentCreated(context.Background(), incident)

	// Delivery is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for len(mock.Messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sent := mock.Messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 SMS, got %d", len(sent))
	}
	if sent[0].To != "+15550001111" {
		t.Errorf("to = %q", sent[0].To)
	}
	if !strings.Contains(sent[0].Body, "inc-1") || !strings.Contains(sent[0].Body, "Ama Mensah") {
		t.Errorf("alert body missing details: %q", sent[0].Body)
	}
}

func TestDailyDigest(t *testing.T) {
	mock := twiliosms.NewMockClient()
	n := NewSMSNotifier(mock, "+15550001111")
	st := store.NewInMemoryStore()

	// Nothing pending: no SMS.
	if err := n.DailyDigest(context.Background(), st); err != nil {
		t.Fatalf("DailyDigest failed: %v", err)
	}
	if len(mock.SentMessages) != 0 {
		t.Fatalf("expected no digest for empty store, got %d", len(mock.SentMessages))
	}

	if err := st.AddIncident(pendingIncident("inc-1", models.CategoryTheft)); err != nil {
		t.Fatal(err)
	}
	if err := st.AddIncident(pendingIncident("inc-2", models.CategoryTheft)); err != nil {
		t.Fatal(err)
	}
	resolved := pendingIncident("inc-3", models.CategoryAccident)
	resolved.Status = models.IncidentStatusResolved
	if err := st.AddIncident(resolved); err != nil {
		t.Fatal(err)
	}

	if err := n.DailyDigest(context.Background(), st); err != nil {
		t.Fatalf("DailyDigest failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 digest SMS, got %d", len(mock.SentMessages))
	}
	body := mock.SentMessages[0].Body
	if !strings.Contains(body, "2 report(s) pending") {
		t.Errorf("digest should count only pending reports: %q", body)
	}
	if !strings.Contains(body, "Theft: 2") {
		t.Errorf("digest missing category breakdown: %q", body)
	}
}
