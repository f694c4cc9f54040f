package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/store"
	"github.com/campussafe/safebot/internal/testutil"
)

type stubVerifier struct {
	link      string
	expiresAt time.Time
	err       error
	calls     int
}

func (v *stubVerifier) StartVerification(ctx context.Context, chatID string) (string, time.Time, error) {
	v.calls++
	return v.link, v.expiresAt, v.err
}

type recordingIncidentCreator struct {
	incidents []models.Incident
	err       error
}

func (r *recordingIncidentCreator) AddIncident(incident models.Incident) error {
	r.incidents = append(r.incidents, incident)
	return r.err
}

type engineFixture struct {
	engine    *Engine
	sessions  *StoreBasedSessionManager
	msg       *testutil.MockMessenger
	incidents *recordingIncidentCreator
	verifier  *stubVerifier
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	sm := NewStoreBasedSessionManager(store.NewInMemoryStore())
	msg := testutil.NewMockMessenger()
	incidents := &recordingIncidentCreator{}
	verifier := &stubVerifier{
		link:      "http://localhost:8080/verify?token=abc",
		expiresAt: time.Now().Add(15 * time.Minute),
	}
	return &engineFixture{
		engine:    NewEngine(sm, incidents, msg, verifier),
		sessions:  sm,
		msg:       msg,
		incidents: incidents,
		verifier:  verifier,
	}
}

func (f *engineFixture) verifyChat(t *testing.T, chatID, name, index string) {
	t.Helper()
	ctx := context.Background()
	sess, err := f.sessions.Get(ctx, chatID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	sess.Phase = models.PhaseVerified
	sess.Identity = &models.StudentInfo{Name: name, IndexNumber: index}
	if err := f.sessions.Save(ctx, sess); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
}

func (f *engineFixture) send(t *testing.T, chatID, text string) {
	t.Helper()
	if err := f.engine.HandleMessage(context.Background(), chatID, text); err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", text, err)
	}
}

func (f *engineFixture) session(t *testing.T, chatID string) *models.ConversationSession {
	t.Helper()
	sess, err := f.sessions.Get(context.Background(), chatID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	return sess
}

func TestReportRequiresVerification(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "A", "/report")

	if f.verifier.calls != 1 {
		t.Errorf("expected 1 verification start, got %d", f.verifier.calls)
	}
	last := f.msg.LastMessage(t)
	if !strings.Contains(last.Body, f.verifier.link) {
		t.Errorf("expected verification link in reply, got %q", last.Body)
	}
	sess := f.session(t, "A")
	if sess.Step != models.StepNone {
		t.Errorf("expected report flow not entered, got step %q", sess.Step)
	}
	if sess.Phase != models.PhaseAwaitingConfirmation {
		t.Errorf("expected phase AWAITING_CONFIRMATION, got %q", sess.Phase)
	}
}

func TestFullReportFlow(t *testing.T) {
	f := newEngineFixture(t)
	f.verifyChat(t, "B", "Ama Mensah", "UG12345")

	f.send(t, "B", "/report")
	f.send(t, "B", "Broken pipe")
	f.send(t, "B", "theft")
	f.send(t, "B", "Library")
	f.send(t, "B", "2024-05-01 10:00")
	f.send(t, "B", "saw someone tampering with a door")

	if len(f.incidents.incidents) != 1 {
		t.Fatalf("expected exactly 1 stored incident, got %d", len(f.incidents.incidents))
	}
	incident := f.incidents.incidents[0]
	if incident.Title != "Broken pipe" {
		t.Errorf("title = %q", incident.Title)
	}
	if incident.Category != models.CategoryTheft {
		t.Errorf("category = %q, want %q", incident.Category, models.CategoryTheft)
	}
	if incident.Location != "Library" {
		t.Errorf("location = %q", incident.Location)
	}
	if incident.Description != "saw someone tampering with a door" {
		t.Errorf("description = %q", incident.Description)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	if !incident.OccurredAt.Equal(want) {
		t.Errorf("occurredAt = %v, want %v", incident.OccurredAt, want)
	}
	if incident.Urgency != models.UrgencyMedium {
		t.Errorf("urgency = %q, want default Medium", incident.Urgency)
	}
	if incident.Status != models.IncidentStatusPending {
		t.Errorf("status = %q, want pending", incident.Status)
	}
	if incident.Student == nil || incident.Student.IndexNumber != "UG12345" {
		t.Errorf("expected verified identity on incident, got %+v", incident.Student)
	}
	if incident.ID == "" {
		t.Error("expected generated incident id")
	}

	sess := f.session(t, "B")
	if sess.Step != models.StepNone {
		t.Errorf("expected return to idle, got step %q", sess.Step)
	}
	if sess.Draft != (models.IncidentDraft{}) {
		t.Errorf("expected cleared draft, got %+v", sess.Draft)
	}
	if sess.Phase != models.PhaseVerified {
		t.Errorf("verification should survive submission, got phase %q", sess.Phase)
	}
}

func TestUnmatchedCategoryForcesReentry(t *testing.T) {
	f := newEngineFixture(t)
	f.verifyChat(t, "C", "Kofi Boateng", "UG20001")

	f.send(t, "C", "/report")
	f.send(t, "C", "Suspicious person")
	f.send(t, "C", "asdfgh")

	sess := f.session(t, "C")
	if sess.Step != models.StepCategory {
		t.Errorf("step should stay CATEGORY after unmatched input, got %q", sess.Step)
	}
	if sess.Draft.Category != "" {
		t.Errorf("draft category should stay unset, got %q", sess.Draft.Category)
	}
	last := f.msg.LastMessage(t)
	if !strings.Contains(last.Body, string(models.CategoryTheft)) {
		t.Errorf("re-prompt should list categories, got %q", last.Body)
	}

	// A valid category afterwards advances normally.
	f.send(t, "C", "harassment")
	sess = f.session(t, "C")
	if sess.Step != models.StepLocation {
		t.Errorf("expected advance to LOCATION, got %q", sess.Step)
	}
	if sess.Draft.Category != models.CategoryHarassment {
		t.Errorf("draft category = %q", sess.Draft.Category)
	}
}

func TestEmptyInputDoesNotAdvance(t *testing.T) {
	f := newEngineFixture(t)
	f.verifyChat(t, "D", "Efua Owusu", "UG20002")

	f.send(t, "D", "/report")
	f.send(t, "D", "   ")

	sess := f.session(t, "D")
	if sess.Step != models.StepTitle {
		t.Errorf("step should stay TITLE on empty input, got %q", sess.Step)
	}
	if sess.Draft.Title != "" {
		t.Errorf("draft title should stay unset, got %q", sess.Draft.Title)
	}
}

func TestCancelMidFlowClearsDraft(t *testing.T) {
	f := newEngineFixture(t)
	f.verifyChat(t, "E", "Yaw Darko", "UG20003")

	f.send(t, "E", "/report")
	f.send(t, "E", "Spill in hallway")
	f.send(t, "E", "accident")
	f.send(t, "E", "cancel")

	sess := f.session(t, "E")
	if sess.Step != models.StepNone {
		t.Errorf("expected idle after cancel, got step %q", sess.Step)
	}
	if sess.Draft != (models.IncidentDraft{}) {
		t.Errorf("expected cleared draft, got %+v", sess.Draft)
	}
	if sess.Phase != models.PhaseVerified {
		t.Errorf("cancel must not drop verification, got phase %q", sess.Phase)
	}
	if len(f.incidents.incidents) != 0 {
		t.Errorf("cancelled report must not be stored, got %d", len(f.incidents.incidents))
	}
	if f.msg.LastMessage(t).Body != msgCancelled {
		t.Errorf("expected cancel confirmation, got %q", f.msg.LastMessage(t).Body)
	}
}

func TestCancelWithNothingInProgress(t *testing.T) {
	f := newEngineFixture(t)
	f.send(t, "F", "cancel")
	if f.msg.LastMessage(t).Body != msgNothingToCancel {
		t.Errorf("got %q", f.msg.LastMessage(t).Body)
	}
}

func TestIdleInputThreshold(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "G", "hello?")
	f.send(t, "G", "anyone there")

	sess := f.session(t, "G")
	if sess.FailedInputCount != 2 {
		t.Errorf("expected counter 2, got %d", sess.FailedInputCount)
	}
	if f.msg.LastMessage(t).Body != msgNudge {
		t.Errorf("second unrecognized input should nudge, got %q", f.msg.LastMessage(t).Body)
	}

	f.send(t, "G", "??")

	sess = f.session(t, "G")
	if sess.FailedInputCount != 0 {
		t.Errorf("expected counter reset to 0, got %d", sess.FailedInputCount)
	}
	if !strings.Contains(f.msg.LastMessage(t).Body, "/report") {
		t.Errorf("third unrecognized input should emit the menu, got %q", f.msg.LastMessage(t).Body)
	}
}

func TestSubmitFailureResetsToIdle(t *testing.T) {
	f := newEngineFixture(t)
	f.verifyChat(t, "H", "Adwoa Asante", "UG20004")
	f.incidents.err = errors.New("store unavailable")

	f.send(t, "H", "/report")
	f.send(t, "H", "Broken window")
	f.send(t, "H", "hazard")
	f.send(t, "H", "Block C")
	f.send(t, "H", "yesterday 4pm")
	f.send(t, "H", "glass all over the stairwell")

	if len(f.incidents.incidents) != 1 {
		t.Fatalf("expected exactly 1 submission attempt, got %d", len(f.incidents.incidents))
	}
	if f.msg.LastMessage(t).Body != msgSubmitFailed {
		t.Errorf("expected apology on store failure, got %q", f.msg.LastMessage(t).Body)
	}
	sess := f.session(t, "H")
	if sess.Step != models.StepNone || sess.Draft != (models.IncidentDraft{}) {
		t.Errorf("expected reset to idle with cleared draft, got step %q draft %+v", sess.Step, sess.Draft)
	}
}

func TestSubmitSendsGuidance(t *testing.T) {
	f := newEngineFixture(t)
	f.verifyChat(t, "I", "Kwesi Appiah", "UG20005")

	f.send(t, "I", "/report")
	f.send(t, "I", "Phone stolen")
	f.send(t, "I", "someone stole my phone")
	f.send(t, "I", "Cafeteria")
	f.send(t, "I", "2024-06-10")
	f.send(t, "I", "it was taken from my bag during lunch")

	msgs := f.msg.Messages()
	if len(msgs) < 2 {
		t.Fatalf("expected confirmation plus guidance, got %d messages", len(msgs))
	}
	guidance, _ := Guidance(models.CategoryTheft)
	if msgs[len(msgs)-1].Body != guidance {
		t.Errorf("expected theft guidance last, got %q", msgs[len(msgs)-1].Body)
	}
}

func TestOnVerifiedFlipsPhase(t *testing.T) {
	f := newEngineFixture(t)
	f.send(t, "J", "/report")

	identity := &models.StudentInfo{Name: "Abena Sarpong", IndexNumber: "UG30001"}
	if err := f.engine.OnVerified(context.Background(), "J", identity); err != nil {
		t.Fatalf("OnVerified failed: %v", err)
	}

	sess := f.session(t, "J")
	if sess.Phase != models.PhaseVerified {
		t.Errorf("expected VERIFIED, got %q", sess.Phase)
	}
	if sess.Identity == nil || sess.Identity.IndexNumber != "UG30001" {
		t.Errorf("identity not bound: %+v", sess.Identity)
	}
	if !strings.Contains(f.msg.LastMessage(t).Body, "Abena Sarpong") {
		t.Errorf("expected greeting with name, got %q", f.msg.LastMessage(t).Body)
	}

	// Verified chats go straight into the flow now.
	f.send(t, "J", "/report")
	if got := f.session(t, "J").Step; got != models.StepTitle {
		t.Errorf("expected TITLE after verified /report, got %q", got)
	}
}

func TestOnRevokedClearsIdentity(t *testing.T) {
	f := newEngineFixture(t)
	f.verifyChat(t, "K", "Nana Owusu", "UG30002")

	if err := f.engine.OnRevoked(context.Background(), "K"); err != nil {
		t.Fatalf("OnRevoked failed: %v", err)
	}
	sess := f.session(t, "K")
	if sess.Phase != models.PhaseUnverified || sess.Identity != nil {
		t.Errorf("expected unverified with no identity, got phase %q identity %+v", sess.Phase, sess.Identity)
	}
}

func TestStatusCommand(t *testing.T) {
	f := newEngineFixture(t)

	f.send(t, "L", "/status")
	if f.msg.LastMessage(t).Body != msgStatusUnverified {
		t.Errorf("got %q", f.msg.LastMessage(t).Body)
	}

	f.verifyChat(t, "L", "Esi Quartey", "UG30003")
	f.send(t, "L", "/status")
	if !strings.Contains(f.msg.LastMessage(t).Body, "UG30003") {
		t.Errorf("expected index number in status, got %q", f.msg.LastMessage(t).Body)
	}
}
