package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campussafe/safebot/internal/models"
)

// stepSpec describes one state of the linear report-collection machine:
// how to prompt for the field, how to validate and store an input, and
// which state follows. Adding or reordering fields is a change to the
// table below, not to control flow.
type stepSpec struct {
	field  string
	prompt func() string
	// apply validates the input and stores it into the draft. It returns
	// the re-prompt text when the input is rejected; the draft and step are
	// left untouched in that case.
	apply func(e *Engine, sess *models.ConversationSession, input string) (rejectMsg string)
	next  models.StepType
}

// reportSteps is the report-collection state table:
// TITLE → CATEGORY → LOCATION → OCCURRED_AT → DESCRIPTION → submit.
var reportSteps = map[models.StepType]stepSpec{
	models.StepTitle: {
		field:  "title",
		prompt: func() string { return msgPromptTitle },
		apply: func(e *Engine, sess *models.ConversationSession, input string) string {
			if input == "" {
				return msgEmptyInput
			}
			sess.Draft.Title = input
			return ""
		},
		next: models.StepCategory,
	},
	models.StepCategory: {
		field:  "category",
		prompt: func() string { return fmt.Sprintf(tmplPromptCategory, CategoryList()) },
		apply: func(e *Engine, sess *models.ConversationSession, input string) string {
			category, ok := NormalizeCategory(input)
			if !ok {
				return fmt.Sprintf(tmplBadCategory, CategoryList())
			}
			sess.Draft.Category = category
			return ""
		},
		next: models.StepLocation,
	},
	models.StepLocation: {
		field:  "location",
		prompt: func() string { return msgPromptLocation },
		apply: func(e *Engine, sess *models.ConversationSession, input string) string {
			if input == "" {
				return msgEmptyInput
			}
			sess.Draft.Location = input
			return ""
		},
		next: models.StepOccurredAt,
	},
	models.StepOccurredAt: {
		field:  "occurred_at",
		prompt: func() string { return msgPromptOccurredAt },
		apply: func(e *Engine, sess *models.ConversationSession, input string) string {
			occurred, err := ParseOccurredAt(input, e.now())
			if err != nil {
				return msgBadDate
			}
			sess.Draft.OccurredAt = &occurred
			return ""
		},
		next: models.StepDescription,
	},
	models.StepDescription: {
		field:  "description",
		prompt: func() string { return msgPromptDescription },
		apply: func(e *Engine, sess *models.ConversationSession, input string) string {
			if input == "" {
				return msgEmptyInput
			}
			sess.Draft.Description = input
			return ""
		},
		// StepNone marks the terminal state: the completed draft is submitted.
		next: models.StepNone,
	},
}

// Engine drives the guided-report conversation. It is purely reactive:
// one inbound event produces zero or more outbound prompts and exactly one
// session save. Processing is serialized per chat identity.
type Engine struct {
	sessions  SessionManager
	incidents IncidentCreator
	msg       Messenger
	verifier  Verifier
	notifier  Notifier
	locks     *chatLocker
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier attaches a downstream notifier for stored reports.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the engine's time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a conversation engine.
func NewEngine(sessions SessionManager, incidents IncidentCreator, msg Messenger, verifier Verifier, opts ...Option) *Engine {
	e := &Engine{
		sessions:  sessions,
		incidents: incidents,
		msg:       msg,
		verifier:  verifier,
		locks:     newChatLocker(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage processes one inbound chat message to completion.
func (e *Engine) HandleMessage(ctx context.Context, chatID, text string) error {
	unlock := e.locks.Lock(chatID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load session for %s: %w", chatID, err)
	}

	input := strings.TrimSpace(text)
	slog.Debug("Engine.HandleMessage: processing", "chatID", chatID, "phase", sess.Phase, "step", sess.Step, "input_length", len(input))

	switch strings.ToLower(input) {
	case "/start", "start":
		sess.ResetFlow()
		if err := e.sessions.Save(ctx, sess); err != nil {
			return err
		}
		return e.msg.SendMessage(ctx, chatID, msgMenu)
	case "/help", "help":
		return e.msg.SendMessage(ctx, chatID, msgHelp)
	case "/cancel", "cancel":
		return e.handleCancel(ctx, sess)
	case "/report", "report":
		return e.startReport(ctx, sess)
	case "/status", "status":
		return e.handleStatus(ctx, sess)
	}

	if sess.Step != models.StepNone {
		return e.advanceStep(ctx, sess, input)
	}
	return e.handleIdleInput(ctx, sess)
}

// OnVerified is invoked (from the verification webhook path) once the
// confirmation token for this chat has been consumed. It flips the session
// into the verified phase and tells the user.
func (e *Engine) OnVerified(ctx context.Context, chatID string, identity *models.StudentInfo) error {
	unlock := e.locks.Lock(chatID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load session for %s: %w", chatID, err)
	}

	sess.Phase = models.PhaseVerified
	sess.Identity = identity
	sess.FailedInputCount = 0
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}
	slog.Info("Engine.OnVerified: chat verified", "chatID", chatID, "indexNumber", identity.IndexNumber)
	return e.msg.SendMessage(ctx, chatID, fmt.Sprintf(tmplVerified, identity.Name))
}

// OnRevoked clears the chat's verified identity after an admin revocation.
func (e *Engine) OnRevoked(ctx context.Context, chatID string) error {
	unlock := e.locks.Lock(chatID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load session for %s: %w", chatID, err)
	}
	sess.Revoke()
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}
	slog.Info("Engine.OnRevoked: verification revoked", "chatID", chatID)
	return nil
}

func (e *Engine) handleCancel(ctx context.Context, sess *models.ConversationSession) error {
	if !sess.InFlow() {
		return e.msg.SendMessage(ctx, sess.ChatID, msgNothingToCancel)
	}
	sess.ResetFlow()
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}
	slog.Info("Engine.handleCancel: flow cancelled", "chatID", sess.ChatID)
	return e.msg.SendMessage(ctx, sess.ChatID, msgCancelled)
}

func (e *Engine) handleStatus(ctx context.Context, sess *models.ConversationSession) error {
	if sess.Phase == models.PhaseVerified && sess.Identity != nil {
		return e.msg.SendMessage(ctx, sess.ChatID,
			fmt.Sprintf(tmplStatusVerified, sess.Identity.Name, sess.Identity.IndexNumber))
	}
	return e.msg.SendMessage(ctx, sess.ChatID, msgStatusUnverified)
}

// startReport enters the report flow, or starts the verification handshake
// when the chat is not yet verified. Report steps are unreachable before
// verification.
func (e *Engine) startReport(ctx context.Context, sess *models.ConversationSession) error {
	if sess.Phase != models.PhaseVerified {
		link, expiresAt, err := e.verifier.StartVerification(ctx, sess.ChatID)
		if err != nil {
			slog.Error("Engine.startReport: verification start failed", "error", err, "chatID", sess.ChatID)
			return e.msg.SendMessage(ctx, sess.ChatID, msgSubmitFailed)
		}
		sess.Phase = models.PhaseAwaitingConfirmation
		sess.FailedInputCount = 0
		if err := e.sessions.Save(ctx, sess); err != nil {
			return err
		}
		minutes := int(time.Until(expiresAt).Round(time.Minute) / time.Minute)
		return e.msg.SendMessage(ctx, sess.ChatID, fmt.Sprintf(tmplVerifyRequired, link, minutes))
	}

	sess.Draft = models.IncidentDraft{}
	sess.Step = models.StepTitle
	sess.FailedInputCount = 0
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}
	slog.Info("Engine.startReport: report flow started", "chatID", sess.ChatID)
	return e.msg.SendMessage(ctx, sess.ChatID, reportSteps[models.StepTitle].prompt())
}

// advanceStep runs one transition of the state table: validate the input
// for the current step, store it, and either prompt for the next field or
// submit the completed draft.
func (e *Engine) advanceStep(ctx context.Context, sess *models.ConversationSession, input string) error {
	spec, ok := reportSteps[sess.Step]
	if !ok {
		slog.Error("Engine.advanceStep: unknown step, resetting", "chatID", sess.ChatID, "step", sess.Step)
		sess.ResetFlow()
		if err := e.sessions.Save(ctx, sess); err != nil {
			return err
		}
		return e.msg.SendMessage(ctx, sess.ChatID, msgMenu)
	}

	if reject := spec.apply(e, sess, input); reject != "" {
		slog.Debug("Engine.advanceStep: input rejected", "chatID", sess.ChatID, "field", spec.field)
		return e.msg.SendMessage(ctx, sess.ChatID, reject)
	}

	if spec.next != models.StepNone {
		sess.Step = spec.next
		if err := e.sessions.Save(ctx, sess); err != nil {
			return err
		}
		slog.Debug("Engine.advanceStep: advanced", "chatID", sess.ChatID, "field", spec.field, "next", spec.next)
		return e.msg.SendMessage(ctx, sess.ChatID, reportSteps[spec.next].prompt())
	}

	return e.submit(ctx, sess)
}

// submit assembles the completed draft and calls the incident store exactly
// once. Both outcomes reset the session to idle: on a backend failure the
// user restarts with /report rather than being left stuck mid-flow.
func (e *Engine) submit(ctx context.Context, sess *models.ConversationSession) error {
	now := e.now()
	incident := models.Incident{
		ID:          uuid.NewString(),
		Title:       sess.Draft.Title,
		Category:    sess.Draft.Category,
		Description: sess.Draft.Description,
		Location:    sess.Draft.Location,
		Urgency:     models.DefaultUrgency,
		Anonymous:   sess.Identity == nil,
		Status:      models.IncidentStatusPending,
		Student:     sess.Identity,
		ChatID:      sess.ChatID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sess.Draft.OccurredAt != nil {
		incident.OccurredAt = *sess.Draft.OccurredAt
	}

	err := e.incidents.AddIncident(incident)

	sess.ResetFlow()
	if saveErr := e.sessions.Save(ctx, sess); saveErr != nil {
		slog.Error("Engine.submit: session reset save failed", "error", saveErr, "chatID", sess.ChatID)
	}

	if err != nil {
		slog.Error("Engine.submit: incident store rejected report", "error", err, "chatID", sess.ChatID)
		return e.msg.SendMessage(ctx, sess.ChatID, msgSubmitFailed)
	}

	slog.Info("Engine.submit: report stored", "chatID", sess.ChatID, "incidentID", incident.ID, "category", incident.Category)
	if sendErr := e.msg.SendMessage(ctx, sess.ChatID, fmt.Sprintf(tmplSubmitted, incident.ID)); sendErr != nil {
		return sendErr
	}
	if guidance, ok := Guidance(incident.Category); ok {
		if sendErr := e.msg.SendMessage(ctx, sess.ChatID, guidance); sendErr != nil {
			slog.Error("Engine.submit: guidance send failed", "error", sendErr, "chatID", sess.ChatID)
		}
	}
	if e.notifier != nil {
		e.notifier.IncidentCreated(ctx, incident)
	}
	return nil
}

// handleIdleInput soft-accumulates unrecognized input while idle: a nudge
// below the threshold, a menu reset once it is reached.
func (e *Engine) handleIdleInput(ctx context.Context, sess *models.ConversationSession) error {
	sess.FailedInputCount++
	if sess.FailedInputCount >= models.FailedInputThreshold {
		sess.ResetFlow()
		if err := e.sessions.Save(ctx, sess); err != nil {
			return err
		}
		slog.Debug("Engine.handleIdleInput: threshold reached, resetting to menu", "chatID", sess.ChatID)
		return e.msg.SendMessage(ctx, sess.ChatID, msgTooManyInvalid)
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}
	return e.msg.SendMessage(ctx, sess.ChatID, msgNudge)
}
