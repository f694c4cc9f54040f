// Package alert pushes SMS notifications to the campus security desk when
// new incident reports arrive.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/twiliosms"
)

// maxSendElapsed bounds the total retry window for one alert. After that the
// alert is dropped with an error log; the report itself is already stored.
const maxSendElapsed = 2 * time.Minute

// SMSNotifier sends one SMS per stored incident to the security desk.
type SMSNotifier struct {
	sender twiliosms.Sender
	to     string
}

// NewSMSNotifier creates a notifier that alerts the given phone number.
func NewSMSNotifier(sender twiliosms.Sender, to string) *SMSNotifier {
	return &SMSNotifier{sender: sender, to: to}
}

// IncidentCreated sends the alert asynchronously with exponential backoff so
// a slow or flaky SMS provider never delays the chat response.
func (n *SMSNotifier) IncidentCreated(ctx context.Context, incident models.Incident) {
	body := formatAlert(incident)
	go func() {
		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = maxSendElapsed
		err := backoff.Retry(func() error {
			sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return n.sender.SendSMS(sendCtx, n.to, body)
		}, policy)
		if err != nil {
			slog.Error("SMSNotifier alert dropped after retries", "incidentID", incident.ID, "error", err)
			return
		}
		slog.Info("SMSNotifier alert sent", "incidentID", incident.ID, "category", incident.Category)
	}()
}

func formatAlert(incident models.Incident) string {
	reporter := "anonymous"
	if incident.Student != nil {
		reporter = fmt.Sprintf("%s (%s)", incident.Student.Name, incident.Student.IndexNumber)
	}
	return fmt.Sprintf("SafeBot alert: new %s report %q at %s, urgency %s, reported by %s. Ref %s.",
		incident.Category, incident.Title, incident.Location, incident.Urgency, reporter, incident.ID)
}
