package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/campussafe/safebot/internal/models"
)

// IncidentLister is the slice of the store the digest reads from.
type IncidentLister interface {
	GetIncidents() ([]models.Incident, error)
}

// DailyDigest sends the security desk a summary SMS of reports still pending
// triage. Intended to run on a cron schedule; a day with nothing pending
// sends nothing.
func (n *SMSNotifier) DailyDigest(ctx context.Context, incidents IncidentLister) error {
	all, err := incidents.GetIncidents()
	if err != nil {
		return fmt.Errorf("failed to fetch incidents for digest: %w", err)
	}

	pending := 0
	perCategory := make(map[models.Category]int)
	for _, inc := range all {
		if inc.Status == models.IncidentStatusPending {
			pending++
			perCategory[inc.Category]++
		}
	}
	if pending == 0 {
		slog.Debug("SMSNotifier digest skipped, nothing pending")
		return nil
	}

	body := fmt.Sprintf("SafeBot daily digest: %d report(s) pending triage.", pending)
	for _, c := range models.Categories {
		if count := perCategory[c]; count > 0 {
			body += fmt.Sprintf(" %s: %d.", c, count)
		}
	}

	if err := n.sender.SendSMS(ctx, n.to, body); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}
	slog.Info("SMSNotifier digest sent", "pending", pending)
	return nil
}
