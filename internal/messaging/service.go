package messaging

import (
	"context"

	"github.com/campussafe/safebot/internal/models"
)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides a channel of incoming responses.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. This allows each service to implement its own recipient
	// validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming participant responses.
	Responses() <-chan models.Response
}
