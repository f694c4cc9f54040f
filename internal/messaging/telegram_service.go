package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/campussafe/safebot/internal/models"
)

// responseBufferSize bounds how many inbound messages may queue before the
// poller blocks.
const responseBufferSize = 100

// Opts holds configuration options for the Telegram service.
type Opts struct {
	Token          string
	UpdateTimeout  int
	ResponseBuffer int
}

// Option defines a configuration option for the Telegram service.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithUpdateTimeout sets the long-poll timeout in seconds.
func WithUpdateTimeout(seconds int) Option {
	return func(o *Opts) { o.UpdateTimeout = seconds }
}

// WithResponseBuffer sets the inbound response channel capacity.
func WithResponseBuffer(n int) Option {
	return func(o *Opts) { o.ResponseBuffer = n }
}

// TelegramService implements Service over the Telegram Bot API using
// long-polling for updates.
type TelegramService struct {
	bot       *tgbotapi.BotAPI
	timeout   int
	responses chan models.Response
	stopOnce  sync.Once
}

// NewTelegramService creates a Telegram messaging service. The token must be
// valid; the constructor performs a getMe call to authenticate.
func NewTelegramService(opts ...Option) (*TelegramService, error) {
	cfg := Opts{
		UpdateTimeout:  30,
		ResponseBuffer: responseBufferSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate telegram bot: %w", err)
	}
	slog.Info("TelegramService authenticated", "username", bot.Self.UserName)

	return &TelegramService{
		bot:       bot,
		timeout:   cfg.UpdateTimeout,
		responses: make(chan models.Response, cfg.ResponseBuffer),
	}, nil
}

// ValidateAndCanonicalizeRecipient checks that the recipient is a Telegram
// chat identifier: a decimal integer, possibly negative for group chats.
func (s *TelegramService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	trimmed := strings.TrimSpace(recipient)
	// Reject a leading plus so phone numbers don't pass as chat ids.
	if strings.HasPrefix(trimmed, "+") {
		return "", fmt.Errorf("invalid telegram chat id %q", recipient)
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q: %w", recipient, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// SendMessage sends a text message to the given chat.
func (s *TelegramService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	chatID, _ := strconv.ParseInt(canonical, 10, 64)
	msg := tgbotapi.NewMessage(chatID, body)
	if _, err := s.bot.Send(msg); err != nil {
		slog.Error("TelegramService SendMessage failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("TelegramService message sent", "to", canonical)
	return nil
}

// Start begins long-polling for updates and feeding inbound text messages
// into the responses channel. It returns once the poller goroutine is
// running; polling continues until ctx is cancelled or Stop is called.
func (s *TelegramService) Start(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = s.timeout
	updates := s.bot.GetUpdatesChan(updateCfg)

	go func() {
		defer close(s.responses)
		for {
			select {
			case <-ctx.Done():
				slog.Info("TelegramService update loop stopped", "reason", ctx.Err())
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("TelegramService update channel closed")
					return
				}
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				resp := models.Response{
					From: strconv.FormatInt(update.Message.Chat.ID, 10),
					Body: update.Message.Text,
					Time: int64(update.Message.Date),
				}
				select {
				case s.responses <- resp:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	slog.Info("TelegramService started", "timeout", s.timeout)
	return nil
}

// Stop halts update polling. Safe to call more than once.
func (s *TelegramService) Stop() error {
	s.stopOnce.Do(func() {
		s.bot.StopReceivingUpdates()
		slog.Info("TelegramService stopped")
	})
	return nil
}

// Responses returns the channel of incoming chat messages.
func (s *TelegramService) Responses() <-chan models.Response {
	return s.responses
}
