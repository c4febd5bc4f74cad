// Package ops pushes operator-facing notices (dead-lettered jobs, breaker
// transitions) to a Telegram chat watched by the on-call team. Recipients of
// hazard alerts never see these.
package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"

	"escalation-service/internal/logging"
	"escalation-service/internal/utils"
)

// Notifier surfaces operational events. A no-op implementation is used when
// no ops chat is configured and in tests.
type Notifier interface {
	DeadJob(ctx context.Context, jobID, kind, lastError string)
	BreakerTransition(ctx context.Context, name, from, to string)
}

// Noop discards all notices.
type Noop struct{}

func (Noop) DeadJob(context.Context, string, string, string) {}
func (Noop) BreakerTransition(context.Context, string, string, string) {}

// Telegram delivers notices via the go-telegram/bot client.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *logging.Logger
}

// NewTelegram builds the ops notifier. Returns an error if the token is
// rejected by the Telegram API.
func NewTelegram(token string, chatID int64, logger *logging.Logger) (*Telegram, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ops Telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, logger: logger}, nil
}

// DeadJob reports a job that exhausted its retries.
func (t *Telegram) DeadJob(ctx context.Context, jobID, kind, lastError string) {
	text := fmt.Sprintf("⚠️ Dead-lettered job %s (%s)\nLast error: %s", jobID, kind, lastError)
	t.send(ctx, text)
}

// BreakerTransition reports a circuit breaker state change.
func (t *Telegram) BreakerTransition(ctx context.Context, name, from, to string) {
	text := fmt.Sprintf("🔌 Circuit %s: %s → %s", name, from, to)
	t.send(ctx, text)
}

func (t *Telegram) send(ctx context.Context, text string) {
	err := utils.Retry(t.logger, 3, time.Second, func() error {
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: t.chatID,
			Text:   text,
		})
		return err
	})
	if err != nil {
		t.logger.Errorf("Ops notice dropped: %v", err)
	}
}
