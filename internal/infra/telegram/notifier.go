// Package telegram sends member notifications through the Bot API. Delivery
// is best-effort: callers dispatch fire-and-forget, and the dispatcher
// swallows failures after logging them.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/resilience"
)

// Notifier delivers messages via the Telegram Bot API with retry and a
// circuit breaker in front of the network call.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// NewNotifier authenticates against the Bot API with the given token.
func NewNotifier(token string, httpTimeout time.Duration, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot auth: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return &Notifier{bot: bot, cb: cb, cfg: cfg, logger: logger}, nil
}

// Send delivers text to the given Telegram chat.
func (n *Notifier) Send(ctx context.Context, telegramID int64, text string) error {
	_, err := n.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, n.cfg, func() error {
			msg := tgbotapi.NewMessage(telegramID, text)
			_, err := n.bot.Send(msg)
			return err
		})
		return nil, innerErr
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "telegram", Err: err}
	}
	return nil
}

// LogSender is the development stand-in used when no bot token is configured:
// it logs the message instead of delivering it.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, telegramID int64, text string) error {
	s.Logger.Info("notification (not delivered, no bot token)",
		zap.Int64("telegram_id", telegramID),
		zap.String("text", text),
	)
	return nil
}
