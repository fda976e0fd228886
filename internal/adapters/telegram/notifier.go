package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/internal/adapters/config"
	"github.com/vitalsense/pulsewatch/pkg/logger"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Notifier delivers trigger events to the coaching staff channel. It is a
// notification bridge consumer: delivery retries and per-coach routing belong
// to the channel, not the rule engine.
type Notifier struct {
	api *tgbotapi.BotAPI
	cfg *config.TelegramConfig
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{api: bot, cfg: cfg}, nil
}

// EmitTriggerCreated sends a new-trigger alert to the configured chat
func (n *Notifier) EmitTriggerCreated(ctx context.Context, event models.TriggerEvent) error {
	if !n.cfg.AlertOnTriggers {
		return nil
	}

	emoji := severityEmoji(event.Severity)

	text := fmt.Sprintf(
		"%s *Symptom triggered*\n\n"+
			"Athlete: `%d`\n"+
			"Symptom: %s\n"+
			"Severity: %.1f\n"+
			"Time: %s\n"+
			"Event: `%s`",
		emoji,
		event.AthleteID,
		event.SymptomLabel,
		event.Severity,
		event.TriggeredAt.Format("2006-01-02 15:04 MST"),
		event.EventID,
	)

	return n.sendMessageMarkdown(n.cfg.ChatID, text)
}

func (n *Notifier) sendMessageMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"

	_, err := n.api.Send(msg)
	if err != nil {
		logger.Error("failed to send telegram message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

func severityEmoji(severity float64) string {
	switch {
	case severity >= 8:
		return "🚨"
	case severity >= 5:
		return "⚠️"
	default:
		return "📋"
	}
}
