package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"restobook/internal/config"
	"restobook/internal/domain"
	"restobook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// NewBot connects to the Telegram Bot API.
func NewBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram.bot_token is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// ManagerNotifier tells managers about parties that cannot be seated automatically.
type ManagerNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	loc     *time.Location
	queue   chan events.BookingEventPayload
	logger  *zerolog.Logger
}

func NewManagerNotifier(bot domain.TelegramSender, chatIDs []int64, loc *time.Location, logger *zerolog.Logger) *ManagerNotifier {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ManagerNotifier{
		bot:     bot,
		chatIDs: chatIDs,
		loc:     loc,
		queue:   make(chan events.BookingEventPayload, 64),
		logger:  logger,
	}
}

// Attach subscribes to manager_required events. Delivery happens in Start.
func (n *ManagerNotifier) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventManagerRequired, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decode manager_required payload: %w", err)
		}
		select {
		case n.queue <- p:
		default:
			n.logger.Error().Str("correlation_id", p.CorrelationID).Msg("manager notification queue full, dropped")
		}
		return nil
	})
}

func (n *ManagerNotifier) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-n.queue:
			if err := n.Notify(p); err != nil {
				n.logger.Error().Err(err).Str("correlation_id", p.CorrelationID).Msg("manager notification failed")
			}
		}
	}
}

// Notify sends the message to every manager chat and returns the joined send errors.
func (n *ManagerNotifier) Notify(p events.BookingEventPayload) error {
	if len(n.chatIDs) == 0 {
		return nil
	}
	text := formatManagerMessage(p, n.loc)

	var errs []error
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func formatManagerMessage(p events.BookingEventPayload, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("*Нужен менеджер*\n")
	fmt.Fprintf(&sb, "Гостей: %d\n", p.Persons)
	if !p.StartTime.IsZero() {
		start := p.StartTime.In(loc)
		fmt.Fprintf(&sb, "Дата: %s\n", start.Format("02.01.2006"))
		fmt.Fprintf(&sb, "Время: %s", start.Format("15:04"))
		if !p.EndTime.IsZero() {
			fmt.Fprintf(&sb, "–%s", p.EndTime.In(loc).Format("15:04"))
		}
		sb.WriteString("\n")
	}
	if p.GuestID != 0 {
		fmt.Fprintf(&sb, "Гость: %d\n", p.GuestID)
	}
	if p.Notes != "" {
		fmt.Fprintf(&sb, "Комментарий: %s\n", p.Notes)
	}
	if p.CorrelationID != "" {
		fmt.Fprintf(&sb, "Запрос: `%s`", p.CorrelationID)
	}
	return strings.TrimRight(sb.String(), "\n")
}
