// Package telegram delivers replies through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/lexdesk/internal/channel"
	"github.com/memohai/lexdesk/internal/retry"
)

// Type is the channel type and thread namespace for Telegram.
const Type channel.ChannelType = "telegram"

const telegramMaxMessageLength = 4096

// botAPI is the subset of *tgbotapi.BotAPI used for delivery.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramAdapter implements channel.Adapter. The bot client is created on
// first use so a bad token does not block startup.
type TelegramAdapter struct {
	logger *slog.Logger
	token  string

	mu  sync.Mutex
	bot botAPI
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger, token string) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &TelegramAdapter{
		logger: log.With(slog.String("adapter", "telegram")),
		token:  strings.TrimSpace(token),
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

func newWithBot(log *slog.Logger, bot botAPI) *TelegramAdapter {
	a := NewTelegramAdapter(log, "")
	a.bot = bot
	return a
}

func (a *TelegramAdapter) getOrCreateBot() (botAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	if a.token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	bot, err := tgbotapi.NewBotAPI(a.token)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, retry.Retryable(err)
	}
	a.bot = bot
	return bot, nil
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:             Type,
		DisplayName:      "Telegram",
		MaxMessageLength: telegramMaxMessageLength,
	}
}

// Send delivers text to a chat id or @channel username. Text over the API
// limit goes out as several messages. Rate limiting is reported as retryable.
func (a *TelegramAdapter) Send(_ context.Context, target, text string) error {
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	for _, part := range splitTelegramText(sanitizeTelegramText(text)) {
		msg, err := buildTelegramMessage(target, part)
		if err != nil {
			return err
		}
		if _, err := bot.Send(msg); err != nil {
			if isTelegramTooManyRequests(err) {
				return retry.Retryable(err)
			}
			return err
		}
	}
	return nil
}

// Typing sends a "typing" chat action.
func (a *TelegramAdapter) Typing(_ context.Context, target string) error {
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram typing target must be a chat_id: %w", err)
	}
	_, err = bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func buildTelegramMessage(target, text string) (tgbotapi.MessageConfig, error) {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "@") {
		return tgbotapi.NewMessageToChannel(target, text), nil
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram target must be @username or chat_id")
	}
	return tgbotapi.NewMessage(chatID, text), nil
}

func isTelegramTooManyRequests(err error) bool {
	if err == nil {
		return false
	}
	var apiErr tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429
	}
	var apiErrPtr *tgbotapi.Error
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == 429
	}
	return false
}

// sanitizeTelegramText strips invalid UTF-8, which streamed increments can
// carry at chunk boundaries.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// splitTelegramText cuts text into parts within the API limit on rune
// boundaries.
func splitTelegramText(text string) []string {
	if len(text) <= telegramMaxMessageLength {
		return []string{text}
	}
	var parts []string
	for len(text) > telegramMaxMessageLength {
		cut := telegramMaxMessageLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
