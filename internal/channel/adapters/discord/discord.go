// Package discord delivers replies through the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/lexdesk/internal/channel"
	"github.com/memohai/lexdesk/internal/retry"
)

// Type is the channel type and thread namespace for Discord.
const Type channel.ChannelType = "discord"

const discordMaxMessageLength = 2000

// session is the subset of *discordgo.Session used for delivery.
type session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// DiscordAdapter implements channel.Adapter over the REST API only; it never
// opens a gateway websocket.
type DiscordAdapter struct {
	logger *slog.Logger
	token  string

	mu      sync.Mutex
	session session
}

// NewDiscordAdapter creates a DiscordAdapter for the bot token.
func NewDiscordAdapter(log *slog.Logger, token string) *DiscordAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &DiscordAdapter{
		logger: log.With(slog.String("adapter", "discord")),
		token:  strings.TrimSpace(token),
	}
}

func newWithSession(log *slog.Logger, s session) *DiscordAdapter {
	a := NewDiscordAdapter(log, "")
	a.session = s
	return a
}

func (a *DiscordAdapter) getOrCreateSession() (session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return a.session, nil
	}
	if a.token == "" {
		return nil, fmt.Errorf("discord bot token is not configured")
	}
	s, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.logger.Error("create session failed", slog.Any("error", err))
		return nil, err
	}
	a.session = s
	return s, nil
}

func (a *DiscordAdapter) Type() channel.ChannelType {
	return Type
}

func (a *DiscordAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:             Type,
		DisplayName:      "Discord",
		MaxMessageLength: discordMaxMessageLength,
	}
}

// Send posts text to a channel id. Texts over the limit are split on rune
// boundaries and sent in order.
func (a *DiscordAdapter) Send(_ context.Context, target, text string) error {
	s, err := a.getOrCreateSession()
	if err != nil {
		return err
	}
	channelID := strings.TrimSpace(target)
	if channelID == "" {
		return fmt.Errorf("discord target is required")
	}
	for _, part := range splitDiscordText(text) {
		if _, err := s.ChannelMessageSend(channelID, part); err != nil {
			if isDiscordRateLimited(err) {
				return retry.Retryable(err)
			}
			return err
		}
	}
	return nil
}

// Typing triggers the typing indicator in the channel.
func (a *DiscordAdapter) Typing(_ context.Context, target string) error {
	s, err := a.getOrCreateSession()
	if err != nil {
		return err
	}
	return s.ChannelTyping(strings.TrimSpace(target))
}

func isDiscordRateLimited(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func splitDiscordText(text string) []string {
	if len(text) <= discordMaxMessageLength {
		return []string{text}
	}
	var parts []string
	for len(text) > discordMaxMessageLength {
		cut := discordMaxMessageLength
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
