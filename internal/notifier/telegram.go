package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"stockwatch/internal/inventory"
)

const telegramTextLimit = 4000

// Telegram is a send-only messaging channel. The bot never polls for updates.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
}

func NewTelegram(cfg MessagingConfig) (*Telegram, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram: %w: bot token and chat id are required", ErrNotConfigured)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{bot: b, chat: &tele.Chat{ID: cfg.ChatID}}, nil
}

func (t *Telegram) Name() string           { return DriverTelegram }
func (t *Telegram) Agent() inventory.Agent { return inventory.AgentMessaging }

func (t *Telegram) SendAlert(ctx context.Context, a Alert) error {
	return deliveryErr(t.Name(), "alert", t.send(ctx, FormatAlert(a)))
}

func (t *Telegram) SendReport(ctx context.Context, r Report) error {
	return deliveryErr(t.Name(), "report", t.send(ctx, FormatReport(r)))
}

func (t *Telegram) SuggestActions(ctx context.Context, s Suggestion) error {
	if s.Empty() {
		return nil
	}
	return deliveryErr(t.Name(), "suggest", t.send(ctx, FormatSuggestion(s)))
}

// send delivers text chunk by chunk. telebot has no context support, so the
// context is checked between chunks and the HTTP client timeout bounds each call.
func (t *Telegram) send(ctx context.Context, text string) error {
	for _, chunk := range splitText(text, telegramTextLimit) {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := t.bot.Send(t.chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}
