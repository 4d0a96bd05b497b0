package reminder

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gmsas95/dosewise/internal/security"
)

// TelegramConfig configures chat delivery.
type TelegramConfig struct {
	Token    string
	ChatID   int64
	Endpoint string // defaults to the public Bot API
}

// TelegramNotifier sends reminders to a single chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(cfg TelegramConfig, client *http.Client) (*TelegramNotifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, client)
	if err != nil {
		return nil, security.RedactError(fmt.Errorf("failed to create bot: %w", err))
	}
	api.Debug = false

	return &TelegramNotifier{api: api, chatID: cfg.ChatID}, nil
}

// BotName is the username the token authorised as.
func (n *TelegramNotifier) BotName() string {
	return n.api.Self.UserName
}

func (n *TelegramNotifier) Notify(ctx context.Context, r Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, r.Text())
	if _, err := n.api.Send(msg); err != nil {
		return security.RedactError(fmt.Errorf("telegram send: %w", err))
	}
	return nil
}
