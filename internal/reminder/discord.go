package reminder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/gmsas95/dosewise/internal/security"
)

// DiscordConfig configures channel delivery.
type DiscordConfig struct {
	Token     string
	ChannelID string
}

// DiscordNotifier posts reminders to one channel over the REST API. It never
// opens a gateway connection.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordNotifier(cfg DiscordConfig, client *http.Client) (*DiscordNotifier, error) {
	if cfg.Token == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord token and channel id are required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, security.RedactError(fmt.Errorf("failed to create discord session: %w", err))
	}
	if client != nil {
		session.Client = client
	}
	session.ShouldRetryOnRateLimit = false

	return &DiscordNotifier{session: session, channelID: cfg.ChannelID}, nil
}

func (n *DiscordNotifier) Notify(ctx context.Context, r Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.session.ChannelMessageSend(n.channelID, r.Text(), discordgo.WithContext(ctx)); err != nil {
		return security.RedactError(fmt.Errorf("discord send: %w", err))
	}
	return nil
}
