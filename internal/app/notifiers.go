package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/dosewise/internal/reminder"
)

// buildNotifier always logs reminders and also sends them to Telegram and
// Discord when configured. A chat notifier failing at startup is not fatal.
func (app *App) buildNotifier() reminder.Notifier {
	notifiers := reminder.MultiNotifier{reminder.NewLogNotifier(app.Logger.Named("reminder"))}
	client := &http.Client{Timeout: 15 * time.Second}

	if tg := app.Config.Reminders.Telegram; tg.Enabled {
		bot, err := reminder.NewTelegramNotifier(reminder.TelegramConfig{
			Token:  tg.BotToken,
			ChatID: tg.ChatID,
		}, client)
		if err != nil {
			app.Logger.Error("Failed to create Telegram notifier", zap.Error(err))
		} else {
			app.Logger.Info("Telegram reminders enabled", zap.String("bot", bot.BotName()))
			notifiers = append(notifiers, bot)
		}
	}

	if dc := app.Config.Reminders.Discord; dc.Enabled {
		bot, err := reminder.NewDiscordNotifier(reminder.DiscordConfig{
			Token:     dc.BotToken,
			ChannelID: dc.ChannelID,
		}, client)
		if err != nil {
			app.Logger.Error("Failed to create Discord notifier", zap.Error(err))
		} else {
			app.Logger.Info("Discord reminders enabled", zap.String("channel_id", dc.ChannelID))
			notifiers = append(notifiers, bot)
		}
	}

	return notifiers
}

func (app *App) buildRunner() (*reminder.Runner, error) {
	loc, err := app.Config.Location()
	if err != nil {
		return nil, err
	}

	runner := reminder.NewRunner(reminder.Config{
		Spec:          app.Config.Reminders.Spec,
		MaxConcurrent: app.Config.Reminders.MaxConcurrent,
		Location:      loc,
	}, app.Health, app.Tracker, app.KV, app.buildNotifier(), app.Logger.Named("reminder"), app.Metrics)

	return runner.WithLeads(app.Prefs), nil
}
