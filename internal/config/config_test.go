package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DOSEWISE_SERVER_PORT",
		"DOSEWISE_SERVER_TIMEZONE",
		"DOSEWISE_TZ",
		"DOSEWISE_LOG_LEVEL",
		"DOSEWISE_REMINDERS_SPEC",
		"DOSEWISE_REMINDERS_TELEGRAM_BOT_TOKEN",
		"DOSEWISE_REMINDERS_TELEGRAM_CHAT_ID",
		"TELEGRAM_BOT_TOKEN",
		"TELEGRAM_CHAT_ID",
		"DOSEWISE_REMINDERS_DISCORD_BOT_TOKEN",
		"DOSEWISE_REMINDERS_DISCORD_CHANNEL_ID",
		"DISCORD_BOT_TOKEN",
		"DISCORD_CHANNEL_ID",
		"DOSEWISE_SECURITY_JWT_SECRET",
		"DOSEWISE_JWT_SECRET",
		"JWT_SECRET",
		"DOSEWISE_SECURITY_ADMIN_PASSWORD",
		"DOSEWISE_ADMIN_PASSWORD",
		"DOSEWISE_ENGINE_STREAK_LOOKBACK_DAYS",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "dosewise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.True(t, cfg.LoopbackOnly())
	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dir, "dosewise.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, filepath.Join(dir, "badger"), cfg.Storage.BadgerPath)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowOrigins)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.True(t, cfg.Reminders.Enabled)
	assert.Equal(t, "@every 1m", cfg.Reminders.Spec)
	assert.False(t, cfg.Reminders.Telegram.Enabled)
	assert.Equal(t, 90, cfg.Engine.StreakLookbackDays)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
	assert.Empty(t, cfg.File)

	// generated secret
	assert.Len(t, cfg.Security.JWTSecret, 64)
	assert.False(t, cfg.configuredSecret)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  port: 9090
  timezone: America/New_York
engine:
  streak_lookback_days: 30
reminders:
  spec: "*/5 * * * *"
  telegram:
    enabled: true
    chat_id: 42
log:
  level: debug
  format: console
`)
	t.Setenv("DOSEWISE_SERVER_PORT", "9191")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DOSEWISE_JWT_SECRET", "s3cret")

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, 9191, cfg.Server.Port, "env beats file")
	assert.Equal(t, 30, cfg.Engine.StreakLookbackDays)
	assert.Equal(t, "*/5 * * * *", cfg.Reminders.Spec)
	assert.Equal(t, "123:abc", cfg.Reminders.Telegram.BotToken)
	assert.Equal(t, int64(42), cfg.Reminders.Telegram.ChatID)
	assert.Equal(t, "s3cret", cfg.Security.JWTSecret)
	assert.True(t, cfg.configuredSecret)
	assert.Equal(t, "debug", cfg.Log.Level)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoopbackOnly(t *testing.T) {
	tests := []struct {
		address string
		want    bool
	}{
		{"127.0.0.1", true},
		{"127.0.0.53", true},
		{"localhost", true},
		{"::1", true},
		{"[::1]", true},
		{"0.0.0.0", false},
		{"", false},
		{"192.168.1.20", false},
		{"dosewise.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{Address: tt.address}}
			assert.Equal(t, tt.want, cfg.LoopbackOnly())
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad timezone", "server:\n  timezone: Mars/Olympus\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"lookback too long", "engine:\n  streak_lookback_days: 400\n"},
		{"telegram without token", "reminders:\n  telegram:\n    enabled: true\n    chat_id: 1\n"},
		{"telegram without chat", "reminders:\n  telegram:\n    enabled: true\n    bot_token: x\n"},
		{"discord without channel", "reminders:\n  discord:\n    enabled: true\n    bot_token: x\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"zero burst", "rate_limit:\n  burst: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			path := writeConfig(t, dir, tt.body)

			_, err := Load(path, dir)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrConfigInvalid.Code, apperrors.GetCode(err))
		})
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "absent.yaml"), dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
}

func TestWatcherRequiresFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)

	_, err = NewWatcher(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestWatcherReloads(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, "log:\n  level: info\n")

	cfg, err := Load(path, dir)
	require.NoError(t, err)
	secret := cfg.Security.JWTSecret

	w, err := NewWatcher(cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	var calls atomic.Int32
	var level atomic.Value
	w.OnChange(func(c *Config) {
		level.Store(c.Log.Level)
		calls.Add(1)
	})

	writeConfig(t, dir, "log:\n  level: debug\n")

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "debug", level.Load())
	assert.Equal(t, "debug", w.Current().Log.Level)
	assert.Equal(t, secret, w.Current().Security.JWTSecret, "generated secret survives reload")
}

func TestWatcherKeepsPreviousOnInvalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, "log:\n  level: info\n")

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	w, err := NewWatcher(cfg, zap.NewNop())
	require.NoError(t, err)

	var calls atomic.Int32
	w.OnChange(func(*Config) { calls.Add(1) })

	writeConfig(t, dir, "server:\n  timezone: Nowhere/Land\n")
	time.Sleep(time.Second)

	assert.Zero(t, calls.Load())
	assert.Equal(t, cfg, w.Current())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, expandPath(tt.input))
	}
}
