package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/gmsas95/dosewise/internal/errors"
)

// Config holds all configuration for dosewise
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Security  SecurityConfig  `mapstructure:"security"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// File is the config file that was read, empty when none existed.
	File string `mapstructure:"-"`

	configuredSecret bool
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	Timezone     string `mapstructure:"timezone"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AdminPassword string   `mapstructure:"admin_password"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
	TokenTTL      int      `mapstructure:"token_ttl"`
}

// RemindersConfig holds the reminder sweep settings
type RemindersConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Spec          string         `mapstructure:"spec"`
	MaxConcurrent int            `mapstructure:"max_concurrent"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
	Discord       DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// DiscordConfig holds Discord bot settings
type DiscordConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
}

// EngineConfig holds dose engine tuning
type EngineConfig struct {
	StreakLookbackDays int `mapstructure:"streak_lookback_days"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RateLimitConfig bounds writes per user
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	dataDir = expandPath(dataDir)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "dosewise.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "dosewise.yaml")
	}
	configPath = expandPath(configPath)

	readFile := ""
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		readFile = configPath
	}

	// DOSEWISE_SERVER_PORT, DOSEWISE_REMINDERS_SPEC, ...
	v.SetEnvPrefix("DOSEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = readFile

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.timezone", "Local")

	v.SetDefault("security.allow_origins", []string{"*"})
	v.SetDefault("security.token_ttl", 24*60)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.spec", "@every 1m")
	v.SetDefault("reminders.max_concurrent", 4)
	v.SetDefault("reminders.telegram.enabled", false)
	v.SetDefault("reminders.discord.enabled", false)

	v.SetDefault("engine.streak_lookback_days", 90)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("rate_limit.per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "dosewise")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "dosewise")
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return apperrors.WithCause(apperrors.ErrConfigInvalid,
			fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}

	if _, err := cfg.Location(); err != nil {
		return apperrors.WithCause(apperrors.ErrConfigInvalid, err)
	}

	if cfg.Engine.StreakLookbackDays < 1 || cfg.Engine.StreakLookbackDays > 365 {
		return apperrors.WithCause(apperrors.ErrConfigInvalid,
			fmt.Errorf("engine.streak_lookback_days must be within 1..365"))
	}

	if cfg.RateLimit.PerMinute <= 0 || cfg.RateLimit.Burst <= 0 {
		return apperrors.WithCause(apperrors.ErrConfigInvalid,
			fmt.Errorf("rate_limit.per_minute and rate_limit.burst must be positive"))
	}

	if cfg.Reminders.Enabled && cfg.Reminders.Spec == "" {
		return apperrors.WithCause(apperrors.ErrConfigInvalid,
			fmt.Errorf("reminders.spec is required when reminders are enabled"))
	}

	if cfg.Reminders.Telegram.Enabled {
		if cfg.Reminders.Telegram.BotToken == "" {
			return apperrors.WithCause(apperrors.ErrConfigInvalid,
				fmt.Errorf("reminders.telegram.bot_token is required"))
		}
		if cfg.Reminders.Telegram.ChatID == 0 {
			return apperrors.WithCause(apperrors.ErrConfigInvalid,
				fmt.Errorf("reminders.telegram.chat_id is required"))
		}
	}

	if d := cfg.Reminders.Discord; d.Enabled && (d.BotToken == "" || d.ChannelID == "") {
		return apperrors.WithCause(apperrors.ErrConfigInvalid,
			fmt.Errorf("reminders.discord.bot_token and reminders.discord.channel_id are required"))
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "console", "text":
	default:
		return apperrors.WithCause(apperrors.ErrConfigInvalid,
			fmt.Errorf("log.format %q not supported", cfg.Log.Format))
	}

	cfg.configuredSecret = cfg.Security.JWTSecret != ""
	if !cfg.configuredSecret {
		secret, err := generateSecret(32)
		if err != nil {
			return fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		cfg.Security.JWTSecret = secret
	}

	return nil
}

func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Location resolves server.timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Server.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Server.Timezone, err)
	}
	return loc, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// LoopbackOnly reports whether the server address only accepts local
// connections. An empty address listens on every interface.
func (c *Config) LoopbackOnly() bool {
	host := strings.Trim(c.Server.Address, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Security.TokenTTL) * time.Minute
}
