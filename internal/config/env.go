package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EnvFiles lists the .env files LoadEnvFiles reads, in priority order.
func EnvFiles() []string {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".dosewise", ".env"),
			filepath.Join(home, ".config", "dosewise", ".env"),
		)
	}
	return paths
}

// LoadEnvFiles exports the variables of every existing .env file. Variables
// already set in the environment win, so earlier files win over later ones.
func LoadEnvFiles() error {
	for _, path := range EnvFiles() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if _, err := loadEnvFile(path); err != nil {
			return err
		}
	}
	return nil
}

// loadEnvFile returns how many variables it set.
func loadEnvFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	set := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return set, err
		}
		set++
	}
	return set, scanner.Err()
}

// parseEnvLine understands KEY=value, export KEY=value, quoted values and
// trailing " #" comments on unquoted values.
func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	value = strings.TrimSpace(value)

	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		return key, value[1 : n-1], true
	}
	if i := strings.Index(value, " #"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return key, value, true
}

// envOverride maps a canonical DOSEWISE_ variable and its shorter aliases
// onto a config field.
type envOverride struct {
	canonical string
	aliases   []string
	apply     func(cfg *Config, value string)
}

var envOverrides = []envOverride{
	{
		canonical: "DOSEWISE_REMINDERS_TELEGRAM_BOT_TOKEN",
		aliases:   []string{"TELEGRAM_BOT_TOKEN"},
		apply:     func(cfg *Config, v string) { cfg.Reminders.Telegram.BotToken = v },
	},
	{
		canonical: "DOSEWISE_REMINDERS_TELEGRAM_CHAT_ID",
		aliases:   []string{"TELEGRAM_CHAT_ID"},
		apply: func(cfg *Config, v string) {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				cfg.Reminders.Telegram.ChatID = id
			}
		},
	},
	{
		canonical: "DOSEWISE_REMINDERS_DISCORD_BOT_TOKEN",
		aliases:   []string{"DISCORD_BOT_TOKEN"},
		apply:     func(cfg *Config, v string) { cfg.Reminders.Discord.BotToken = v },
	},
	{
		canonical: "DOSEWISE_REMINDERS_DISCORD_CHANNEL_ID",
		aliases:   []string{"DISCORD_CHANNEL_ID"},
		apply:     func(cfg *Config, v string) { cfg.Reminders.Discord.ChannelID = v },
	},
	{
		canonical: "DOSEWISE_SECURITY_JWT_SECRET",
		aliases:   []string{"DOSEWISE_JWT_SECRET", "JWT_SECRET"},
		apply:     func(cfg *Config, v string) { cfg.Security.JWTSecret = v },
	},
	{
		canonical: "DOSEWISE_SECURITY_ADMIN_PASSWORD",
		aliases:   []string{"DOSEWISE_ADMIN_PASSWORD"},
		apply:     func(cfg *Config, v string) { cfg.Security.AdminPassword = v },
	},
	{
		canonical: "DOSEWISE_SERVER_TIMEZONE",
		aliases:   []string{"DOSEWISE_TZ"},
		apply:     func(cfg *Config, v string) { cfg.Server.Timezone = v },
	},
}

// resolve returns the first non-empty value among the canonical name and
// its aliases.
func (o envOverride) resolve() string {
	for _, key := range append([]string{o.canonical}, o.aliases...) {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// loadEnvOverrides applies the aliased env vars viper cannot see on its own.
func loadEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := o.resolve(); v != "" {
			o.apply(cfg, v)
		}
	}
}

// expandPath resolves a leading ~/ against the home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
