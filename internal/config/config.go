// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	RSSPollInterval       time.Duration
	BoardPollInterval     time.Duration
	FrontPagePollInterval time.Duration
	BoardRequestInterval  time.Duration
	BoardConcurrency      int

	BoardAPIURL   string
	BoardWebURL   string
	BoardMediaURL string

	MessageLimit int
	OutboxSize   int
	SendInterval time.Duration
	MetricsAddr  string
}

// Load reads configuration from environment variables. Variables from a
// .env file in the working directory are applied first if the file exists;
// they never override the real environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     stringVar("DATABASE_PATH", "./data/feedwatch.db"),
		LogLevel:         stringVar("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		BoardAPIURL:      strings.TrimRight(stringVar("BOARD_API_URL", "https://a.4cdn.org"), "/"),
		BoardWebURL:      strings.TrimRight(stringVar("BOARD_WEB_URL", "https://boards.4chan.org"), "/"),
		BoardMediaURL:    strings.TrimRight(stringVar("BOARD_MEDIA_URL", "https://i.4cdn.org"), "/"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
	}

	var err error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"RSS_POLL_INTERVAL", 30 * time.Second, &cfg.RSSPollInterval},
		{"BOARD_POLL_INTERVAL", 0, &cfg.BoardPollInterval},
		{"FRONTPAGE_POLL_INTERVAL", time.Second, &cfg.FrontPagePollInterval},
		{"BOARD_REQUEST_INTERVAL", time.Second, &cfg.BoardRequestInterval},
		{"SEND_INTERVAL", 50 * time.Millisecond, &cfg.SendInterval},
	}
	for _, d := range durations {
		if *d.dst, err = durationVar(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"BOARD_CONCURRENCY", 4, &cfg.BoardConcurrency},
		{"MESSAGE_LIMIT", 2000, &cfg.MessageLimit},
		{"OUTBOX_SIZE", 100, &cfg.OutboxSize},
	}
	for _, v := range ints {
		if *v.dst, err = intVar(v.key, v.def); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func stringVar(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, raw)
	}
	return d, nil
}

func intVar(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return n, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
