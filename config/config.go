package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"marketsim/internal/engine"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Listeners
	HTTPAddr    string
	MetricsAddr string

	// Infrastructure. An empty RedisAddr disables the latest-state publisher;
	// an empty SQLitePath disables the archive.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	// Simulation
	CatalogPath  string
	Seed         int64
	Speed        time.Duration
	Lookback     time.Duration
	HistoryLimit int
	AutoStart    bool

	// Alerts. With neither backend configured, alerts are only logged.
	AlertWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
}

// Load reads an optional .env file, then the environment, with defaults.
func Load() (*Config, error) {
	LoadDotenvOnce()

	c := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/marketsim.db"),

		CatalogPath: os.Getenv("SIM_CATALOG"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
	}
	if strings.EqualFold(c.SQLitePath, "off") {
		c.SQLitePath = ""
	}

	var err error
	if c.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if c.Seed, err = envInt64("SIM_SEED", 0); err != nil {
		return nil, err
	}
	speedMS, err := envInt64("SIM_SPEED_MS", 1000)
	if err != nil {
		return nil, err
	}
	if speedMS > engine.MaxSpeedMillis {
		return nil, fmt.Errorf("config: SIM_SPEED_MS must be at most %d, got %d", engine.MaxSpeedMillis, speedMS)
	}
	c.Speed = time.Duration(speedMS) * time.Millisecond
	if c.Lookback, err = envDuration("SIM_LOOKBACK", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if c.HistoryLimit, err = envInt("SIM_HISTORY_LIMIT", 0); err != nil {
		return nil, err
	}
	if c.AutoStart, err = envBool("SIM_AUTOSTART", true); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate returns a descriptive error for out-of-range settings.
func (c *Config) Validate() error {
	switch {
	case c.Speed <= 0:
		return fmt.Errorf("config: SIM_SPEED_MS must be positive, got %v", c.Speed)
	case c.Lookback < 0:
		return fmt.Errorf("config: SIM_LOOKBACK must not be negative, got %v", c.Lookback)
	case c.HistoryLimit < 0:
		return fmt.Errorf("config: SIM_HISTORY_LIMIT must not be negative, got %d", c.HistoryLimit)
	case c.RedisDB < 0:
		return fmt.Errorf("config: REDIS_DB must not be negative, got %d", c.RedisDB)
	case (c.TelegramBotToken == "") != (c.TelegramChatID == ""):
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// RedisEnabled reports whether a Redis address was configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// ArchiveEnabled reports whether the SQLite archive is on.
func (c *Config) ArchiveEnabled() bool { return c.SQLitePath != "" }

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a duration", key, v)
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
