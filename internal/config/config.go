// Package config loads runtime settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/notice"
	"github.com/whisper/spamguard/internal/privilege"
)

// ErrMissingToken is returned by Validate when no bot token is configured.
var ErrMissingToken = errors.New("config: TELEGRAM_BOT_TOKEN is required")

// Config is the full process configuration.
type Config struct {
	BotToken     string `env:"TELEGRAM_BOT_TOKEN"`
	KeywordsFile string `env:"KEYWORDS_FILE" envDefault:"keywords.json"`

	PrivilegeTTL           time.Duration `env:"PRIVILEGE_CACHE_TTL"      envDefault:"300s"`
	PrivilegeEvictAfter    time.Duration `env:"PRIVILEGE_EVICT_AFTER"    envDefault:"20m"`
	PrivilegeSweepSchedule string        `env:"PRIVILEGE_SWEEP_SCHEDULE" envDefault:"*/10 * * * *"`

	NoticeTTL      time.Duration `env:"NOTICE_TTL"      envDefault:"5s"`
	NoticeShutdown string        `env:"NOTICE_SHUTDOWN" envDefault:"drain"`

	WorkerPoolSize int     `env:"WORKER_POOL_SIZE"  envDefault:"64"`
	AllowedAdmins  []int64 `env:"ALLOWED_ADMIN_IDS" envSeparator:","`

	HealthAddr        string        `env:"HEALTH_ADDR"        envDefault:":8080"`
	KeepAliveURL      string        `env:"KEEPALIVE_URL"`
	KeepAliveInterval time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"10m"`

	RedisAddr   string `env:"REDIS_ADDR"`
	NATSURL     string `env:"NATS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads .env when present and then parses the environment. It does not
// validate; callers that need a bot token call Validate.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks settings needed to serve.
func (c Config) Validate() error {
	if c.BotToken == "" {
		return ErrMissingToken
	}
	return c.ValidateSettings()
}

// ValidateSettings checks everything except the bot token.
func (c Config) ValidateSettings() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"PRIVILEGE_CACHE_TTL", c.PrivilegeTTL},
		{"PRIVILEGE_EVICT_AFTER", c.PrivilegeEvictAfter},
		{"NOTICE_TTL", c.NoticeTTL},
		{"KEEPALIVE_INTERVAL", c.KeepAliveInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", d.name, d.d)
		}
	}
	if c.PrivilegeEvictAfter < c.PrivilegeTTL {
		return fmt.Errorf("config: PRIVILEGE_EVICT_AFTER (%s) must not be shorter than PRIVILEGE_CACHE_TTL (%s)",
			c.PrivilegeEvictAfter, c.PrivilegeTTL)
	}
	if !gronx.New().IsValid(c.PrivilegeSweepSchedule) {
		return fmt.Errorf("config: PRIVILEGE_SWEEP_SCHEDULE %q is not a valid cron expression", c.PrivilegeSweepSchedule)
	}
	switch c.NoticeShutdown {
	case notice.ModeDrain, notice.ModeAbandon:
	default:
		return fmt.Errorf("config: NOTICE_SHUTDOWN must be %q or %q, got %q", notice.ModeDrain, notice.ModeAbandon, c.NoticeShutdown)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("config: WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return nil
}

// Privilege maps the settings onto the privilege cache config.
func (c Config) Privilege() privilege.Config {
	return privilege.Config{
		TTL:           c.PrivilegeTTL,
		EvictAfter:    c.PrivilegeEvictAfter,
		SweepSchedule: c.PrivilegeSweepSchedule,
	}
}

// Notice maps the settings onto the notice scheduler config.
func (c Config) Notice() notice.Config {
	cfg := notice.DefaultConfig()
	cfg.Delay = c.NoticeTTL
	return cfg
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
