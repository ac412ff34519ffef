package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DevSecret signs tokens when MARK_SECRET is unset. Only fit for local runs.
const DevSecret = "dev-secret"

// Config holds application configuration loaded from environment variables.
type Config struct {
	Transport     string `envconfig:"TRANSPORT" default:"discord"` // discord|telegram
	DiscordToken  string `envconfig:"DISCORD_TOKEN"`
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"sqlite"` // sqlite|json
	DBPath       string `envconfig:"DB_PATH" default:"./data/reminders.db"`
	DataDir      string `envconfig:"DATA_DIR" default:"./data"`
	CatalogPath  string `envconfig:"CATALOG_PATH" default:"./data/config.json"`

	DefaultTZ      string        `envconfig:"DEFAULT_TZ" default:"Europe/Paris"`
	DefaultVoteURL string        `envconfig:"DEFAULT_VOTE_URL"`
	PublicBaseURL  string        `envconfig:"PUBLIC_BASE_URL"`
	MarkSecret     string        `envconfig:"MARK_SECRET"`
	TokenMaxAge    time.Duration `envconfig:"TOKEN_MAX_AGE" default:"0"`
	AdminIDs       []string      `envconfig:"ADMIN_IDS"` // user ids allowed to run /voteurl

	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":3000"`
	Port        string `envconfig:"PORT"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`      // debug|info|warn|error
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`   // json|console
	Lang        string `envconfig:"BOT_LANG" default:"fr"`         // fr|en
	SendRate    int    `envconfig:"SEND_RATE" default:"5"`         // outbound messages per second
	TickSpec    string `envconfig:"TICK_SPEC" default:"* * * * *"` // evaluator cron spec
}

// Load reads a .env file when present, then environment variables into Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.Port != "" {
		cfg.HTTPAddr = ":" + strings.TrimPrefix(cfg.Port, ":")
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	switch c.Transport {
	case "discord":
		if c.DiscordToken == "" {
			return errors.New("DISCORD_TOKEN is required for the discord transport")
		}
	case "telegram":
		if c.TelegramToken == "" {
			return errors.New("TELEGRAM_TOKEN is required for the telegram transport")
		}
	default:
		return fmt.Errorf("unknown TRANSPORT %q", c.Transport)
	}
	switch c.StoreBackend {
	case "sqlite", "json":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if _, err := time.LoadLocation(c.DefaultTZ); err != nil {
		return fmt.Errorf("DEFAULT_TZ: %w", err)
	}
	if c.SendRate < 0 {
		return errors.New("SEND_RATE must not be negative")
	}
	if c.TokenMaxAge < 0 {
		return errors.New("TOKEN_MAX_AGE must not be negative")
	}
	return nil
}

// Secret returns MARK_SECRET, or DevSecret when unset. insecure reports the fallback.
func (c Config) Secret() (secret string, insecure bool) {
	if c.MarkSecret == "" {
		return DevSecret, true
	}
	return c.MarkSecret, false
}
