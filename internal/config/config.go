package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // market timezone must resolve in slim containers

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Incomplete-row policies applied after assembly.
const (
	IncompleteRowDrop = "drop"
	IncompleteRowFail = "fail"
)

type Config struct {
	TelegramBotToken string
	// TelegramChatID receives scheduled reports; 0 disables delivery.
	TelegramChatID int64
	DatabaseURL      string
	// RedisURL enables the cross-process run lock. Empty keeps the lock in-process.
	RedisURL string
	APIKey   string
	HTTPPort int `validate:"min=1,max=65535"`

	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	ModelDir        string `validate:"required"`
	Profile         string `validate:"oneof=open-known full"`
	OnIncompleteRow string `validate:"oneof=drop fail"`
	MarketTimezone  string `validate:"required"`
	UniverseFile    string
	ScrapeUserAgent string
	// SourceRequestsPerSec caps history and scrape requests; 0 disables the cap.
	SourceRequestsPerSec int `validate:"min=0"`
	RunTimeoutSecs       int `validate:"min=1"`
	RunLockTTLSecs       int `validate:"min=1"`
	// SignalCron is a six-field (seconds first) schedule; empty disables the job.
	SignalCron string

	MCPTransport       string `validate:"oneof=stdio http"`
	MCPHTTPEnabled     bool
	MCPHTTPBind        string
	MCPHTTPPort        int `validate:"min=1,max=65535"`
	MCPAuthToken       string
	MCPRateLimitPerMin int `validate:"min=1"`

	SSHPort        int `validate:"min=1,max=65535"`
	SSHHostKeyPath string
	// SSHAuthorizedKeys is an authorized_keys file; empty rejects every key.
	SSHAuthorizedKeys string
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		APIKey:           os.Getenv("API_KEY"),
		UniverseFile:     strings.TrimSpace(os.Getenv("UNIVERSE_FILE")),
		SignalCron:       strings.TrimSpace(os.Getenv("SIGNAL_CRON")),
		MCPAuthToken:     os.Getenv("MCP_AUTH_TOKEN"),
	}

	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, runs will not be persisted")
	}
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, using in-process run lock")
	}

	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Warn().Str("value", raw).Msg("invalid TELEGRAM_CHAT_ID, scheduled reports will not be delivered")
		} else {
			cfg.TelegramChatID = id
		}
	}

	cfg.HTTPPort = intEnv("PORT", 8080, 1)
	cfg.LogLevel = lowerEnv("LOG_LEVEL", "info")
	cfg.LogFormat = lowerEnv("LOG_FORMAT", "console")

	cfg.ModelDir = strings.TrimSpace(os.Getenv("MODEL_DIR"))
	if cfg.ModelDir == "" {
		cfg.ModelDir = "models"
	}
	cfg.Profile = lowerEnv("SIGNAL_PROFILE", "open-known")

	cfg.OnIncompleteRow = lowerEnv("ON_INCOMPLETE_ROW", IncompleteRowDrop)
	if cfg.OnIncompleteRow != IncompleteRowDrop && cfg.OnIncompleteRow != IncompleteRowFail {
		log.Warn().Str("value", cfg.OnIncompleteRow).Msg("unsupported ON_INCOMPLETE_ROW, defaulting to drop")
		cfg.OnIncompleteRow = IncompleteRowDrop
	}

	cfg.MarketTimezone = strings.TrimSpace(os.Getenv("MARKET_TZ"))
	if cfg.MarketTimezone == "" {
		cfg.MarketTimezone = "Asia/Tokyo"
	}
	cfg.ScrapeUserAgent = strings.TrimSpace(os.Getenv("SCRAPE_USER_AGENT"))
	if cfg.ScrapeUserAgent == "" {
		cfg.ScrapeUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
	cfg.SourceRequestsPerSec = intEnv("SOURCE_REQUESTS_PER_SEC", 2, 0)
	cfg.RunTimeoutSecs = intEnv("RUN_TIMEOUT_SECS", 180, 1)
	cfg.RunLockTTLSecs = intEnv("RUN_LOCK_TTL_SECS", 600, 1)

	cfg.MCPTransport = lowerEnv("MCP_TRANSPORT", "stdio")
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Warn().Str("value", cfg.MCPTransport).Msg("unsupported MCP_TRANSPORT, defaulting to stdio")
		cfg.MCPTransport = "stdio"
	}
	cfg.MCPHTTPEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("MCP_HTTP_ENABLED")), "true")
	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}
	cfg.MCPHTTPPort = intEnv("MCP_HTTP_PORT", 8090, 1)
	cfg.MCPRateLimitPerMin = intEnv("MCP_RATE_LIMIT_PER_MIN", 10, 1)

	cfg.SSHPort = intEnv("SSH_PORT", 2222, 1)
	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/ni225_host_ed25519"
	}
	cfg.SSHAuthorizedKeys = strings.TrimSpace(os.Getenv("SSH_AUTHORIZED_KEYS"))

	return cfg
}

// Validate checks field constraints and that the market timezone resolves.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves MarketTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return nil, fmt.Errorf("market timezone %q: %w", c.MarketTimezone, err)
	}
	return loc, nil
}

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSecs) * time.Second
}

func (c *Config) RunLockTTL() time.Duration {
	return time.Duration(c.RunLockTTLSecs) * time.Second
}

func intEnv(key string, def, min int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("invalid integer setting, using default")
		return def
	}
	return n
}

func lowerEnv(key, def string) string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v
}
