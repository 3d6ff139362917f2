package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/retry"
)

// RetryConfig is shared by both binaries and parsed with the RETRY_ prefix.
type RetryConfig struct {
	MaxRetries        int     `env:"MAX_RETRIES" envDefault:"3"`
	InitialDelayMs    int     `env:"INITIAL_DELAY_MS" envDefault:"500"`
	MaxDelayMs        int     `env:"MAX_DELAY_MS" envDefault:"10000"`
	BackoffMultiplier float64 `env:"BACKOFF_MULTIPLIER" envDefault:"2.0"`
	JitterEnabled     bool    `env:"JITTER_ENABLED" envDefault:"true"`
}

func (c RetryConfig) Options() retry.Options {
	opts := retry.Options{
		MaxRetries:        c.MaxRetries,
		InitialDelay:      time.Duration(c.InitialDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(c.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: c.BackoffMultiplier,
		JitterEnabled:     c.JitterEnabled,
	}
	return opts.Normalize()
}

type Config struct {
	Port                      int         `env:"PORT" envDefault:"8080"`
	DatabaseURL               string      `env:"DATABASE_URL,required"`
	RedisURL                  string      `env:"REDIS_URL,required"`
	PublicBaseURL             string      `env:"PUBLIC_BASE_URL" envDefault:""`
	BridgeAPIKey              string      `env:"BRIDGE_API_KEY"`
	GroupMeAccessToken        string      `env:"GROUPME_ACCESS_TOKEN"`
	GroupMeAPIURL             string      `env:"GROUPME_API_URL" envDefault:"https://api.groupme.com/v3"`
	GroupMeBotName            string      `env:"GROUPME_BOT_NAME" envDefault:"COBRA"`
	TeamsBotURL               string      `env:"TEAMS_BOT_URL" envDefault:""`
	TeamsBotAPIKey            string      `env:"TEAMS_BOT_API_KEY"`
	OutboundWorkers           int         `env:"OUTBOUND_WORKERS" envDefault:"4"`
	OutboundQueueSize         int         `env:"OUTBOUND_QUEUE_SIZE" envDefault:"256"`
	OutboundJobTimeoutSeconds int         `env:"OUTBOUND_JOB_TIMEOUT_SECONDS" envDefault:"60"`
	RedeliveryMaxAttempts     int         `env:"REDELIVERY_MAX_ATTEMPTS" envDefault:"5"`
	RedeliveryIntervalSeconds int         `env:"REDELIVERY_INTERVAL_SECONDS" envDefault:"60"`
	WebhookRateLimitPerMin    int         `env:"WEBHOOK_RATE_LIMIT_PER_MIN" envDefault:"600"`
	AutoMigrate               bool        `env:"AUTO_MIGRATE" envDefault:"false"`
	LogLevel                  string      `env:"LOG_LEVEL" envDefault:"info"`
	Retry                     RetryConfig `envPrefix:"RETRY_"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) OutboundJobTimeout() time.Duration {
	return time.Duration(c.OutboundJobTimeoutSeconds) * time.Second
}

func (c *Config) RedeliveryInterval() time.Duration {
	return time.Duration(c.RedeliveryIntervalSeconds) * time.Second
}

// WebhookURL builds the public callback URL for a mapping's inbound webhook.
func (c *Config) WebhookURL(platform, mappingID string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/api/webhooks/" + platform + "/" + mappingID
}

// Validate never fails on missing bridge settings: affected platforms log a
// warning and do nothing at call time.
func (c *Config) Validate() error {
	if c.OutboundWorkers <= 0 {
		return fmt.Errorf("OUTBOUND_WORKERS must be positive")
	}
	if c.OutboundQueueSize <= 0 {
		return fmt.Errorf("OUTBOUND_QUEUE_SIZE must be positive")
	}

	if c.PublicBaseURL == "" {
		log.Warn().Msg("PUBLIC_BASE_URL is empty: GroupMe bots will be created without a callback URL")
	}
	if c.GroupMeAccessToken == "" {
		log.Warn().Msg("GROUPME_ACCESS_TOKEN is empty: GroupMe provisioning and delivery disabled")
	}
	if c.TeamsBotURL == "" {
		log.Warn().Msg("TEAMS_BOT_URL is empty: Teams delivery disabled")
	}
	if c.BridgeAPIKey == "" {
		log.Warn().Msg("BRIDGE_API_KEY is empty: bridge endpoints accept unauthenticated calls")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// BotConfig configures the Teams bot relay.
type BotConfig struct {
	Port                    int         `env:"PORT" envDefault:"3978"`
	CobraAPIBaseURL         string      `env:"COBRA_API_BASE_URL" envDefault:""`
	CobraAPIKey             string      `env:"COBRA_API_KEY"`
	InternalAPIKey          string      `env:"INTERNAL_API_KEY"`
	RedisURL                string      `env:"REDIS_URL"`
	BotAppID                string      `env:"BOT_APP_ID"`
	BotAccessToken          string      `env:"BOT_ACCESS_TOKEN"`
	ActivityRateLimitPerMin int         `env:"ACTIVITY_RATE_LIMIT_PER_MIN" envDefault:"300"`
	LogLevel                string      `env:"LOG_LEVEL" envDefault:"info"`
	Retry                   RetryConfig `envPrefix:"RETRY_"`
}

func (c *BotConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *BotConfig) Validate() {
	if c.CobraAPIBaseURL == "" {
		log.Warn().Msg("COBRA_API_BASE_URL is empty: inbound Teams messages will not be forwarded")
	}
	if c.InternalAPIKey == "" {
		log.Warn().Msg("INTERNAL_API_KEY is empty: internal send endpoint is unauthenticated")
	}
	if c.RedisURL == "" {
		log.Warn().Msg("REDIS_URL is empty: conversation references are kept in memory only")
	}
}

func LoadBot() (*BotConfig, error) {
	var cfg BotConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse bot config: %w", err)
	}
	return &cfg, nil
}
