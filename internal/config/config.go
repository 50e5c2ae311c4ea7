package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIKey      string `env:"API_KEY,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	// PushEnabled selects the streaming gateway's primary mode. When false
	// every stream is served from the status store poll loop instead.
	PushEnabled bool `env:"PUSH_ENABLED,default=true"`

	StatusTTLSeconds     int `env:"STATUS_TTL_SECONDS,default=3600"`
	StaleAfterMinutes    int `env:"STALE_AFTER_MINUTES,default=240"`
	PollIntervalSeconds  int `env:"POLL_INTERVAL_SECONDS,default=2"`
	MaxPolls             int `env:"MAX_POLLS,default=120"`
	StreamTimeoutSeconds int `env:"STREAM_TIMEOUT_SECONDS,default=240"`

	SchedulerIntervalMinutes int `env:"SCHEDULER_INTERVAL_MINUTES,default=15"`
	SchedulerScanLimit       int `env:"SCHEDULER_SCAN_LIMIT,default=50"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE,default=30"`

	// CompletionWebhookURL, when set, receives a POST with the terminal
	// batch result after every completion.
	CompletionWebhookURL string `env:"COMPLETION_WEBHOOK_URL"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) StatusTTL() time.Duration {
	return time.Duration(c.StatusTTLSeconds) * time.Second
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutSeconds) * time.Second
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalMinutes) * time.Minute
}
