package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opscribe/opscribe/pkg/apperrors"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Redact     RedactConfig     `mapstructure:"redact"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Slack      SlackConfig      `mapstructure:"slack"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Pretty      bool   `mapstructure:"pretty"`
	Service     string `mapstructure:"service"`
	Environment string `mapstructure:"environment"`
	File        string `mapstructure:"file"`
}

type DispatcherConfig struct {
	BufferSize    int `mapstructure:"buffer_size"`
	Workers       int `mapstructure:"workers"`
	SinkTimeoutMs int `mapstructure:"sink_timeout_ms"`
	RecentMax     int `mapstructure:"recent_max"`
}

type RedactConfig struct {
	Keys         []string `mapstructure:"keys"`
	DepthLimit   int      `mapstructure:"depth_limit"`
	ArrayLimit   int      `mapstructure:"array_limit"`
	MaxBodyBytes int      `mapstructure:"max_body_bytes"`
}

type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
	Index              string   `mapstructure:"index"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	AWSSigning         bool     `mapstructure:"aws_signing"`
	AWSRegion          string   `mapstructure:"aws_region"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	ListKey  string `mapstructure:"list_key"`
	ListMax  int    `mapstructure:"list_max"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	RetentionDays          int    `mapstructure:"retention_days"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type SlackConfig struct {
	BotToken          string `mapstructure:"bot_token"`
	Channel           string `mapstructure:"channel"`
	WebhookURL        string `mapstructure:"webhook_url"`
	MessagesPerMinute int    `mapstructure:"messages_per_minute"`
}

type SecretsConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Region      string   `mapstructure:"region"`
	SecretNames []string `mapstructure:"secret_names"`
}

type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. OPSCRIBE_OPENSEARCH_PASSWORD
	viper.SetEnvPrefix("opscribe")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.service", "opscribe")
	viper.SetDefault("logging.environment", "development")
	viper.SetDefault("dispatcher.buffer_size", 1000)
	viper.SetDefault("dispatcher.workers", 2)
	viper.SetDefault("dispatcher.sink_timeout_ms", 5000)
	viper.SetDefault("dispatcher.recent_max", 1000)
	viper.SetDefault("redact.depth_limit", 6)
	viper.SetDefault("redact.array_limit", 100)
	viper.SetDefault("redact.max_body_bytes", 64*1024)
	viper.SetDefault("opensearch.index", "transactions")
	viper.SetDefault("redis.list_key", "opscribe:transactions")
	viper.SetDefault("redis.list_max", 10000)
	viper.SetDefault("database.retention_days", 30)
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("slack.messages_per_minute", 30)
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay_ms", 250)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on configurations the sinks and collaborators would
// otherwise choke on at runtime.
func (c *Config) Validate() error {
	if c.Logging.Service == "" {
		return apperrors.NewConfigInvalid("logging.service is required")
	}
	if c.OpenSearch.Enabled {
		if len(c.OpenSearch.Addresses) == 0 {
			return apperrors.NewConfigInvalid("opensearch.addresses is required when opensearch is enabled")
		}
		if c.OpenSearch.Index == "" {
			return apperrors.NewConfigInvalid("opensearch.index is required when opensearch is enabled")
		}
		if c.OpenSearch.AWSSigning && c.OpenSearch.AWSRegion == "" {
			return apperrors.NewConfigInvalid("opensearch.aws_region is required with aws signing")
		}
	}
	if c.Secrets.Enabled {
		if c.Secrets.Region == "" {
			return apperrors.NewConfigInvalid("secrets.region is required when secrets loading is enabled")
		}
		if len(c.Secrets.SecretNames) == 0 {
			return apperrors.NewConfigInvalid("secrets.secret_names is required when secrets loading is enabled")
		}
	}
	if c.Slack.BotToken != "" && c.Slack.Channel == "" {
		return apperrors.NewConfigInvalid("slack.channel is required with a bot token")
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.BaseDelayMs < 0 {
		return apperrors.NewConfigInvalid("retry settings must be non-negative")
	}
	return nil
}

// SinkTimeout converts the millisecond setting.
func (c *Config) SinkTimeout() time.Duration {
	return time.Duration(c.Dispatcher.SinkTimeoutMs) * time.Millisecond
}

// RetryBaseDelay converts the millisecond setting.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}
