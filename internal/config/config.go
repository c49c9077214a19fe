package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Provider   ProviderConfig   `yaml:"provider" mapstructure:"provider"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Lock       LockConfig       `yaml:"lock" mapstructure:"lock"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// ProviderConfig holds the citation provider's API settings.
type ProviderConfig struct {
	APIKey              string  `yaml:"api_key" mapstructure:"api_key"`
	APISecret           string  `yaml:"api_secret" mapstructure:"api_secret"`
	BaseURL             string  `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	RateLimit           float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
	DeleteAfterComplete bool    `yaml:"delete_after_complete" mapstructure:"delete_after_complete"`
}

// PollConfig configures one scheduler-triggered poll pass.
type PollConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gt=0"`
	Limit       int `yaml:"limit" mapstructure:"limit" validate:"gt=0"`
}

// ResilienceConfig tunes retries and the circuit breaker around provider calls.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LockConfig configures the per-run lock. An empty RedisURL disables it.
type LockConfig struct {
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs" validate:"gt=0"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port" validate:"gt=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig holds alerting thresholds.
type MonitoringConfig struct {
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours" validate:"gt=0"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours" validate:"gt=0"`
	StaleThreshold       int     `yaml:"stale_threshold" mapstructure:"stale_threshold" validate:"gte=0"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CITATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("provider.base_url", "https://tools.brightlocal.com/seo-tools/api")
	v.SetDefault("provider.timeout_secs", 30)
	v.SetDefault("provider.rate_limit", 5)
	v.SetDefault("poll.concurrency", 5)
	v.SetDefault("poll.limit", 100)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 30000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("lock.ttl_secs", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.stale_after_hours", 48)
	v.SetDefault("monitoring.stale_threshold", 1)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Unset keys are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"store.database_url", "provider.api_key", "provider.api_secret",
		"lock.redis_url", "monitoring.webhook_url",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validation modes, one per command family.
const (
	ModeAudit   = "audit"
	ModeServe   = "serve"
	ModeStore   = "store"
	ModeMonitor = "monitor"
)

// Validate checks struct constraints plus the settings required by mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	needsStoreURL := c.Store.Driver == "postgres" && c.Store.DatabaseURL == ""
	switch mode {
	case ModeAudit, ModeServe:
		if needsStoreURL {
			problems = append(problems, "store.database_url is required")
		}
		if c.Provider.APIKey == "" {
			problems = append(problems, "provider.api_key is required")
		}
	case ModeStore:
		if needsStoreURL {
			problems = append(problems, "store.database_url is required")
		}
	case ModeMonitor:
		if needsStoreURL {
			problems = append(problems, "store.database_url is required")
		}
		if c.Monitoring.WebhookURL == "" {
			problems = append(problems, "monitoring.webhook_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
