package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // HS256 secret of the managed auth provider
	Audience  string `yaml:"audience"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type CashfreeConfig struct {
	AppID                  string `yaml:"app_id"`
	SecretKey              string `yaml:"secret_key"`
	Production             bool   `yaml:"production"`
	APIVersion             string `yaml:"api_version"`
	Currency               string `yaml:"currency"`
	NotifyURL              string `yaml:"notify_url"`
	VerifyWebhookSignature *bool  `yaml:"verify_webhook_signature"`
	MaxRetries             uint64 `yaml:"max_retries"`
}

type PaymentConfig struct {
	Cashfree  CashfreeConfig `yaml:"cashfree"`
	ReturnURL string         `yaml:"return_url"` // frontend success page
	// Session creation is rate limited per user.
	SessionRateLimit  int           `yaml:"session_rate_limit"`
	SessionRateWindow time.Duration `yaml:"session_rate_window"`
}

type ConfirmConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	Timeout       time.Duration `yaml:"timeout"`
	SuccessDelay  time.Duration `yaml:"success_delay"`
	DashboardPath string        `yaml:"dashboard_path"`
}

type ReconcilerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`

	// gateway lookups in flight per pass
	Concurrency int `yaml:"concurrency"`

	// orders the gateway answers 404 for are failed once this old; 0 keeps them pending
	AbandonAfter *time.Duration `yaml:"abandon_after"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Payment    PaymentConfig    `yaml:"payment"`
	Confirm    ConfirmConfig    `yaml:"confirm"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// VerifySignatures reports whether webhook signatures are checked. Defaults to true.
func (c CashfreeConfig) VerifySignatures() bool {
	return c.VerifyWebhookSignature == nil || *c.VerifyWebhookSignature
}

// LoadConfig reads the YAML file at path, applies .env and environment overrides,
// fills defaults and validates required settings.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse builds a Config from YAML bytes plus environment overrides.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	override(&cfg.Payment.Cashfree.AppID, "CASHFREE_APP_ID")
	override(&cfg.Payment.Cashfree.SecretKey, "CASHFREE_SECRET_KEY")
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "billing-events"
	}
	cf := &cfg.Payment.Cashfree
	if cf.APIVersion == "" {
		cf.APIVersion = "2022-09-01"
	}
	if cf.Currency == "" {
		cf.Currency = "INR"
	}
	if cf.MaxRetries == 0 {
		cf.MaxRetries = 2
	}
	if cfg.Payment.SessionRateLimit <= 0 {
		cfg.Payment.SessionRateLimit = 10
	}
	if cfg.Payment.SessionRateWindow <= 0 {
		cfg.Payment.SessionRateWindow = time.Minute
	}
	if cfg.Confirm.PollInterval <= 0 {
		cfg.Confirm.PollInterval = 2 * time.Second
	}
	if cfg.Confirm.Timeout <= 0 {
		cfg.Confirm.Timeout = 15 * time.Second
	}
	if cfg.Confirm.SuccessDelay <= 0 {
		cfg.Confirm.SuccessDelay = 2 * time.Second
	}
	if cfg.Confirm.DashboardPath == "" {
		cfg.Confirm.DashboardPath = "/dashboard"
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 200
	}
	if cfg.Reconciler.AbandonAfter == nil {
		d := 24 * time.Hour
		cfg.Reconciler.AbandonAfter = &d
	}
	if cfg.Reconciler.Concurrency <= 0 {
		cfg.Reconciler.Concurrency = 4
	}
}

// Validate checks settings the process cannot start without. Missing gateway credentials
// surface later as a ConfigurationError from session creation.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Database.URL == "" {
		result = multierror.Append(result, errors.New("database.url is required"))
	}
	if c.Redis.URL == "" {
		result = multierror.Append(result, errors.New("redis.url is required"))
	}
	if c.Auth.JWTSecret == "" {
		result = multierror.Append(result, errors.New("auth.jwt_secret is required"))
	}
	if c.Payment.Cashfree.VerifySignatures() && c.Payment.Cashfree.SecretKey == "" && !c.Runtime.Dev {
		result = multierror.Append(result, errors.New("payment.cashfree.secret_key is required to verify webhook signatures"))
	}
	return result.ErrorOrNil()
}
