// Package config loads service settings from HOA_* environment variables
// and an optional YAML file named by HOA_CONFIG.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "HOA"

type Config struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	PGDSN           string        `mapstructure:"pg_dsn"`
	RedisURL        string        `mapstructure:"redis_url"`
	OutboxKey       string        `mapstructure:"outbox_key"`
	AuthSecret      string        `mapstructure:"auth_secret"`
	AuthIssuer      string        `mapstructure:"auth_issuer"`
	CodeSecret      string        `mapstructure:"code_secret"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	RateBurst       int           `mapstructure:"rate_burst"`
	RatePerSec      int           `mapstructure:"rate_per_sec"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("pg_dsn", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("outbox_key", "estatehub:credentials:outbox")
	v.SetDefault("auth_secret", "")
	v.SetDefault("auth_issuer", "estatehub")
	v.SetDefault("code_secret", "")
	v.SetDefault("cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("rate_burst", 20)
	v.SetDefault("rate_per_sec", 10)
	v.SetDefault("max_body_bytes", int64(1<<20))
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log_level", "info")
}

// Load reads configuration and validates it.
func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read merges defaults, the HOA_CONFIG file and HOA_* variables without
// validating the result. Tools that need a subset of the settings use it.
func Read() (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.TrustedProxies = splitList(strings.Join(cfg.TrustedProxies, ","))
	if cfg.CodeSecret == "" {
		cfg.CodeSecret = cfg.AuthSecret
	}
	return cfg, nil
}

// Validate fails on settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AuthSecret) == "" {
		errs = append(errs, errors.New("auth_secret is required"))
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("rate_burst and rate_per_sec must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
