// Package config loads and validates the gateway configuration: defaults,
// then an optional YAML file, then GOVERNOR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default returns the built-in configuration: a local single-replica gateway
// with the stock policy set for an AI chat API. Deployments override via
// file or environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Redis: RedisConfig{
			DialTimeout: 5 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			ExemptPaths: []string{"/healthz", "/readyz", "/version"},
			RetryAfter:  5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			CheckTimeout: 2 * time.Second,
			Policies: []PolicyConfig{
				{Name: "auth-strict", Window: time.Minute, MaxRequests: 10, Scope: "ip"},
				{Name: "api-general", Window: time.Minute, MaxRequests: 120, Scope: "ip"},
				{Name: "chat-user", Window: time.Minute, MaxRequests: 30, Scope: "user"},
			},
			Rules: []RuleConfig{
				{Prefix: "/v1/auth", Policies: []string{"auth-strict"}},
				{Prefix: "/v1/chat", Policies: []string{"chat-user", "api-general"}},
				{Prefix: "/", Policies: []string{"api-general"}},
			},
		},
		Breakers: []BreakerConfig{
			{Name: "database", FailureThreshold: 5, Cooldown: 30 * time.Second},
			{Name: "ai-provider", FailureThreshold: 3, Cooldown: 10 * time.Second},
			{Name: "counter-store", FailureThreshold: 5, Cooldown: 15 * time.Second},
		},
	}
}

// envOverrides are the scalar settings that may come from the environment as
// GOVERNOR_<KEY>, e.g. GOVERNOR_REDIS_ADDR. Structured settings (policies,
// rules, breakers) are file-only.
var envOverrides = []string{
	"server.host",
	"server.port",
	"logging.level",
	"redis.addr",
	"redis.password",
	"redis.db",
	"upstream.url",
	"maintenance.enabled",
}

// Load builds the effective configuration. cfgFile may be empty, in which
// case the standard search paths are tried and a missing file is fine;
// a file named explicitly must exist.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("governor")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/governor")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("GOVERNOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envOverrides {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	cfg := Default()
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
