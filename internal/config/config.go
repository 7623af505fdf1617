package config

import (
	"fmt"
	"time"
)

// Config is the complete gateway configuration, loaded once at startup.
// Policy and breaker definitions are immutable afterwards; changing them
// means restarting the process.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Upstream    UpstreamConfig    `mapstructure:"upstream"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Origins     OriginsConfig     `mapstructure:"origins"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Breakers    []BreakerConfig   `mapstructure:"breakers"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// RedisConfig points at the distributed counter store. An empty Addr runs
// the gateway on the in-process store only (single-replica deployments,
// local development).
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// UpstreamConfig points at the business backend the gateway fronts. Empty
// URL mounts no backend; governed routes answer 404.
type UpstreamConfig struct {
	URL string `mapstructure:"url"`
}

// MaintenanceConfig controls the maintenance-mode short circuit.
type MaintenanceConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ExemptPaths []string      `mapstructure:"exempt_paths"`
	RetryAfter  time.Duration `mapstructure:"retry_after"`
}

// OriginsConfig lists browser origins allowed to issue state-changing
// requests.
type OriginsConfig struct {
	Allowed []string `mapstructure:"allowed"`
}

// RateLimitConfig defines the named policies and the route rules that select
// them.
type RateLimitConfig struct {
	CheckTimeout time.Duration  `mapstructure:"check_timeout"`
	Policies     []PolicyConfig `mapstructure:"policies"`
	Rules        []RuleConfig   `mapstructure:"rules"`
}

// PolicyConfig is one named fixed-window limit.
type PolicyConfig struct {
	Name        string        `mapstructure:"name"`
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
	Scope       string        `mapstructure:"scope"`
}

// RuleConfig maps a route prefix to policy names.
type RuleConfig struct {
	Prefix   string   `mapstructure:"prefix"`
	Policies []string `mapstructure:"policies"`
}

// BreakerConfig defines one named dependency breaker.
type BreakerConfig struct {
	Name             string        `mapstructure:"name"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// Validate rejects configurations that must fail at startup rather than at
// request time: malformed policies, route rules referencing undefined
// policies, duplicate names.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	policyNames := make(map[string]struct{}, len(c.RateLimit.Policies))
	for _, p := range c.RateLimit.Policies {
		if p.Name == "" {
			return fmt.Errorf("rate_limit.policies: policy missing name")
		}
		if _, dup := policyNames[p.Name]; dup {
			return fmt.Errorf("rate_limit.policies: duplicate policy %q", p.Name)
		}
		policyNames[p.Name] = struct{}{}
		if p.Window <= 0 {
			return fmt.Errorf("policy %q: window must be positive", p.Name)
		}
		if p.MaxRequests <= 0 {
			return fmt.Errorf("policy %q: max_requests must be positive", p.Name)
		}
		if p.Scope != "ip" && p.Scope != "user" {
			return fmt.Errorf("policy %q: scope must be \"ip\" or \"user\", got %q", p.Name, p.Scope)
		}
	}

	for _, rule := range c.RateLimit.Rules {
		if rule.Prefix == "" {
			return fmt.Errorf("rate_limit.rules: rule missing prefix")
		}
		for _, name := range rule.Policies {
			if _, ok := policyNames[name]; !ok {
				return fmt.Errorf("rule %q references unknown policy %q", rule.Prefix, name)
			}
		}
	}

	breakerNames := make(map[string]struct{}, len(c.Breakers))
	for _, b := range c.Breakers {
		if b.Name == "" {
			return fmt.Errorf("breakers: breaker missing name")
		}
		if _, dup := breakerNames[b.Name]; dup {
			return fmt.Errorf("breakers: duplicate breaker %q", b.Name)
		}
		breakerNames[b.Name] = struct{}{}
		if b.FailureThreshold <= 0 {
			return fmt.Errorf("breaker %q: failure_threshold must be positive", b.Name)
		}
		if b.Cooldown <= 0 {
			return fmt.Errorf("breaker %q: cooldown must be positive", b.Name)
		}
	}

	return nil
}
