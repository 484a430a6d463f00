// Package config loads and validates the gatekit configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete process configuration, loaded once at startup.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Session   SessionConfig   `yaml:"session"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address                string `yaml:"address"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// RedisConfig configures the shared store connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Timeout returns the per-operation shared-store deadline.
func (r RedisConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// RateLimitConfig configures the admission controller.
type RateLimitConfig struct {
	DefaultLimit  int          `yaml:"default_limit"`
	WindowSeconds int          `yaml:"window_seconds"`
	Routes        []RouteQuota `yaml:"routes"`
}

// Window returns the sliding window length.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// RouteQuota overrides the limit for one route path prefix.
type RouteQuota struct {
	Prefix string `yaml:"prefix"`
	Limit  int    `yaml:"limit"`
}

// SessionConfig configures the session manager.
type SessionConfig struct {
	TimeoutSeconds         int `yaml:"timeout_seconds"`
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

// Timeout returns the session idle timeout.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// CleanupInterval returns how often the local store janitor runs.
func (s SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalSeconds) * time.Second
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file, expanding ${VAR} patterns
// from the environment and applying defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 10
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 10
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 15
	}
	if cfg.Redis.TimeoutMS == 0 {
		cfg.Redis.TimeoutMS = 500
	}
	if cfg.RateLimit.DefaultLimit == 0 {
		cfg.RateLimit.DefaultLimit = 100
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = 3600
	}
	if cfg.Session.CleanupIntervalSeconds == 0 {
		cfg.Session.CleanupIntervalSeconds = 300
	}
}

// Validate reports configuration errors. These are fatal at startup, not
// at request time.
func (c *Config) Validate() error {
	if c.RateLimit.DefaultLimit <= 0 {
		return fmt.Errorf("ratelimit.default_limit must be positive, got %d", c.RateLimit.DefaultLimit)
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("ratelimit.window_seconds must be positive, got %d", c.RateLimit.WindowSeconds)
	}
	for _, route := range c.RateLimit.Routes {
		if route.Prefix == "" {
			return fmt.Errorf("ratelimit.routes entries require a prefix")
		}
		if route.Limit <= 0 {
			return fmt.Errorf("ratelimit route %q limit must be positive, got %d", route.Prefix, route.Limit)
		}
	}
	if c.Session.TimeoutSeconds <= 0 {
		return fmt.Errorf("session.timeout_seconds must be positive, got %d", c.Session.TimeoutSeconds)
	}
	if c.Redis.TimeoutMS <= 0 {
		return fmt.Errorf("redis.timeout_ms must be positive, got %d", c.Redis.TimeoutMS)
	}
	return nil
}

// envVarPattern matches ${VAR} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		return os.Getenv(name)
	})
}
