// Package config loads coordination settings from a YAML file and COORD_
// environment variables and builds the store, managers and retry command
// they describe.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COORD_REDIS_ADDRESSES.
const EnvPrefix = "COORD"

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"

	ModeStandalone = "standalone"
	ModeSentinel   = "sentinel"
	ModeCluster    = "cluster"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid coordination config")

// Config is the full coordination configuration.
type Config struct {
	Backend string        `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Lock    LockConfig    `mapstructure:"lock"`
	List    ListConfig    `mapstructure:"list"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Log     LogConfig     `mapstructure:"log"`
}

// RedisConfig selects and tunes the Redis deployment.
type RedisConfig struct {
	Mode         string        `mapstructure:"mode"`
	Addresses    []string      `mapstructure:"addresses"`
	MasterName   string        `mapstructure:"master_name"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	TLS          bool          `mapstructure:"tls"`
	CACertBase64 string        `mapstructure:"ca_cert_base64"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	ScanCount    int64         `mapstructure:"scan_count"`
	LockRetry    time.Duration `mapstructure:"lock_retry_delay"`
}

// LockConfig configures lock.Manager.
type LockConfig struct {
	KeyRoot       string        `mapstructure:"key_root"`
	TimeToLive    time.Duration `mapstructure:"time_to_live"`
	TimeToWait    time.Duration `mapstructure:"time_to_wait"`
	ContainerName string        `mapstructure:"container_name"`
}

// ListConfig configures list.Manager.
type ListConfig struct {
	KeyRoot    string        `mapstructure:"key_root"`
	TimeToLive time.Duration `mapstructure:"time_to_live"`
}

// RetryConfig configures retry.Command.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Pause       time.Duration `mapstructure:"pause"`
	Exponential bool          `mapstructure:"exponential"`
	// TransientOnly retries only failures classified as transient.
	TransientOnly bool `mapstructure:"transient_only"`
}

// BreakerConfig enables the circuit breaker around Redis calls.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Name                string        `mapstructure:"name"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	HealthCheckTimeout  time.Duration `mapstructure:"health_check_timeout"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Environment string `mapstructure:"environment"`
	Level       string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendRedis)

	v.SetDefault("redis.mode", ModeStandalone)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.ca_cert_base64", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.scan_count", 100)
	v.SetDefault("redis.lock_retry_delay", 50*time.Millisecond)

	v.SetDefault("lock.key_root", "")
	v.SetDefault("lock.time_to_live", 30*time.Second)
	v.SetDefault("lock.time_to_wait", 10*time.Second)
	v.SetDefault("lock.container_name", "container")

	v.SetDefault("list.key_root", "")
	v.SetDefault("list.time_to_live", 30*time.Second)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.pause", time.Second)
	v.SetDefault("retry.exponential", false)
	v.SetDefault("retry.transient_only", false)

	v.SetDefault("breaker.enabled", false)
	v.SetDefault("breaker.name", "redis")
	v.SetDefault("breaker.health_check_interval", 30*time.Second)
	v.SetDefault("breaker.health_check_timeout", 5*time.Second)

	v.SetDefault("log.environment", "production")
	v.SetDefault("log.level", "")
}

// NewViper returns a viper instance with defaults and COORD_ environment
// overrides registered. Flags may be bound to it before calling FromViper.
func NewViper() *viper.Viper {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads path when it is not empty, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := NewViper()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values no component accepts. A
// valid log.level is normalized to its canonical name, e.g. "WARNING" to "warn".
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRedis:
		if err := c.Redis.validate(); err != nil {
			return err
		}
	case BackendMemory:
	default:
		return invalid("backend must be %q or %q, got %q", BackendRedis, BackendMemory, c.Backend)
	}

	if c.Lock.TimeToLive <= 0 {
		return invalid("lock.time_to_live must be positive")
	}

	if c.Lock.TimeToWait < 0 {
		return invalid("lock.time_to_wait cannot be negative")
	}

	if c.List.TimeToLive <= 0 {
		return invalid("list.time_to_live must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts must be at least 1")
	}

	if c.Retry.Pause < 0 {
		return invalid("retry.pause cannot be negative")
	}

	if c.Breaker.Enabled && strings.TrimSpace(c.Breaker.Name) == "" {
		return invalid("breaker.name is required when the breaker is enabled")
	}

	if c.Log.Level != "" {
		level, err := log.ParseLevel(c.Log.Level)
		if err != nil {
			return invalid("log.level: %v", err)
		}

		c.Log.Level = level.String()
	}

	return nil
}

func (r RedisConfig) validate() error {
	if len(r.Addresses) == 0 {
		return invalid("redis.addresses is required")
	}

	switch r.Mode {
	case ModeStandalone:
		if len(r.Addresses) != 1 {
			return invalid("redis.addresses must hold one address in standalone mode")
		}
	case ModeSentinel:
		if strings.TrimSpace(r.MasterName) == "" {
			return invalid("redis.master_name is required in sentinel mode")
		}
	case ModeCluster:
	default:
		return invalid("redis.mode %q is not one of standalone, sentinel, cluster", r.Mode)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
