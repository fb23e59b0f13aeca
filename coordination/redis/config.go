package redis

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
)

const maxPoolSize = 1000

// ErrInvalidConfig indicates the provided redis configuration is invalid.
var ErrInvalidConfig = errors.New("invalid redis config")

// Config defines Redis client topology, auth, TLS, and connection settings.
type Config struct {
	Topology Topology
	TLS      *TLSConfig
	Auth     Auth
	Options  ConnectionOptions
	Logger   log.Logger
	// Meter records connection failures and reconnects. Defaults to the global provider.
	Meter metric.Meter
}

// Topology selects exactly one Redis deployment mode.
type Topology struct {
	Standalone *StandaloneTopology
	Sentinel   *SentinelTopology
	Cluster    *ClusterTopology
}

// StandaloneTopology configures single-node Redis access.
type StandaloneTopology struct {
	Address string
}

// SentinelTopology configures Redis Sentinel access.
type SentinelTopology struct {
	Addresses  []string
	MasterName string
}

// ClusterTopology configures Redis cluster access.
type ClusterTopology struct {
	Addresses []string
}

// TLSConfig configures TLS validation for Redis connections. MinVersion
// below TLS 1.2 is raised to 1.2.
type TLSConfig struct {
	CACertBase64 string
	MinVersion   uint16
}

// Auth selects the Redis authentication strategy.
type Auth struct {
	StaticPassword *StaticPasswordAuth
}

// StaticPasswordAuth authenticates using a static password.
type StaticPasswordAuth struct {
	Username string
	Password string
}

// String returns a redacted representation to prevent accidental credential logging.
func (a StaticPasswordAuth) String() string {
	return fmt.Sprintf("StaticPasswordAuth{Username:%s, Password:REDACTED}", a.Username)
}

// GoString returns a redacted representation for fmt %#v.
func (a StaticPasswordAuth) GoString() string { return a.String() }

// ConnectionOptions configures protocol, timeouts, pools, and retries. Zero
// values take the defaults below; a negative MaxRetries disables retries.
type ConnectionOptions struct {
	DB              int
	Protocol        int
	PoolSize        int
	MinIdleConns    int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	DialTimeout     time.Duration
	PoolTimeout     time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

var defaultOptions = ConnectionOptions{
	PoolSize:        10,
	ReadTimeout:     3 * time.Second,
	WriteTimeout:    3 * time.Second,
	DialTimeout:     5 * time.Second,
	PoolTimeout:     2 * time.Second,
	MaxRetries:      3,
	MinRetryBackoff: 8 * time.Millisecond,
	MaxRetryBackoff: time.Second,
}

func orDefault[T comparable](value, fallback T) T {
	var zero T
	if value == zero {
		return fallback
	}

	return value
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	d := defaultOptions

	o.PoolSize = min(orDefault(o.PoolSize, d.PoolSize), maxPoolSize)
	o.ReadTimeout = orDefault(o.ReadTimeout, d.ReadTimeout)
	o.WriteTimeout = orDefault(o.WriteTimeout, d.WriteTimeout)
	o.DialTimeout = orDefault(o.DialTimeout, d.DialTimeout)
	o.PoolTimeout = orDefault(o.PoolTimeout, d.PoolTimeout)
	o.MaxRetries = orDefault(o.MaxRetries, d.MaxRetries)
	o.MinRetryBackoff = orDefault(o.MinRetryBackoff, d.MinRetryBackoff)
	o.MaxRetryBackoff = orDefault(o.MaxRetryBackoff, d.MaxRetryBackoff)

	return o
}

// normalized returns a validated copy of cfg with defaults applied.
func (cfg Config) normalized() (Config, error) {
	cfg.Logger = log.OrNop(cfg.Logger)
	cfg.Options = cfg.Options.withDefaults()

	if cfg.TLS != nil {
		t := *cfg.TLS
		t.MinVersion = max(t.MinVersion, tls.VersionTLS12)
		cfg.TLS = &t
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg Config) validate() error {
	if err := cfg.Topology.validate(); err != nil {
		return err
	}

	if cfg.TLS != nil && strings.TrimSpace(cfg.TLS.CACertBase64) == "" {
		return configError("TLS CA cert is required when TLS is configured")
	}

	return nil
}

func (t Topology) validate() error {
	configured := 0

	if t.Standalone != nil {
		configured++
	}

	if t.Sentinel != nil {
		configured++
	}

	if t.Cluster != nil {
		configured++
	}

	if configured != 1 {
		return configError("exactly one topology must be configured")
	}

	switch {
	case t.Standalone != nil:
		if strings.TrimSpace(t.Standalone.Address) == "" {
			return configError("standalone address is required")
		}
	case t.Sentinel != nil:
		if strings.TrimSpace(t.Sentinel.MasterName) == "" {
			return configError("sentinel master name is required")
		}

		return checkAddresses("sentinel", t.Sentinel.Addresses)
	default:
		return checkAddresses("cluster", t.Cluster.Addresses)
	}

	return nil
}

func checkAddresses(mode string, addresses []string) error {
	if len(addresses) == 0 {
		return configError(mode + " addresses are required")
	}

	for _, address := range addresses {
		if strings.TrimSpace(address) == "" {
			return configError(mode + " addresses cannot be empty")
		}
	}

	return nil
}

// addrs returns the seed addresses and sentinel master name of the topology.
func (t Topology) addrs() ([]string, string) {
	switch {
	case t.Standalone != nil:
		return []string{t.Standalone.Address}, ""
	case t.Sentinel != nil:
		return t.Sentinel.Addresses, t.Sentinel.MasterName
	case t.Cluster != nil:
		return t.Cluster.Addresses, ""
	default:
		return nil, ""
	}
}

func (t Topology) mode() string {
	switch {
	case t.Sentinel != nil:
		return "sentinel"
	case t.Cluster != nil:
		return "cluster"
	default:
		return "standalone"
	}
}

func (cfg Config) universalOptions() (*redis.UniversalOptions, error) {
	addrs, master := cfg.Topology.addrs()

	// go-redis silently defaults an empty address list to localhost:6379.
	if len(addrs) == 0 {
		return nil, configError("no topology configured: at least one address is required")
	}

	o := cfg.Options
	opts := &redis.UniversalOptions{
		Addrs:           addrs,
		MasterName:      master,
		DB:              o.DB,
		Protocol:        o.Protocol,
		PoolSize:        o.PoolSize,
		MinIdleConns:    o.MinIdleConns,
		ReadTimeout:     o.ReadTimeout,
		WriteTimeout:    o.WriteTimeout,
		DialTimeout:     o.DialTimeout,
		PoolTimeout:     o.PoolTimeout,
		MaxRetries:      o.MaxRetries,
		MinRetryBackoff: o.MinRetryBackoff,
		MaxRetryBackoff: o.MaxRetryBackoff,
	}

	if auth := cfg.Auth.StaticPassword; auth != nil {
		opts.Username, opts.Password = auth.Username, auth.Password
	}

	if cfg.TLS != nil {
		tlsCfg, err := buildTLSConfig(*cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("redis: TLS config: %w", err)
		}

		opts.TLSConfig = tlsCfg
	}

	return opts, nil
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	pem, err := base64.StdEncoding.DecodeString(cfg.CACertBase64)
	if err != nil {
		return nil, err
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, errors.New("adding CA cert failed")
	}

	return &tls.Config{
		RootCAs:    roots,
		MinVersion: max(cfg.MinVersion, tls.VersionTLS12),
	}, nil
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
