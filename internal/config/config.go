// Package config loads the decision point configuration from a YAML file
// with EHRPDP_ environment overrides
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/attributes"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/audit"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/db"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/emergency"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/engine"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/policy"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/ratelimit"
	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. EHRPDP_SERVER_PORT
const EnvPrefix = "EHRPDP"

// Token store types
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all configuration for the decision point
type Config struct {
	Log       LogConfig                  `mapstructure:"log"`
	Server    ServerConfig               `mapstructure:"server"`
	Metrics   MetricsConfig              `mapstructure:"metrics"`
	Engine    engine.Config              `mapstructure:"engine"`
	Token     TokenConfig                `mapstructure:"token"`
	Policy    PolicyConfig               `mapstructure:"policy"`
	Shifts    attributes.ShiftBoundaries `mapstructure:"shifts"`
	Audit     audit.Config               `mapstructure:"audit"`
	Database  DatabaseConfig             `mapstructure:"database"`
	RateLimit ratelimit.Config           `mapstructure:"rate_limit"`
}

// LogConfig selects the logger level and encoding
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// ServerConfig holds REST server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// JWTSecret signs HS256 bearer tokens presented to the REST API
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`

	// DataFile seeds the principal directory and resource repository
	DataFile string `mapstructure:"data_file"`

	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For header is
	// believed when recording the audit origin
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// TokenConfig configures emergency access tokens and their store
type TokenConfig struct {
	Validity time.Duration         `mapstructure:"validity"`
	Store    string                `mapstructure:"store"`
	Redis    emergency.RedisConfig `mapstructure:"redis"`
}

// PolicyConfig configures the evaluator
type PolicyConfig struct {
	// RoleMinClearance overrides entries of the default role table
	RoleMinClearance map[string]int `mapstructure:"role_min_clearance"`

	// RoleTableFile is watched and reloaded on change when set
	RoleTableFile string `mapstructure:"role_table_file"`

	Conditions []policy.ConditionSpec `mapstructure:"conditions"`
}

// RoleMinimums converts the configured overrides to role keys
func (p PolicyConfig) RoleMinimums() map[types.Role]int {
	out := make(map[types.Role]int, len(p.RoleMinClearance))
	for role, level := range p.RoleMinClearance {
		out[types.Role(role)] = level
	}
	return out
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	DSN  string        `mapstructure:"dsn"`
	Pool db.PoolConfig `mapstructure:"pool"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			JWTIssuer:       "ehr-pdp",
		},
		Metrics: MetricsConfig{Enabled: true, Namespace: "ehr_pdp", Path: "/metrics"},
		Engine:  engine.DefaultConfig(),
		Token: TokenConfig{
			Validity: emergency.DefaultValidity,
			Store:    StoreMemory,
			Redis:    emergency.DefaultRedisConfig(),
		},
		Policy: PolicyConfig{RoleMinClearance: map[string]int{}},
		Shifts: attributes.DefaultShiftBoundaries(),
		Audit:  audit.DefaultConfig(),
		Database: DatabaseConfig{
			Pool: db.PoolConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute},
		},
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level: %s", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Log.Format))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("server.jwt_secret is required"))
	}
	for _, proxy := range c.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(strings.TrimSpace(proxy)) == nil {
			errs = append(errs, fmt.Errorf("invalid server.trusted_proxies entry: %q", proxy))
		}
	}

	if c.Token.Validity <= 0 {
		errs = append(errs, fmt.Errorf("token validity must be positive, got %s", c.Token.Validity))
	}
	switch c.Token.Store {
	case StoreMemory:
	case StoreRedis:
		if err := c.Token.Redis.Validate(); err != nil {
			errs = append(errs, err)
		}
	case StorePostgres:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn required for postgres token store"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid token store: %s (must be memory, redis, or postgres)", c.Token.Store))
	}

	for role, level := range c.Policy.RoleMinClearance {
		if !types.Role(role).IsValid() {
			errs = append(errs, fmt.Errorf("unknown role in policy.role_min_clearance: %s", role))
		}
		if level < types.MinLevel || level > types.MaxLevel {
			errs = append(errs, fmt.Errorf("role %s minimum clearance %d out of range", role, level))
		}
	}

	if err := c.Shifts.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Audit.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Enabled && c.RateLimit.Backend == ratelimit.BackendRedis {
		if err := c.Token.Redis.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("redis rate limiter: %w", err))
		}
	}
	if c.Audit.Type == "postgres" && c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn required for postgres audit type"))
	}

	return errors.Join(errs...)
}

// NeedsDatabase reports whether any component is backed by PostgreSQL
func (c *Config) NeedsDatabase() bool {
	return c.Token.Store == StorePostgres || c.Audit.Type == "postgres"
}

// Load reads configuration from path, or from ehr-pdp.yaml in the usual
// locations when path is empty. A missing file is not an error when no path
// was given.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ehr-pdp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ehr-pdp")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file omits it
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.jwt_secret", d.Server.JWTSecret)
	v.SetDefault("server.jwt_issuer", d.Server.JWTIssuer)
	v.SetDefault("server.data_file", d.Server.DataFile)
	v.SetDefault("server.trusted_proxies", d.Server.TrustedProxies)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("engine.parallel_workers", d.Engine.ParallelWorkers)

	v.SetDefault("token.validity", d.Token.Validity)
	v.SetDefault("token.store", d.Token.Store)
	v.SetDefault("token.redis.addr", d.Token.Redis.Addr)
	v.SetDefault("token.redis.password", d.Token.Redis.Password)
	v.SetDefault("token.redis.db", d.Token.Redis.DB)
	v.SetDefault("token.redis.pool_size", d.Token.Redis.PoolSize)
	v.SetDefault("token.redis.key_prefix", d.Token.Redis.KeyPrefix)
	v.SetDefault("token.redis.max_retries", d.Token.Redis.MaxRetries)
	v.SetDefault("token.redis.dial_timeout", d.Token.Redis.DialTimeout)
	v.SetDefault("token.redis.read_timeout", d.Token.Redis.ReadTimeout)
	v.SetDefault("token.redis.write_timeout", d.Token.Redis.WriteTimeout)

	v.SetDefault("policy.role_table_file", d.Policy.RoleTableFile)

	v.SetDefault("shifts.morning_start", d.Shifts.MorningStart)
	v.SetDefault("shifts.evening_start", d.Shifts.EveningStart)
	v.SetDefault("shifts.night_start", d.Shifts.NightStart)

	v.SetDefault("audit.type", d.Audit.Type)
	v.SetDefault("audit.file_path", d.Audit.FilePath)
	v.SetDefault("audit.file_max_size", d.Audit.FileMaxSize)
	v.SetDefault("audit.file_max_age", d.Audit.FileMaxAge)
	v.SetDefault("audit.file_max_backups", d.Audit.FileMaxBackups)
	v.SetDefault("audit.syslog_addr", d.Audit.SyslogAddr)
	v.SetDefault("audit.syslog_protocol", d.Audit.SyslogProtocol)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.max_retries", d.Audit.MaxRetries)
	v.SetDefault("audit.retry_delay", d.Audit.RetryDelay)
	v.SetDefault("audit.hash_chain", d.Audit.HashChain)

	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.pool.max_open_conns", d.Database.Pool.MaxOpenConns)
	v.SetDefault("database.pool.max_idle_conns", d.Database.Pool.MaxIdleConns)
	v.SetDefault("database.pool.conn_max_lifetime", d.Database.Pool.ConnMaxLifetime)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.backend", d.RateLimit.Backend)
	v.SetDefault("rate_limit.default_rps", d.RateLimit.DefaultRPS)
	v.SetDefault("rate_limit.emergency_rps", d.RateLimit.EmergencyRPS)
	v.SetDefault("rate_limit.burst_factor", d.RateLimit.BurstFactor)
	v.SetDefault("rate_limit.window", d.RateLimit.Window)
	v.SetDefault("rate_limit.key_prefix", d.RateLimit.KeyPrefix)
	v.SetDefault("rate_limit.fail_open", d.RateLimit.FailOpen)
}
