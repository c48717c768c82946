package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Verifier VerifierConfig `mapstructure:"verifier"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Notifier NotifierConfig `mapstructure:"notifier"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig validates user tokens issued by the external auth service.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// VerifierConfig holds the shared secret of the verification collaborator.
type VerifierConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

type EngineConfig struct {
	MatchThreshold int           `mapstructure:"match_threshold"`
	NotifyCooldown time.Duration `mapstructure:"notify_cooldown"`
	StoreTimeout   time.Duration `mapstructure:"store_timeout"`
	ReadRetries    int           `mapstructure:"read_retries"`
	Workers        int           `mapstructure:"workers"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatch     int           `mapstructure:"sweep_batch"`
	ReconcileAfter time.Duration `mapstructure:"reconcile_after"`
	// RedeliverWindow bounds how far back the sweeper retries undelivered
	// match notifications. Zero disables redelivery.
	RedeliverWindow time.Duration `mapstructure:"redeliver_window"`
	Scoring         ScoringConfig `mapstructure:"scoring"`
}

// ScoringConfig mirrors the match scorer policy.
type ScoringConfig struct {
	CategoryWeight   int           `mapstructure:"category_weight"`
	PriceWeight      int           `mapstructure:"price_weight"`
	UrgencyWeight    int           `mapstructure:"urgency_weight"`
	PopularityWeight int           `mapstructure:"popularity_weight"`
	PriceBand        int64         `mapstructure:"price_band"` // minor units
	UrgencyHorizon   time.Duration `mapstructure:"urgency_horizon"`
	PopularityCap    int64         `mapstructure:"popularity_cap"`
}

type NotifierConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"` // empty: log only
	Secret      string        `mapstructure:"secret"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// Validate checks the settings that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.Store.Driver))
	}

	e := c.Engine
	if e.MatchThreshold < 0 || e.MatchThreshold > 100 {
		errs = append(errs, fmt.Errorf("engine.match_threshold must be within 0..100, got %d", e.MatchThreshold))
	}
	if e.Workers < 1 {
		errs = append(errs, errors.New("engine.workers must be at least 1"))
	}
	if e.StoreTimeout <= 0 {
		errs = append(errs, errors.New("engine.store_timeout must be positive"))
	}
	if e.ReadRetries < 1 {
		errs = append(errs, errors.New("engine.read_retries must be at least 1"))
	}
	if e.SweepInterval <= 0 {
		errs = append(errs, errors.New("engine.sweep_interval must be positive"))
	}
	if e.RedeliverWindow < 0 {
		errs = append(errs, errors.New("engine.redeliver_window must not be negative"))
	}

	s := e.Scoring
	if sum := s.CategoryWeight + s.PriceWeight + s.UrgencyWeight + s.PopularityWeight; sum != 100 {
		errs = append(errs, fmt.Errorf("engine.scoring weights must sum to 100, got %d", sum))
	}
	if s.PriceBand <= 0 || s.UrgencyHorizon <= 0 || s.PopularityCap <= 0 {
		errs = append(errs, errors.New("engine.scoring price_band, urgency_horizon and popularity_cap must be positive"))
	}

	if c.Notifier.WebhookURL != "" && c.Notifier.MaxAttempts < 1 {
		errs = append(errs, errors.New("notifier.max_attempts must be at least 1"))
	}

	return errors.Join(errs...)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: VTE_ (Voucher Trade Engine).
// Nested keys use underscore: VTE_DATABASE_HOST, VTE_ENGINE_WORKERS, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "voucher_trade")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("verifier.secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("engine.match_threshold", 50)
	v.SetDefault("engine.notify_cooldown", "24h")
	v.SetDefault("engine.store_timeout", "3s")
	v.SetDefault("engine.read_retries", 3)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.sweep_interval", "1m")
	v.SetDefault("engine.sweep_batch", 200)
	v.SetDefault("engine.reconcile_after", "5m")
	v.SetDefault("engine.redeliver_window", "6h")
	v.SetDefault("engine.scoring.category_weight", 40)
	v.SetDefault("engine.scoring.price_weight", 30)
	v.SetDefault("engine.scoring.urgency_weight", 20)
	v.SetDefault("engine.scoring.popularity_weight", 10)
	v.SetDefault("engine.scoring.price_band", 5000)
	v.SetDefault("engine.scoring.urgency_horizon", "720h")
	v.SetDefault("engine.scoring.popularity_cap", 500)
	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.secret", "")
	v.SetDefault("notifier.timeout", "5s")
	v.SetDefault("notifier.max_attempts", 4)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: VTE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("VTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
