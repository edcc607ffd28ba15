package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sundayezeilo/shortlink/internal/linkstore"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	App      AppConfig
	Service  ServiceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" required:"true"`
	Host            string        `envconfig:"SERVER_HOST" required:"true"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL" required:"true"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" required:"true"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" required:"true"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" required:"true"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" required:"true"`
	CORSOrigins     []string      `envconfig:"SERVER_CORS_ORIGINS"` // empty allows any origin
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base URL must be absolute, got %q", c.BaseURL)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// StoreConfig selects the link store backend.
type StoreConfig struct {
	Backend    string `envconfig:"STORE_BACKEND" default:"memory"`
	CodeLength int    `envconfig:"LINK_CODE_LENGTH" default:"6"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendPostgres, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("invalid store backend: %s (must be one of: memory, postgres, sqlite, redis)", c.Backend)
	}
	if c.CodeLength < linkstore.MinCodeLength || c.CodeLength > linkstore.MaxCodeLength {
		return fmt.Errorf("link code length must be between %d and %d, got %d",
			linkstore.MinCodeLength, linkstore.MaxCodeLength, c.CodeLength)
	}
	return nil
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" default:"1"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// URL returns the postgres:// connection URL. Both pgxpool and the migration
// runner accept it.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// SQLiteConfig holds the SQLite (or libsql/Turso) data source.
type SQLiteConfig struct {
	DSN string `envconfig:"SQLITE_DSN" default:"file:shortlink.db"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("dsn cannot be empty")
	}
	return nil
}

// RedisConfig holds Redis connection and startup retry configuration.
type RedisConfig struct {
	Addr           string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Username       string        `envconfig:"REDIS_USERNAME"`
	Password       string        `envconfig:"REDIS_PASSWORD"`
	DB             int           `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix      string        `envconfig:"REDIS_KEY_PREFIX" default:"shortlink:"`
	PoolSize       int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout    time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout   time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
	ConnectTimeout time.Duration `envconfig:"REDIS_CONNECT_TIMEOUT" default:"30s"`
	RetryInterval  time.Duration `envconfig:"REDIS_RETRY_INTERVAL" default:"1s"`
	MaxWait        time.Duration `envconfig:"REDIS_RETRY_MAX_WAIT" default:"10s"`
	PingTimeout    time.Duration `envconfig:"REDIS_PING_TIMEOUT" default:"2s"`
	WarnThreshold  int           `envconfig:"REDIS_WARN_THRESHOLD" default:"3"`
}

// Validate validates the Redis configuration.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.DB < 0 {
		return fmt.Errorf("db must not be negative")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive")
	}
	if c.ConnectTimeout <= 0 || c.RetryInterval <= 0 || c.MaxWait <= 0 || c.PingTimeout <= 0 {
		return fmt.Errorf("connect timeout, retry interval, max wait and ping timeout must be positive")
	}
	if c.RetryInterval > c.MaxWait {
		return fmt.Errorf("retry interval (%v) cannot exceed max wait (%v)", c.RetryInterval, c.MaxWait)
	}
	return nil
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" required:"true"`   // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" required:"true"` // debug, info, warn, error
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// ServiceConfig identifies the running service in logs and the health check.
type ServiceConfig struct {
	Name    string `envconfig:"SERVICE_NAME" default:"shortlink"`
	Version string `envconfig:"SERVICE_VERSION" default:"dev"`
}

// Validate validates the service configuration.
func (c *ServiceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	return nil
}

type section struct {
	name     string
	dest     any
	validate func() error
}

// Load loads configuration from environment variables only.
// (Do .env loading in the app package for dev, not here.)
// Backend sections are validated only when that backend is selected.
func Load() (*Config, error) {
	cfg := &Config{}

	always := []section{
		{"Server", &cfg.Server, cfg.Server.Validate},
		{"Store", &cfg.Store, cfg.Store.Validate},
		{"App", &cfg.App, cfg.App.Validate},
		{"Service", &cfg.Service, cfg.Service.Validate},
	}
	if err := process(always); err != nil {
		return nil, err
	}

	backends := map[string]section{
		BackendPostgres: {"Database", &cfg.Database, cfg.Database.Validate},
		BackendSQLite:   {"SQLite", &cfg.SQLite, cfg.SQLite.Validate},
		BackendRedis:    {"Redis", &cfg.Redis, cfg.Redis.Validate},
	}
	if s, ok := backends[cfg.Store.Backend]; ok {
		if err := process([]section{s}); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func process(sections []section) error {
	for _, s := range sections {
		if err := envconfig.Process("", s.dest); err != nil {
			return fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
		if err := s.validate(); err != nil {
			return fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}
	return nil
}
