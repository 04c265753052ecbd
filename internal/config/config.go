package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "config.yaml"

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Prefork     bool   `yaml:"prefork"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
}

type LoggerConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DatabaseConfig selects the SQL driver. Either DSN or the discrete Postgres
// fields must be set; for sqlite DSN is the database file path.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Addr             string        `yaml:"addr"`
	Password         string        `yaml:"password"`
	RateLimitDB      int           `yaml:"rate_limit_db"`
	CacheDB          int           `yaml:"cache_db"`
	FeedCacheEnabled bool          `yaml:"feed_cache_enabled"`
	FeedCacheTTL     time.Duration `yaml:"feed_cache_ttl"`
}

type AuthConfig struct {
	TokenReloadInterval time.Duration `yaml:"token_reload_interval"`
}

type RateLimiterConfig struct {
	Interval               time.Duration `yaml:"interval"`
	EnableUserLimiter      bool          `yaml:"enable_user_limiter"`
	UserLimit              int           `yaml:"user_limit"`
	EnableTokenRateLimiter bool          `yaml:"enable_token_rate_limiter"`
}

type BlobConfig struct {
	Dir               string   `yaml:"dir"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxFileMB         int      `yaml:"max_file_mb"`
}

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`
	Blob        BlobConfig        `yaml:"blob"`
}

// Load reads the file named by CONFIG_PATH, falling back to DefaultPath.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the YAML file at path. It panics on any error,
// the service cannot start with a broken configuration.
func LoadFrom(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %s: %v", path, err))
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.BodyLimitMB == 0 {
		cfg.Server.BodyLimitMB = 32
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if cfg.Redis.FeedCacheTTL == 0 {
		cfg.Redis.FeedCacheTTL = 30 * time.Second
	}
	if cfg.Auth.TokenReloadInterval == 0 {
		cfg.Auth.TokenReloadInterval = time.Minute
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Blob.Dir == "" {
		cfg.Blob.Dir = "uploads"
	}
	if len(cfg.Blob.AllowedExtensions) == 0 {
		cfg.Blob.AllowedExtensions = []string{"pdf", "doc", "docx", "txt", "png", "jpg", "jpeg"}
	}
	if cfg.Blob.MaxFileMB == 0 {
		cfg.Blob.MaxFileMB = 25
	}
}

// Validate checks values that defaults cannot repair.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx":
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("database: dsn or host is required")
		}
	case "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database: dsn (file path) is required for sqlite")
		}
	default:
		return fmt.Errorf("database: unsupported driver %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database: max_open_conns must be >= 0")
	}
	if c.Server.BodyLimitMB < 0 {
		return fmt.Errorf("server: body_limit_mb must be >= 0")
	}
	if c.Redis.FeedCacheTTL < 0 {
		return fmt.Errorf("redis: feed_cache_ttl must be > 0")
	}
	if c.Auth.TokenReloadInterval < 0 {
		return fmt.Errorf("auth: token_reload_interval must be > 0")
	}
	if c.RateLimiter.Interval < 0 {
		return fmt.Errorf("rate_limiter: interval must be > 0")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter: user_limit must be >= 0")
	}
	if c.Blob.MaxFileMB < 0 {
		return fmt.Errorf("blob: max_file_mb must be > 0")
	}
	return nil
}
