// Package config loads server configuration from an optional YAML file,
// a .env file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SessionStoreDatabase = "database"
	SessionStoreRedis    = "redis"

	// DevSessionSecret is only accepted outside release mode.
	DevSessionSecret = "clubhouse-dev-secret-change-in-production"

	MinInviteCodeLength = 6
	MaxInviteCodeLength = 8
)

// Config holds application configuration
type Config struct {
	Addr             string        `yaml:"addr"`
	DBDriver         string        `yaml:"db_driver"`
	DBDSN            string        `yaml:"db_dsn"`
	SessionSecret    string        `yaml:"session_secret"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	SessionStore     string        `yaml:"session_store"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisPassword    string        `yaml:"redis_password"`
	RedisDB          int           `yaml:"redis_db"`
	SingleGroup      bool          `yaml:"single_group"`
	InviteCodeLength int           `yaml:"invite_code_length"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	SecureCookies    bool          `yaml:"secure_cookies"`
	ReleaseMode      bool          `yaml:"release_mode"`
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		Addr:             ":8080",
		DBDriver:         "sqlite",
		DBDSN:            "clubhouse.db",
		SessionTTL:       14 * 24 * time.Hour,
		SessionStore:     SessionStoreDatabase,
		RedisAddr:        "localhost:6379",
		InviteCodeLength: MinInviteCodeLength,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load builds a Config. path may be empty, in which case only the .env
// file and environment variables are consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load() // .env is optional

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, "CLUBHOUSE_ADDR")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("CLUBHOUSE_ADDR") == "" {
		c.Addr = ":" + port
	}
	setString(&c.DBDriver, "CLUBHOUSE_DB_DRIVER")
	setString(&c.DBDSN, "CLUBHOUSE_DB_DSN")
	setString(&c.SessionSecret, "CLUBHOUSE_SESSION_SECRET")
	setString(&c.SessionStore, "CLUBHOUSE_SESSION_STORE")
	setString(&c.RedisAddr, "CLUBHOUSE_REDIS_ADDR")
	setString(&c.RedisPassword, "CLUBHOUSE_REDIS_PASSWORD")
	setString(&c.LogLevel, "CLUBHOUSE_LOG_LEVEL")
	setString(&c.LogFormat, "CLUBHOUSE_LOG_FORMAT")

	if v := os.Getenv("CLUBHOUSE_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CLUBHOUSE_SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	if err := setInt(&c.RedisDB, "CLUBHOUSE_REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&c.InviteCodeLength, "CLUBHOUSE_INVITE_CODE_LENGTH"); err != nil {
		return err
	}
	for key, dst := range map[string]*bool{
		"CLUBHOUSE_SINGLE_GROUP":   &c.SingleGroup,
		"CLUBHOUSE_SECURE_COOKIES": &c.SecureCookies,
		"CLUBHOUSE_RELEASE_MODE":   &c.ReleaseMode,
	} {
		if err := setBool(dst, key); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the configuration and fills in values that depend on
// the mode. It must be called after flags have been applied.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		if c.ReleaseMode {
			return errors.New("session_secret is required in release mode")
		}
		c.SessionSecret = DevSessionSecret
	}
	switch c.SessionStore {
	case SessionStoreDatabase, SessionStoreRedis:
	default:
		return fmt.Errorf("unknown session_store %q", c.SessionStore)
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}
	if c.InviteCodeLength < MinInviteCodeLength {
		c.InviteCodeLength = MinInviteCodeLength
	}
	if c.InviteCodeLength > MaxInviteCodeLength {
		c.InviteCodeLength = MaxInviteCodeLength
	}
	return nil
}

// UsingDevSecret reports whether the development session secret is in use.
func (c *Config) UsingDevSecret() bool {
	return c.SessionSecret == DevSessionSecret
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}
