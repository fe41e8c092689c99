// Package config loads service configuration with koanf, layered as
// defaults < optional YAML file < environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"booklending/internal/logging"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfigPaths are searched in order; the first existing file wins.
var defaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/booklending/config.yaml",
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Recommend RecommendConfig `koanf:"recommend"`
	Log       logging.Config  `koanf:"log"`
}

type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type AuthConfig struct {
	// JWTSecret is the HS256 secret shared with the external identity
	// service that issues the tokens. This service only verifies.
	JWTSecret string `koanf:"jwt_secret"`
}

type RecommendConfig struct {
	// DefaultLimit is the recommendation list size when the caller does not
	// ask for one.
	DefaultLimit int `koanf:"default_limit"`
	// MaxLimit caps the caller-supplied limit.
	MaxLimit int `koanf:"max_limit"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Recommend: RecommendConfig{
			DefaultLimit: 5,
			MaxLimit:     50,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// envKeys maps flat environment variable names to config paths. Variables
// not listed here are ignored.
var envKeys = map[string]string{
	"SERVER_ADDR":       "server.addr",
	"DATABASE_URL":      "database.url",
	"DATABASE_MAX_OPEN": "database.max_open_conns",
	"DATABASE_MAX_IDLE": "database.max_idle_conns",
	"JWT_SECRET":        "auth.jwt_secret",
	"RECOMMEND_LIMIT":   "recommend.default_limit",
	"LOG_LEVEL":         "log.level",
	"LOG_FORMAT":        "log.format",
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(key string) string {
		return envKeys[key] // empty string drops unknown variables
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url (DATABASE_URL) is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.Recommend.DefaultLimit <= 0 {
		return errors.New("config: recommend.default_limit must be positive")
	}
	return nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
