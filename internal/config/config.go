package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// InsecureDefaultSigningSecret is used when no signing secret is
// configured. Credentials signed with it are forgeable; the app logs a
// warning at startup when it is in effect.
const InsecureDefaultSigningSecret = "taskdeck-insecure-dev-secret"

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Storage  StorageConfig  `yaml:"storage" envconfig:"STORAGE"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains key material and session configuration.
// SigningSecret signs session credentials; PrivateKeyFile is the PEM
// file holding the RSA key that unwraps unlock codes.
type SecurityConfig struct {
	SigningSecret  string          `yaml:"signing_secret" envconfig:"SIGNING_SECRET"`
	PrivateKeyFile string          `yaml:"private_key_file" envconfig:"PRIVATE_KEY_FILE" default:"unlock_key.pem"`
	SessionCookie  string          `yaml:"session_cookie" envconfig:"SESSION_COOKIE" default:"taskdeck_session"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for the auth
// and unlock endpoints
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"10"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"20"`
}

// StorageConfig contains the embedded database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH" default:"data/taskdeck.db"`
	PoolSize     int    `yaml:"pool_size" envconfig:"POOL_SIZE" default:"4"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/taskdeck.log"`
}

// Load loads configuration from environment variables and, if present,
// a YAML config file next to the executable. Environment variables
// take precedence over file values.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("TASKDECK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// UsingInsecureSecret reports whether the insecure fallback signing
// secret is in effect.
func (c *Config) UsingInsecureSecret() bool {
	return c.Security.SigningSecret == InsecureDefaultSigningSecret
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge overlays env config on top of file config (env wins for any
// field the environment actually set)
func merge(fileCfg, envCfg Config) Config {
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Server.ReadTimeout == 0 {
		envCfg.Server.ReadTimeout = fileCfg.Server.ReadTimeout
	}
	if envCfg.Server.WriteTimeout == 0 {
		envCfg.Server.WriteTimeout = fileCfg.Server.WriteTimeout
	}
	if envCfg.Server.IdleTimeout == 0 {
		envCfg.Server.IdleTimeout = fileCfg.Server.IdleTimeout
	}
	if envCfg.Security.SigningSecret == "" {
		envCfg.Security.SigningSecret = fileCfg.Security.SigningSecret
	}
	if envCfg.Security.PrivateKeyFile == "" {
		envCfg.Security.PrivateKeyFile = fileCfg.Security.PrivateKeyFile
	}
	if envCfg.Storage.DatabasePath == "" {
		envCfg.Storage.DatabasePath = fileCfg.Storage.DatabasePath
	}
	if envCfg.Logging.Level == "" {
		envCfg.Logging.Level = fileCfg.Logging.Level
	}
	return envCfg
}

// applyFallbacks fills the values that have no safe envconfig default
func (c *Config) applyFallbacks() {
	if c.Security.SigningSecret == "" {
		c.Security.SigningSecret = InsecureDefaultSigningSecret
	}
	if c.Storage.PoolSize <= 0 {
		c.Storage.PoolSize = 4
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Security.PrivateKeyFile == "" {
		return fmt.Errorf("private key file path is required")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// configFilePath returns the path of the optional YAML config file,
// resolved relative to the executable directory so the packaged
// desktop build finds it regardless of working directory.
func configFilePath() string {
	exe, err := os.Executable()
	if err != nil {
		return "taskdeck.yaml"
	}
	return filepath.Join(filepath.Dir(exe), "taskdeck.yaml")
}

// EnsureParentDir creates the parent directory of path if needed.
// Used for the database file and log file before first open.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
