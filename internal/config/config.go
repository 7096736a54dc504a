package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP server configuration
	Server ServerConfig `yaml:"server"`

	// External CLI configuration
	Gcloud GcloudConfig `yaml:"gcloud"`

	// Restore status polling
	Poll PollConfig `yaml:"poll"`

	// Browser session configuration
	Session SessionConfig `yaml:"session"`

	// Restore history database
	Database DatabaseConfig `yaml:"database"`

	// History retention
	History HistoryConfig `yaml:"history"`

	// Logging Configuration
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address          string   `yaml:"address"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	RestoreRateLimit string   `yaml:"restore_rate_limit"` // requests per period, e.g. "10/1m"
}

// GcloudConfig holds the external tool configuration
type GcloudConfig struct {
	Binary        string `yaml:"binary"`
	GsutilBinary  string `yaml:"gsutil_binary"`
	StorageSuffix string `yaml:"storage_suffix"` // default bucket is "<project>.<suffix>"
}

// PollConfig holds restore status polling configuration
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxFailures int           `yaml:"max_failures"` // consecutive fetch failures before polling gives up
}

// SessionConfig holds browser session configuration
type SessionConfig struct {
	Secret string        `yaml:"secret"` // empty = random per process
	TTL    time.Duration `yaml:"ttl"`    // idle wizard sessions are evicted after this
	Secure bool          `yaml:"secure"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// HistoryConfig holds restore history retention configuration
type HistoryConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:          ":8080",
			AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			RestoreRateLimit: "10/1m",
		},
		Gcloud: GcloudConfig{
			Binary:        "gcloud",
			GsutilBinary:  "gsutil",
			StorageSuffix: "firebasestorage.app",
		},
		Poll: PollConfig{
			Interval:    3 * time.Second,
			MaxFailures: 20,
		},
		Session: SessionConfig{
			TTL: 12 * time.Hour,
		},
		Database: DatabaseConfig{
			URL: "firerestore.sqlite",
		},
		History: HistoryConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from an optional YAML file and environment variables.
// Precedence: defaults < CONFIG_FILE < environment.
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Address, "LISTEN_ADDR")
	setString(&c.Server.RestoreRateLimit, "RESTORE_RATE_LIMIT")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	setString(&c.Gcloud.Binary, "GCLOUD_BINARY")
	setString(&c.Gcloud.GsutilBinary, "GSUTIL_BINARY")
	setString(&c.Gcloud.StorageSuffix, "STORAGE_SUFFIX")

	if err := setDuration(&c.Poll.Interval, "POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&c.Poll.MaxFailures, "POLL_MAX_FAILURES"); err != nil {
		return err
	}

	setString(&c.Session.Secret, "SESSION_SECRET")
	if err := setDuration(&c.Session.TTL, "SESSION_TTL"); err != nil {
		return err
	}
	if v := os.Getenv("SESSION_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_SECURE %q: %w", v, err)
		}
		c.Session.Secure = secure
	}

	setString(&c.Database.URL, "DATABASE_URL")
	if err := setDuration(&c.History.Retention, "HISTORY_RETENTION"); err != nil {
		return err
	}

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	return nil
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxFailures < 1 {
		return fmt.Errorf("poll max failures must be at least 1, got %d", c.Poll.MaxFailures)
	}
	if c.Gcloud.Binary == "" || c.Gcloud.GsutilBinary == "" {
		return fmt.Errorf("gcloud and gsutil binaries must be set")
	}
	if c.Gcloud.StorageSuffix == "" {
		return fmt.Errorf("storage suffix must be set")
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes")
	}
	if _, _, err := ParseRate(c.Server.RestoreRateLimit); err != nil {
		return err
	}
	return nil
}

// ParseRate parses "<requests>/<period>" such as "10/1m"
func ParseRate(rate string) (int64, time.Duration, error) {
	count, period, ok := strings.Cut(rate, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid rate limit %q: expected <requests>/<period>", rate)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(count), 10, 64)
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid rate limit count in %q", rate)
	}
	d, err := time.ParseDuration(strings.TrimSpace(period))
	if err != nil || d <= 0 {
		return 0, 0, fmt.Errorf("invalid rate limit period in %q", rate)
	}
	return n, d, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
