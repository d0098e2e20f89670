// Package config provides configuration loading for the slide deck services.
// Supports YAML files, .env files and environment variable overrides.
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

	"github.com/spherical/slide-deck/internal/domain"
)

// Config holds all configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Notify        NotifyConfig        `yaml:"notify"`
	Tracker       TrackerConfig       `yaml:"tracker"`
	Cache         CacheConfig         `yaml:"cache"`
	Deck          DeckConfig          `yaml:"deck"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	BacklogSize      int           `yaml:"backlog_size"` // events replayed to late subscribers
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Transport   string        `yaml:"transport"` // websocket or redis
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// TrackerConfig holds progress tracker settings.
type TrackerConfig struct {
	SettlingDelay time.Duration `yaml:"settling_delay"`
}

// CacheConfig holds document cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// DeckConfig holds slide synthesis settings.
type DeckConfig struct {
	CoverTitle        string  `yaml:"cover_title"`
	CoverSubtitle     string  `yaml:"cover_subtitle"`
	SummaryTitle      string  `yaml:"summary_title"`
	PlaceholderTop    float64 `yaml:"placeholder_top"`
	PlaceholderLeft   float64 `yaml:"placeholder_left"`
	PlaceholderWidth  float64 `yaml:"placeholder_width"`
	PlaceholderHeight float64 `yaml:"placeholder_height"`
}

// JobsConfig holds settings for the reference job runner.
type JobsConfig struct {
	StepDelay               time.Duration `yaml:"step_delay"`
	PresentationURLTemplate string        `yaml:"presentation_url_template"` // "{job_id}" is substituted
	PublishRedis            bool          `yaml:"publish_redis"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// LoadDotEnv loads .env files when present. Missing files are ignored and
// variables already set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, domain.ConfigError("environment override", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("validate config", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   50 << 20,
			BacklogSize:      64,
		},
		Notify: NotifyConfig{
			BaseURL:     "http://localhost:8000",
			Transport:   "websocket",
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
		Tracker: TrackerConfig{
			SettlingDelay: 2 * time.Second,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "slide-deck:",
			},
		},
		Deck: DeckConfig{
			CoverTitle:        "Document Presentation",
			CoverSubtitle:     "Generated from the uploaded document",
			SummaryTitle:      "Summary",
			PlaceholderTop:    100,
			PlaceholderLeft:   100,
			PlaceholderWidth:  400,
			PlaceholderHeight: 300,
		},
		Jobs: JobsConfig{
			StepDelay: 500 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "slide-deck",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.BacklogSize < 0 {
		errs = append(errs, fmt.Errorf("backlog_size must not be negative"))
	}
	if c.Notify.Transport != "websocket" && c.Notify.Transport != "redis" {
		errs = append(errs, fmt.Errorf("invalid notify transport: %s", c.Notify.Transport))
	}
	if c.Notify.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must not be negative"))
	}
	if c.Notify.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("base_delay must be positive"))
	}
	if c.Tracker.SettlingDelay < 0 {
		errs = append(errs, fmt.Errorf("settling_delay must not be negative"))
	}
	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		errs = append(errs, fmt.Errorf("invalid cache driver: %s", c.Cache.Driver))
	}
	if c.usesRedis() && c.Cache.Redis.URL == "" && c.Cache.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("redis url or addr required"))
	}
	if c.Deck.PlaceholderWidth <= 0 || c.Deck.PlaceholderHeight <= 0 {
		errs = append(errs, fmt.Errorf("placeholder size must be positive"))
	}
	if t := c.Jobs.PresentationURLTemplate; t != "" && !strings.Contains(t, "{job_id}") {
		errs = append(errs, fmt.Errorf("presentation_url_template must contain {job_id}"))
	}

	return errors.Join(errs...)
}

func (c *Config) usesRedis() bool {
	return c.Cache.Driver == "redis" || c.Notify.Transport == "redis" || c.Jobs.PublishRedis
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// PresentationURL expands the presentation template for a job. It returns ""
// when no template is configured.
func (c *Config) PresentationURL(jobID string) string {
	if c.Jobs.PresentationURLTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(c.Jobs.PresentationURLTemplate, "{job_id}", jobID)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("NOTIFY_URL"); v != "" {
		cfg.Notify.BaseURL = v
	}
	if v := os.Getenv("NOTIFY_TRANSPORT"); v != "" {
		cfg.Notify.Transport = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Redis.URL = v
	}
	if v := os.Getenv("CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("SETTLING_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SETTLING_DELAY: %w", err)
		}
		cfg.Tracker.SettlingDelay = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	if v := os.Getenv("PRESENTATION_URL_TEMPLATE"); v != "" {
		cfg.Jobs.PresentationURLTemplate = v
	}
	return nil
}
