// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Output    OutputConfig    `mapstructure:"output"`
	Callback  CallbackConfig  `mapstructure:"callback"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Stealth   StealthConfig   `mapstructure:"stealth"`
	Image     ImageConfig     `mapstructure:"image"`
	Render    RenderConfig    `mapstructure:"render"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                     int    `mapstructure:"port"`
	BaseURL                  string `mapstructure:"base_url"`
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int    `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig throttles submissions per client IP. Zero disables it.
type RateLimitConfig struct {
	SubmitPerMinute int `mapstructure:"submit_per_minute"`
}

// OutputConfig points at the shared directory for generated files.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// CallbackConfig controls webhook delivery.
type CallbackConfig struct {
	FixedURL       string `mapstructure:"fixed_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// FetchConfig governs static page retrieval against target sites.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	PerHostRPS     float64 `mapstructure:"per_host_rps"`
	PerHostBurst   int     `mapstructure:"per_host_burst"`
}

// HeadlessConfig configures the chromedp rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	ProductWaitSec  int  `mapstructure:"product_wait_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StealthConfig configures the rod + stealth browser used for guarded sites.
type StealthConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ChromePath     string `mapstructure:"chrome_path"`
	RemoteURL      string `mapstructure:"remote_url"`
	MaxParallel    int    `mapstructure:"max_parallel"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	ProductWaitSec int    `mapstructure:"product_wait_seconds"`
}

// ImageConfig bounds product image downloads.
type ImageConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RenderConfig carries the letterhead and layout knobs for datasheets.
type RenderConfig struct {
	Company        string `mapstructure:"company"`
	TaxID          string `mapstructure:"tax_id"`
	Address        string `mapstructure:"address"`
	LogoPath       string `mapstructure:"logo_path"`
	ImageSize      int    `mapstructure:"image_size"`
	MaxDescription int    `mapstructure:"max_description"`
}

// StorageConfig selects the optional datasheet mirror.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem mirror.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls the optional Postgres result archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for the optional result topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DATASHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 6004)
	v.SetDefault("server.base_url", "http://localhost:6004")
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("ratelimit.submit_per_minute", 0)
	v.SetDefault("output.dir", "output")
	v.SetDefault("callback.fixed_url", "http://127.0.0.1:3000/api/datasheet/webhook")
	v.SetDefault("callback.timeout_seconds", 10)
	v.SetDefault("callback.user_agent", "datasheet-webhook/1.0")
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.per_host_rps", 1.0)
	v.SetDefault("fetch.per_host_burst", 2)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.product_wait_seconds", 20)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("stealth.enabled", true)
	v.SetDefault("stealth.max_parallel", 1)
	v.SetDefault("stealth.nav_timeout_seconds", 60)
	v.SetDefault("stealth.product_wait_seconds", 20)
	v.SetDefault("image.timeout_seconds", 10)
	v.SetDefault("render.company", "VENTURA COMERCIO DE INFORMÁTICA EIRELI")
	v.SetDefault("render.tax_id", "CNPJ: 08.310.365/0001-24")
	v.SetDefault("render.address", "RUA SETE 560 COCAL VILA VELHA – ES I 29105-770")
	v.SetDefault("render.image_size", 500)
	v.SetDefault("render.max_description", 3000)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "datasheets")
	v.SetDefault("database.table", "datasheet_results")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if _, err := url.ParseRequestURI(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url must be an absolute URL: %w", err)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Callback.TimeoutSeconds <= 0 {
		return fmt.Errorf("callback.timeout_seconds must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Stealth.Enabled && c.Stealth.MaxParallel <= 0 {
		return fmt.Errorf("stealth.max_parallel must be > 0 when stealth is enabled")
	}
	if c.Render.ImageSize <= 0 {
		return fmt.Errorf("render.image_size must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "", "none":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}

// CallbackTimeout returns the webhook delivery budget.
func (c Config) CallbackTimeout() time.Duration {
	return time.Duration(c.Callback.TimeoutSeconds) * time.Second
}

// FetchTimeout returns the per-request budget for static fetches.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long to wait for in-flight workers on exit.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
