package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Archive  ArchiveConfig
	MoySklad MoySkladConfig
	Pricing  PricingConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// ArchiveConfig holds upload and extraction settings
type ArchiveConfig struct {
	MaxFileSize int64  // maximum accepted archive size in bytes
	TempDir     string // scratch root for uploads and extracted trees
}

// MoySkladConfig holds the accounting-service connection settings
type MoySkladConfig struct {
	BaseURL       string
	WebBaseURL    string
	Token         string
	Timeout       time.Duration // lookups
	CreateTimeout time.Duration // document creation
}

// PricingConfig controls position price reconciliation
type PricingConfig struct {
	// TrustZeroInvoicePrice treats a zero price on a located invoice
	// position as an intentional free item instead of a missing value.
	TrustZeroInvoicePrice bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with DOCBRIDGE_ prefix (e.g., DOCBRIDGE_MOYSKLAD_TOKEN)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("DOCBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Archive: ArchiveConfig{
			MaxFileSize: v.GetInt64("archive.max_file_size"),
			TempDir:     v.GetString("archive.temp_dir"),
		},
		MoySklad: MoySkladConfig{
			BaseURL:       v.GetString("moysklad.base_url"),
			WebBaseURL:    v.GetString("moysklad.web_base_url"),
			Token:         v.GetString("moysklad.token"),
			Timeout:       v.GetDuration("moysklad.timeout"),
			CreateTimeout: v.GetDuration("moysklad.create_timeout"),
		},
		Pricing: PricingConfig{
			TrustZeroInvoicePrice: v.GetBool("pricing.trust_zero_invoice_price"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "docbridge-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 120 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Archive.MaxFileSize == 0 {
		cfg.Archive.MaxFileSize = 10 << 20 // 10MB
	}
	if cfg.Archive.TempDir == "" {
		cfg.Archive.TempDir = "./temp"
	}
	if cfg.MoySklad.BaseURL == "" {
		cfg.MoySklad.BaseURL = "https://api.moysklad.ru/api/remap/1.2"
	}
	if cfg.MoySklad.WebBaseURL == "" {
		cfg.MoySklad.WebBaseURL = "https://online.moysklad.ru"
	}
	if cfg.MoySklad.Timeout == 0 {
		cfg.MoySklad.Timeout = 30 * time.Second
	}
	if cfg.MoySklad.CreateTimeout == 0 {
		cfg.MoySklad.CreateTimeout = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Archive.MaxFileSize <= 0 {
		return fmt.Errorf("archive.max_file_size must be positive")
	}
	for _, raw := range []string{c.MoySklad.BaseURL, c.MoySklad.WebBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("moysklad URL %q is not a valid absolute URL", raw)
		}
	}
	if c.App.Env == "production" {
		if c.MoySklad.Token == "" {
			return fmt.Errorf("moysklad.token is required in production")
		}
		if !strings.HasPrefix(c.MoySklad.BaseURL, "https://") {
			return fmt.Errorf("moysklad.base_url must use https in production")
		}
	}
	return nil
}
