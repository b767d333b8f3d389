package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncConfig     `mapstructure:"sync"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
}

// UpstreamConfig contains reporting API configuration
type UpstreamConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIToken       string  `mapstructure:"api_token"`
	Timeout        string  `mapstructure:"timeout"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	RateBurst      int     `mapstructure:"rate_burst"`
	MaxRetries     int     `mapstructure:"max_retries"`
	InitialBackoff string  `mapstructure:"initial_backoff"`
	MaxBackoff     string  `mapstructure:"max_backoff"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	TTL      string `mapstructure:"ttl"`
	Capacity int    `mapstructure:"capacity"`
}

// SyncConfig contains batch fetch and auto-sync settings
type SyncConfig struct {
	Concurrency      int    `mapstructure:"concurrency"`
	WaveDelay        string `mapstructure:"wave_delay"`
	AutoSyncInterval string `mapstructure:"auto_sync_interval"`
	MaxProperties    int    `mapstructure:"max_properties"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains preference database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("upstream.timeout", "30s")
	viper.SetDefault("upstream.rate_per_second", 5)
	viper.SetDefault("upstream.rate_burst", 5)
	viper.SetDefault("upstream.max_retries", 3)
	viper.SetDefault("upstream.initial_backoff", "200ms")
	viper.SetDefault("upstream.max_backoff", "5s")
	viper.SetDefault("cache.ttl", "5m")
	viper.SetDefault("cache.capacity", 500)
	viper.SetDefault("sync.concurrency", 3)
	viper.SetDefault("sync.wave_delay", "100ms")
	viper.SetDefault("sync.auto_sync_interval", "15m")
	viper.SetDefault("sync.max_properties", 20)
	viper.SetDefault("http.bind_addr", "0.0.0.0:8080")
	viper.SetDefault("http.read_timeout", "30s")
	viper.SetDefault("http.write_timeout", "30s")
	viper.SetDefault("http.idle_timeout", "60s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("database.path", "metricsync.db")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate upstream config
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.APIToken == "" {
		return fmt.Errorf("upstream.api_token is required")
	}
	if c.Upstream.RatePerSecond <= 0 {
		return fmt.Errorf("upstream.rate_per_second must be positive")
	}
	if _, err := time.ParseDuration(c.Upstream.Timeout); err != nil {
		return fmt.Errorf("invalid upstream.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Upstream.InitialBackoff); err != nil {
		return fmt.Errorf("invalid upstream.initial_backoff: %w", err)
	}
	if _, err := time.ParseDuration(c.Upstream.MaxBackoff); err != nil {
		return fmt.Errorf("invalid upstream.max_backoff: %w", err)
	}

	// Validate cache config
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive")
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache.ttl: %w", err)
	}

	// Validate sync config
	if c.Sync.Concurrency < 1 || c.Sync.Concurrency > 10 {
		return fmt.Errorf("sync.concurrency must be between 1 and 10")
	}
	if _, err := time.ParseDuration(c.Sync.WaveDelay); err != nil {
		return fmt.Errorf("invalid sync.wave_delay: %w", err)
	}
	if _, err := time.ParseDuration(c.Sync.AutoSyncInterval); err != nil {
		return fmt.Errorf("invalid sync.auto_sync_interval: %w", err)
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetTimeout returns the upstream request timeout as time.Duration
func (c *UpstreamConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetInitialBackoff returns the initial retry backoff as time.Duration
func (c *UpstreamConfig) GetInitialBackoff() time.Duration {
	d, _ := time.ParseDuration(c.InitialBackoff)
	if d == 0 {
		return 200 * time.Millisecond
	}
	return d
}

// GetMaxBackoff returns the maximum retry backoff as time.Duration
func (c *UpstreamConfig) GetMaxBackoff() time.Duration {
	d, _ := time.ParseDuration(c.MaxBackoff)
	if d == 0 {
		return 5 * time.Second
	}
	return d
}

// GetTTL returns the cache TTL as time.Duration
func (c *CacheConfig) GetTTL() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	if d == 0 {
		return 5 * time.Minute
	}
	return d
}

// GetWaveDelay returns the inter-wave delay as time.Duration
func (c *SyncConfig) GetWaveDelay() time.Duration {
	d, _ := time.ParseDuration(c.WaveDelay)
	if d == 0 {
		return 100 * time.Millisecond
	}
	return d
}

// GetAutoSyncInterval returns the auto-sync interval as time.Duration
func (c *SyncConfig) GetAutoSyncInterval() time.Duration {
	d, _ := time.ParseDuration(c.AutoSyncInterval)
	if d == 0 {
		return 15 * time.Minute
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}
