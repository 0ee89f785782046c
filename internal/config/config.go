package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the service configuration. It is built once at startup
// and handed to constructors; nothing mutates it afterwards.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Shopify      ShopifyConfig      `mapstructure:"shopify"`
	External     ExternalConfig     `mapstructure:"external"`
	Relay        RelayConfig        `mapstructure:"relay"`
	RabbitMQ     RabbitMQConfig     `mapstructure:"rabbitmq"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	CircuitBreak CircuitBreakConfig `mapstructure:"circuit_break"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Security     SecurityConfig     `mapstructure:"security"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// PublicURL is where Shopify reaches this service; used as the webhook callback base.
	PublicURL string `mapstructure:"public_url"`
}

// ShopifyConfig represents Shopify Admin API credentials
type ShopifyConfig struct {
	ShopDomain        string        `mapstructure:"shop_domain"`
	AccessToken       string        `mapstructure:"access_token"`
	APIVersion        string        `mapstructure:"api_version"`
	APIKey            string        `mapstructure:"api_key"`
	APISecret         string        `mapstructure:"api_secret"`
	AppHandle         string        `mapstructure:"app_handle"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// ExternalConfig represents the external warehouse API
type ExternalConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	OrderSyncPath     string        `mapstructure:"order_sync_path"`
	SKUQuantitiesPath string        `mapstructure:"sku_quantities_path"`
	ProductSyncPath   string        `mapstructure:"product_sync_path"`
	TokenValidatePath string        `mapstructure:"token_validate_path"`
}

// RelayConfig represents order webhook relay configuration
type RelayConfig struct {
	Sink       string `mapstructure:"sink"` // http, amqp
	Workers    int    `mapstructure:"workers"`
	BufferSize int    `mapstructure:"buffer_size"`
	// RedeliveryCapacity sizes the bloom filter that flags repeated webhook ids.
	RedeliveryCapacity uint    `mapstructure:"redelivery_capacity"`
	RedeliveryFPRate   float64 `mapstructure:"redelivery_fp_rate"`
}

// RabbitMQConfig represents the AMQP order sink
type RabbitMQConfig struct {
	URL        string        `mapstructure:"url"`
	Exchange   string        `mapstructure:"exchange"`
	RoutingKey string        `mapstructure:"routing_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ReconcileConfig represents inventory reconciliation configuration
type ReconcileConfig struct {
	LockEnabled    bool          `mapstructure:"lock_enabled"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockRetries    int           `mapstructure:"lock_retries"`
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RateLimitConfig represents per-IP limits on the public token endpoints
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// CircuitBreakConfig represents circuit breaker configuration
type CircuitBreakConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

// CacheConfig represents the local shop access cache
type CacheConfig struct {
	AccessTTL time.Duration `mapstructure:"access_ttl"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	// VerifyWebhooks disables HMAC checks only for local tunnels.
	VerifyWebhooks bool          `mapstructure:"verify_webhooks"`
	SessionLeeway  time.Duration `mapstructure:"session_leeway"`
	CORS           struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
}

// GetAddr returns the server address
func (s ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetDSN returns the database DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=10s",
		d.Username, d.Password, d.Host, d.Port, d.DBName)
}

// GetAddr returns the Redis address
func (r RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if err := validateBaseURL(c.External.BaseURL); err != nil {
		return err
	}

	if c.Shopify.ShopDomain == "" {
		return fmt.Errorf("shopify shop domain is required")
	}

	if c.Shopify.AccessToken == "" {
		return fmt.Errorf("shopify access token is required")
	}

	if c.Security.VerifyWebhooks && c.Shopify.APISecret == "" {
		return fmt.Errorf("shopify api secret is required to verify webhooks")
	}

	switch c.Relay.Sink {
	case "http":
	case "amqp":
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("rabbitmq url is required for the amqp relay sink")
		}
	default:
		return fmt.Errorf("unknown relay sink %q", c.Relay.Sink)
	}

	if c.Database.Enabled && c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func validateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("external api base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("external api base url %q is not an absolute http(s) url", raw)
	}
	return nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Shopify.APIVersion == "" {
		c.Shopify.APIVersion = "2025-01"
	}
	if c.Shopify.AppHandle == "" {
		c.Shopify.AppHandle = "warehouse-app"
	}
	if c.Shopify.Timeout == 0 {
		c.Shopify.Timeout = 10 * time.Second
	}
	if c.Shopify.RequestsPerSecond == 0 {
		c.Shopify.RequestsPerSecond = 2
	}
	if c.Shopify.Burst == 0 {
		c.Shopify.Burst = 4
	}

	c.External.BaseURL = strings.TrimRight(strings.TrimSpace(c.External.BaseURL), "/")
	if c.External.Timeout == 0 {
		c.External.Timeout = 10 * time.Second
	}
	if c.External.OrderSyncPath == "" {
		c.External.OrderSyncPath = "/api/receive-orders"
	}
	if c.External.SKUQuantitiesPath == "" {
		c.External.SKUQuantitiesPath = "/api/skus/quantities"
	}
	if c.External.ProductSyncPath == "" {
		c.External.ProductSyncPath = "/api/shopify/sync/products"
	}
	if c.External.TokenValidatePath == "" {
		c.External.TokenValidatePath = "/api/admin/tokens/validate"
	}

	if c.Relay.Sink == "" {
		c.Relay.Sink = "http"
	}
	if c.Relay.Workers == 0 {
		c.Relay.Workers = 4
	}
	if c.Relay.BufferSize == 0 {
		c.Relay.BufferSize = 256
	}
	if c.Relay.RedeliveryCapacity == 0 {
		c.Relay.RedeliveryCapacity = 100000
	}
	if c.Relay.RedeliveryFPRate == 0 {
		c.Relay.RedeliveryFPRate = 0.001
	}

	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "shopify.webhook"
	}
	if c.RabbitMQ.Timeout == 0 {
		c.RabbitMQ.Timeout = 10 * time.Second
	}

	if c.Reconcile.LockTTL == 0 {
		c.Reconcile.LockTTL = 30 * time.Second
	}
	if c.Reconcile.LockRetries == 0 {
		c.Reconcile.LockRetries = 20
	}
	if c.Reconcile.LockRetryDelay == 0 {
		c.Reconcile.LockRetryDelay = 250 * time.Millisecond
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "shopsync"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "shopsync"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}

	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}

	if c.CircuitBreak.MaxRequests == 0 {
		c.CircuitBreak.MaxRequests = 1
	}
	if c.CircuitBreak.Interval == 0 {
		c.CircuitBreak.Interval = time.Minute
	}
	if c.CircuitBreak.Timeout == 0 {
		c.CircuitBreak.Timeout = 30 * time.Second
	}
	if c.CircuitBreak.FailureRatio == 0 {
		c.CircuitBreak.FailureRatio = 0.5
	}
	if c.CircuitBreak.MinRequests == 0 {
		c.CircuitBreak.MinRequests = 10
	}

	if c.Cache.AccessTTL == 0 {
		c.Cache.AccessTTL = 5 * time.Minute
	}

	if c.Security.SessionLeeway == 0 {
		c.Security.SessionLeeway = 5 * time.Second
	}
}
