package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envAliases maps config keys to the unprefixed variable names used by
// existing deployments.
var envAliases = map[string]string{
	"external.base_url":    "EXTERNAL_API_BASE_URL",
	"shopify.api_key":      "SHOPIFY_API_KEY",
	"shopify.api_secret":   "SHOPIFY_API_SECRET",
	"shopify.access_token": "SHOPIFY_ACCESS_TOKEN",
	"shopify.shop_domain":  "SHOPIFY_SHOP_DOMAIN",
	"server.port":          "PORT",
	"server.public_url":    "SHOPIFY_APP_URL",
	"rabbitmq.url":         "RABBITMQ_URL",
}

// boolDefaults are applied through viper because SetDefaults cannot tell an
// explicit false from an unset flag.
var boolDefaults = map[string]bool{
	"security.verify_webhooks": true,
	"reconcile.lock_enabled":   true,
	"metrics.enabled":          true,
	"rate_limit.enabled":       true,
	"circuit_break.enabled":    true,
}

// LoadConfig loads configuration from an optional file, the process
// environment and a local .env file, in increasing order of precedence for
// the environment.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/shopsync")
	}

	v.SetEnvPrefix("SHOPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindKeys(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// bindKeys registers every key with viper so AutomaticEnv values reach
// Unmarshal even when no config file mentions the key.
func bindKeys(v *viper.Viper) error {
	for _, key := range configKeys {
		if def, ok := boolDefaults[key]; ok {
			v.SetDefault(key, def)
		}
		names := []string{key, "SHOPSYNC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if alias, ok := envAliases[key]; ok {
			names = append(names, alias)
		}
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

var configKeys = []string{
	"server.host", "server.port", "server.mode", "server.read_timeout",
	"server.write_timeout", "server.idle_timeout", "server.public_url",

	"shopify.shop_domain", "shopify.access_token", "shopify.api_version",
	"shopify.api_key", "shopify.api_secret", "shopify.app_handle",
	"shopify.timeout", "shopify.requests_per_second", "shopify.burst",

	"external.base_url", "external.timeout", "external.order_sync_path",
	"external.sku_quantities_path", "external.product_sync_path",
	"external.token_validate_path",

	"relay.sink", "relay.workers", "relay.buffer_size",
	"relay.redelivery_capacity", "relay.redelivery_fp_rate",

	"rabbitmq.url", "rabbitmq.exchange", "rabbitmq.routing_key", "rabbitmq.timeout",

	"reconcile.lock_enabled", "reconcile.lock_ttl", "reconcile.lock_retries",
	"reconcile.lock_retry_delay",

	"database.enabled", "database.host", "database.port", "database.username",
	"database.password", "database.dbname", "database.max_open_conns",
	"database.max_idle_conns", "database.conn_max_lifetime", "database.auto_migrate",

	"redis.enabled", "redis.host", "redis.port", "redis.password", "redis.db",
	"redis.pool_size", "redis.dial_timeout", "redis.read_timeout", "redis.write_timeout",

	"log.level", "log.format", "log.output", "log.filename", "log.max_size",
	"log.max_age", "log.max_backups", "log.compress",

	"metrics.enabled", "metrics.path", "metrics.namespace",

	"tracing.enabled", "tracing.service_name", "tracing.endpoint", "tracing.sample_rate",

	"rate_limit.enabled", "rate_limit.rps", "rate_limit.burst",

	"circuit_break.enabled", "circuit_break.max_requests", "circuit_break.interval",
	"circuit_break.timeout", "circuit_break.failure_ratio", "circuit_break.min_requests",

	"cache.access_ttl",

	"security.verify_webhooks", "security.session_leeway", "security.cors.allow_origins",
}
