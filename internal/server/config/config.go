package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-this-to-a-secure-random-string"

// Config represents the server configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	TLS      TLSConfig      `mapstructure:"tls"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Orders   OrdersConfig   `mapstructure:"orders"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	HTTPPort               int      `mapstructure:"http_port"`
	HTTPSPort              int      `mapstructure:"https_port"`
	BaseDomain             string   `mapstructure:"base_domain"`
	DevMode                bool     `mapstructure:"dev_mode"`
	DevHosts               []string `mapstructure:"dev_hosts"`
	AllowUnverifiedDomains bool     `mapstructure:"allow_unverified_domains"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	LogLevel string `mapstructure:"log_level"`
}

// TLSConfig holds certificate settings. AutoCert issues certificates for
// tenant hostnames on first request.
type TLSConfig struct {
	AutoCert bool   `mapstructure:"auto_cert"`
	CertDir  string `mapstructure:"cert_dir"`
	Email    string `mapstructure:"email"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// RedisConfig holds the resolver cache settings. When disabled an
// in-process cache is used instead.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	AdminUsername string        `mapstructure:"admin_username"`
	AdminPassword string        `mapstructure:"admin_password"`
	InvitationTTL time.Duration `mapstructure:"invitation_ttl"`
}

// OrdersConfig holds order lifecycle settings
type OrdersConfig struct {
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	Currency    string        `mapstructure:"currency"`
	OrderPrefix string        `mapstructure:"order_prefix"`
}

// PaymentConfig holds payment provider settings
type PaymentConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	AccessToken     string        `mapstructure:"access_token"`
	WebhookSecret   string        `mapstructure:"webhook_secret"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryCount      int           `mapstructure:"retry_count"`
	SuccessURL      string        `mapstructure:"success_url"`
	FailureURL      string        `mapstructure:"failure_url"`
	NotificationURL string        `mapstructure:"notification_url"`
}

// AssetsConfig holds template/asset lookup settings
type AssetsConfig struct {
	Root          string `mapstructure:"root"`
	DefaultBucket string `mapstructure:"default_bucket"`
}

// MetricsConfig holds prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	File   string `mapstructure:"file"`
}

// Load loads configuration from file. Environment variables prefixed with
// MULTISITE_ override file values (MULTISITE_SERVER_BASE_DOMAIN, ...).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MULTISITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.BaseDomain = strings.ToLower(strings.TrimSuffix(cfg.Server.BaseDomain, "."))

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if cfg.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("auth.jwt_secret must be changed from default value")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if cfg.Orders.TokenTTL <= 0 {
		return fmt.Errorf("orders.token_ttl must be positive")
	}
	if cfg.Auth.InvitationTTL <= 0 {
		return fmt.Errorf("auth.invitation_ttl must be positive")
	}
	if cfg.Server.BaseDomain == "" {
		return fmt.Errorf("server.base_domain is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.https_port", 8443)
	v.SetDefault("server.base_domain", "sitios.local")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.dev_hosts", []string{"localhost", "127.0.0.1", "testserver"})
	v.SetDefault("server.allow_unverified_domains", false)

	// Database defaults (SQLite for easier local development)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.database", "multisite.db")
	// PostgreSQL defaults (if driver is set to postgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "multisite")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.log_level", "silent")

	// TLS
	v.SetDefault("tls.auto_cert", false)
	v.SetDefault("tls.cert_dir", "certs")

	// Resolver cache
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "5m")
	v.SetDefault("redis.negative_ttl", "1m")

	// Auth defaults
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "admin123") // Change in production!
	v.SetDefault("auth.invitation_ttl", "168h")

	// Orders
	v.SetDefault("orders.token_ttl", "72h")
	v.SetDefault("orders.currency", "CLP")
	v.SetDefault("orders.order_prefix", "ORD")

	// Payment provider
	v.SetDefault("payment.base_url", "https://api.mercadopago.com")
	v.SetDefault("payment.timeout", "15s")
	v.SetDefault("payment.retry_count", 2)

	// Assets
	v.SetDefault("assets.root", "web/tenants")
	v.SetDefault("assets.default_bucket", "_default")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}
