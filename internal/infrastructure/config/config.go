package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// GatewayConfig holds the merchant credentials and endpoint of the remote
// payment gateway.
type GatewayConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	MerchantID      string        `mapstructure:"merchant_id"`
	Password        string        `mapstructure:"password"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryAttempts   uint          `mapstructure:"retry_attempts"`
	RetryInitDelay  time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`
	OrderLockTTL    time.Duration `mapstructure:"order_lock_ttl"`
	NotificationTTL time.Duration `mapstructure:"notification_dedup_ttl"`
}

// CheckoutConfig is the merchant-facing payment policy.
type CheckoutConfig struct {
	// CaptureImmediate selects pay (auth+capture) over authorize-only.
	CaptureImmediate bool `mapstructure:"capture_immediate"`
	// StepUpEnabled turns on 3-D Secure enrollment checks.
	StepUpEnabled bool `mapstructure:"stepup_enabled"`
	// StepUpTTL expires an abandoned step-up context so the order can accept
	// a fresh submission.
	StepUpTTL time.Duration `mapstructure:"stepup_ttl"`
	// HostedCheckout selects the hosted-session entry path.
	HostedCheckout bool `mapstructure:"hosted_checkout"`
	// SuccessURL is where the dispatcher redirects a paid customer.
	SuccessURL string `mapstructure:"success_url"`
	// CheckoutURL is where the dispatcher redirects on failure, with an error notice.
	CheckoutURL string `mapstructure:"checkout_url"`
	// ReturnURL is the dispatcher's own return endpoint, handed to the gateway.
	ReturnURL string `mapstructure:"return_url"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// WorkerConfig tunes the reconciliation sweeper.
type WorkerConfig struct {
	// SweepInterval is how often the sweeper scans for stale orders.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// StaleAfter is how long a processing order may sit untouched before the
	// sweeper re-reconciles it against the gateway.
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("CARDGATEWAY")
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cardgateway")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Gateway.BaseURL == "" {
		errs = append(errs, fmt.Errorf("gateway.base_url is required"))
	}
	if c.Gateway.MerchantID == "" {
		errs = append(errs, fmt.Errorf("gateway.merchant_id is required"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout must be positive"))
	}
	if c.Gateway.OrderLockTTL <= 0 {
		errs = append(errs, fmt.Errorf("gateway.order_lock_ttl must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Gateway.Password == "" {
			errs = append(errs, fmt.Errorf("gateway.password required in production"))
		}
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Gateway defaults
	v.SetDefault("gateway.timeout", "30s")
	v.SetDefault("gateway.retry_attempts", 3)
	v.SetDefault("gateway.retry_initial_delay", "500ms")
	v.SetDefault("gateway.retry_max_delay", "10s")
	v.SetDefault("gateway.order_lock_ttl", "30s")
	v.SetDefault("gateway.notification_dedup_ttl", "24h")

	// Checkout defaults
	v.SetDefault("checkout.capture_immediate", true)
	v.SetDefault("checkout.stepup_enabled", true)
	v.SetDefault("checkout.stepup_ttl", "30m")
	v.SetDefault("checkout.hosted_checkout", false)
	v.SetDefault("checkout.success_url", "/checkout/complete")
	v.SetDefault("checkout.checkout_url", "/checkout")
	v.SetDefault("checkout.return_url", "http://localhost:8080/gateway/return")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cardgateway")
	v.SetDefault("database.database", "cardgateway")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Worker defaults
	v.SetDefault("worker.sweep_interval", "1m")
	v.SetDefault("worker.stale_after", "10m")
	v.SetDefault("worker.batch_size", 50)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	v.SetDefault("instance_id", "cardgateway-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
