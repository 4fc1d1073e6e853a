package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Order       OrderConfig       `mapstructure:"order"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Session     SessionConfig     `mapstructure:"session"`
	Server      ServerConfig      `mapstructure:"server"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Risk        RiskConfig        `mapstructure:"risk"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BrokerConfig holds the upstream endpoints. Paths are relative: login and validate
// hang off BaseURL, order placement hangs off the base URL returned by validate.
type BrokerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	LoginPath      string `mapstructure:"login_path"`
	ValidatePath   string `mapstructure:"validate_path"`
	PlaceOrderPath string `mapstructure:"place_order_path"`
	RoutingKey     string `mapstructure:"routing_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	OrderSource    string `mapstructure:"order_source"`
	Validity       string `mapstructure:"validity"`
	AfterMarket    string `mapstructure:"after_market"`
}

type AuthConfig struct {
	MaxAttempts       int      `mapstructure:"max_attempts"`
	InitialBackoffMs  int      `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int      `mapstructure:"max_backoff_ms"`
	OTPPeriodSeconds  int      `mapstructure:"otp_period_seconds"`
	OTPDigits         int      `mapstructure:"otp_digits"`
	OTPErrorMarkers   []string `mapstructure:"otp_error_markers"`
	ChallengeExpiries []string `mapstructure:"challenge_expired_markers"`
}

type OrderConfig struct {
	MaxRetries       int    `mapstructure:"max_retries"`
	InitialBackoffMs int    `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `mapstructure:"max_backoff_ms"`
	DefaultProduct   string `mapstructure:"default_product"`
}

type CredentialsConfig struct {
	File        string `mapstructure:"file"`
	EnvFallback bool   `mapstructure:"env_fallback"`
}

type SessionConfig struct {
	Cache      string `mapstructure:"cache"` // none or redis
	TTLMinutes int    `mapstructure:"ttl_minutes"`
	CacheKey   string `mapstructure:"cache_key"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	APIKey   string `mapstructure:"api_key"`
	AdminKey string `mapstructure:"admin_key"`
	ReadOnly bool   `mapstructure:"read_only"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AuditConfig selects where gateway audit entries go besides the daily JSONL file.
type AuditConfig struct {
	Dir     string `mapstructure:"dir"`
	Store   string `mapstructure:"store"` // postgres, redis or none
	ListKey string `mapstructure:"list_key"`
	ListMax int    `mapstructure:"list_max"`
}

type IdempotencyConfig struct {
	Store string `mapstructure:"store"` // memory, redis or postgres
}

// RiskConfig holds pre-trade limits. Zero disables a limit.
type RiskConfig struct {
	MaxQuantity       int64    `mapstructure:"max_quantity"`
	MaxOrderValue     float64  `mapstructure:"max_order_value"`
	MaxDailyOrders    int      `mapstructure:"max_daily_orders"`
	MaxDailyValue     float64  `mapstructure:"max_daily_value"`
	RestrictedSymbols []string `mapstructure:"restricted_symbols"`
	UsageStore        string   `mapstructure:"usage_store"` // memory or redis
	Scope             string   `mapstructure:"scope"`
}

// Enabled reports whether any limit is set.
func (c RiskConfig) Enabled() bool {
	return c.MaxQuantity > 0 || c.MaxOrderValue > 0 || c.MaxDailyOrders > 0 ||
		c.MaxDailyValue > 0 || len(c.RestrictedSymbols) > 0
}

// Load reads path (optional) and NEOGATE_* environment variables on top of defaults.
// An empty path searches ./config.yaml and ./configs/config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// e.g. NEOGATE_BROKER_BASE_URL
	v.SetEnvPrefix("neogate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case path != "" && errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with no file and no environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("broker.base_url", "https://mis.kotaksecurities.com")
	v.SetDefault("broker.login_path", "login/1.0/tradeApiLogin")
	v.SetDefault("broker.validate_path", "login/1.0/tradeApiValidate")
	v.SetDefault("broker.place_order_path", "quick/order/rule/ms/place")
	v.SetDefault("broker.routing_key", "neotradeapi")
	v.SetDefault("broker.timeout_seconds", 30)
	v.SetDefault("broker.order_source", "NEOTRADEAPI")
	v.SetDefault("broker.validity", "DAY")
	v.SetDefault("broker.after_market", "NO")

	v.SetDefault("auth.max_attempts", 3)
	v.SetDefault("auth.initial_backoff_ms", 500)
	v.SetDefault("auth.max_backoff_ms", 4000)
	v.SetDefault("auth.otp_period_seconds", 30)
	v.SetDefault("auth.otp_digits", 6)
	v.SetDefault("auth.otp_error_markers", []string{"totp", "otp"})
	v.SetDefault("auth.challenge_expired_markers", []string{"expired", "invalid sid"})

	v.SetDefault("order.max_retries", 2)
	v.SetDefault("order.initial_backoff_ms", 500)
	v.SetDefault("order.max_backoff_ms", 2000)
	v.SetDefault("order.default_product", "MIS")

	v.SetDefault("credentials.file", "b.txt")
	v.SetDefault("credentials.env_fallback", true)

	v.SetDefault("session.cache", "none")
	v.SetDefault("session.ttl_minutes", 360)
	v.SetDefault("session.cache_key", "neogate:session")

	v.SetDefault("server.port", "8080")
	v.SetDefault("rate_limit.qps", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("redis.idempotency_ttl_seconds", 86400)
	v.SetDefault("database.audit_retention_days", 30)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("audit.dir", "./logs")
	v.SetDefault("audit.store", "none")
	v.SetDefault("audit.list_key", "neogate:audit")
	v.SetDefault("audit.list_max", 10000)
	v.SetDefault("idempotency.store", "memory")

	v.SetDefault("risk.usage_store", "memory")
	v.SetDefault("risk.scope", "default")
}

func (c BrokerConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c RedisConfig) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (c AuthConfig) OTPPeriod() time.Duration {
	return time.Duration(c.OTPPeriodSeconds) * time.Second
}

func (c AuthConfig) InitialBackoff() time.Duration { return ms(c.InitialBackoffMs) }
func (c AuthConfig) MaxBackoff() time.Duration     { return ms(c.MaxBackoffMs) }

func (c OrderConfig) InitialBackoff() time.Duration { return ms(c.InitialBackoffMs) }
func (c OrderConfig) MaxBackoff() time.Duration     { return ms(c.MaxBackoffMs) }
