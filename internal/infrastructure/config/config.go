package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Tx            TxConfig            `mapstructure:"tx"`
	Booking       BookingConfig       `mapstructure:"booking"`
	Outbox        OutboxConfig        `mapstructure:"outbox"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
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

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	// StatementTimeout bounds every statement server-side; 0 disables it.
	StatementTimeout  time.Duration `mapstructure:"statement_timeout"`
	ApplicationName   string        `mapstructure:"application_name"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	StreamPrefix      string        `mapstructure:"stream_prefix"`
	StreamMaxLen      int64         `mapstructure:"stream_max_len"`
}

// TxConfig tunes the serialization-conflict retry loop.
type TxConfig struct {
	Isolation     string        `mapstructure:"isolation"`
	MaxAttempts   uint          `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	MaxJitter     time.Duration `mapstructure:"max_jitter"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

type BookingConfig struct {
	HoldTTL        time.Duration `mapstructure:"hold_ttl"`
	ConfirmedTopic string        `mapstructure:"confirmed_topic"`
}

type OutboxConfig struct {
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	BackoffJitter float64       `mapstructure:"backoff_jitter"`
	LeaseDuration time.Duration `mapstructure:"lease_duration"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type WorkerConfig struct {
	Concurrency           int           `mapstructure:"concurrency"`
	BatchSize             int           `mapstructure:"batch_size"`
	IdleInterval          time.Duration `mapstructure:"idle_interval"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval"`
	BreakerMaxFailures    uint32        `mapstructure:"breaker_max_failures"`
	BreakerOpenTimeout    time.Duration `mapstructure:"breaker_open_timeout"`
	BreakerHalfOpenProbes uint32        `mapstructure:"breaker_half_open_probes"`
}

type ObservabilityConfig struct {
	LogLevel      string  `mapstructure:"log_level"`
	OTLPEndpoint  string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure  bool    `mapstructure:"otlp_insecure"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
	EnableMetrics bool    `mapstructure:"enable_metrics"`
	EnableTracing bool    `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables, e.g. BOOKINGS_DATABASE_HOST
	v.SetEnvPrefix("BOOKINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bookings")

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
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	switch strings.ToLower(c.Tx.Isolation) {
	case "", "serializable", "repeatable_read", "read_committed":
	default:
		errs = append(errs, fmt.Errorf("tx.isolation must be serializable, repeatable_read or read_committed, got %q", c.Tx.Isolation))
	}
	if c.Tx.MaxAttempts == 0 {
		errs = append(errs, fmt.Errorf("tx.max_attempts must be positive"))
	}
	if c.Booking.HoldTTL <= 0 {
		errs = append(errs, fmt.Errorf("booking.hold_ttl must be positive"))
	}
	if c.Outbox.BackoffBase <= 0 {
		errs = append(errs, fmt.Errorf("outbox.backoff_base must be positive"))
	}
	if c.Outbox.BackoffMax < c.Outbox.BackoffBase {
		errs = append(errs, fmt.Errorf("outbox.backoff_max must not be less than outbox.backoff_base"))
	}
	if c.Outbox.BackoffJitter < 0 || c.Outbox.BackoffJitter >= 1 {
		errs = append(errs, fmt.Errorf("outbox.backoff_jitter must be in [0, 1)"))
	}
	if c.Outbox.LeaseDuration > c.Outbox.BackoffMax {
		errs = append(errs, fmt.Errorf("outbox.lease_duration must not exceed outbox.backoff_max"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
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

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bookings")
	v.SetDefault("database.database", "bookings")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.statement_timeout", "5s")
	v.SetDefault("database.application_name", "bookings")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.connect_retry_delay", "1s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")
	v.SetDefault("redis.stream_prefix", "events:")
	v.SetDefault("redis.stream_max_len", 100000)

	// Transaction defaults
	v.SetDefault("tx.isolation", "serializable")
	v.SetDefault("tx.max_attempts", 5)
	v.SetDefault("tx.initial_delay", "20ms")
	v.SetDefault("tx.max_delay", "500ms")
	v.SetDefault("tx.max_jitter", "25ms")
	v.SetDefault("tx.slow_threshold", "500ms")

	// Booking defaults
	v.SetDefault("booking.hold_ttl", "10m")
	v.SetDefault("booking.confirmed_topic", "booking.confirmed")

	// Outbox defaults
	v.SetDefault("outbox.backoff_base", "5s")
	v.SetDefault("outbox.backoff_max", "10m")
	v.SetDefault("outbox.backoff_jitter", 0.0)
	v.SetDefault("outbox.lease_duration", "1m")
	v.SetDefault("outbox.max_attempts", 10)

	// Worker defaults
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.idle_interval", "2s")
	v.SetDefault("worker.sweep_interval", "1m")
	v.SetDefault("worker.breaker_max_failures", 5)
	v.SetDefault("worker.breaker_open_timeout", "30s")
	v.SetDefault("worker.breaker_half_open_probes", 1)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.otlp_endpoint", "localhost:4317")
	v.SetDefault("observability.otlp_insecure", true)
	v.SetDefault("observability.sample_ratio", 1.0)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "bookings-1")
}

// DatabaseDSN returns a keyword/value connection string with every value
// quoted, so empty or spaced passwords survive parsing.
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSN(c.Host), c.Port, quoteDSN(c.User), quoteDSN(c.Password), quoteDSN(c.Database), quoteDSN(c.SSLMode),
	)
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteDSN(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

// DatabaseURL returns the URL form golang-migrate expects.
func (c *DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
