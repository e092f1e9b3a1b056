package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Escalation   EscalationConfig
	Security     SecurityConfig
	Tracing      TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	PublicURL             string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds outbound channel settings. Empty host or token
// disables the channel.
type NotificationConfig struct {
	EmailFrom    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SlackToken   string
	SlackChannel string
	SlackAPIURL  string
	QueueSize    int
	Workers      int
}

// EscalationConfig drives the escalation sweep.
type EscalationConfig struct {
	Enabled             bool
	Interval            time.Duration
	CTOEmail            string
	DefaultTimeoutHours int
	LeaseTTL            time.Duration
	LeaseKey            string
	PolicyFile          string
}

// SecurityConfig configures HTTP hardening middleware.
type SecurityConfig struct {
	AllowedOrigins   []string
	RateLimitMax     int
	RateLimitWindow  time.Duration
	EnableRateLimits bool
}

// TracingConfig toggles OpenTelemetry export to stdout or a file.
type TracingConfig struct {
	Enabled    bool
	OutputFile string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "itsm-approvals"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			PublicURL:             getEnv("APP_PUBLIC_URL", "http://localhost:3000"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:    getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: os.Getenv("SMTP_USERNAME"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			SlackToken:   os.Getenv("SLACK_BOT_TOKEN"),
			SlackChannel: getEnv("SLACK_CHANNEL", "#approvals"),
			SlackAPIURL:  getEnv("SLACK_API_URL", "https://slack.com/api/chat.postMessage"),
			QueueSize:    getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:      getEnvAsInt("NOTIFY_WORKERS", 2),
		},
		Escalation: EscalationConfig{
			Enabled:             getEnvAsBool("ESCALATION_ENABLED", true),
			Interval:            getEnvAsDuration("ESCALATION_INTERVAL", 15*time.Minute),
			CTOEmail:            getEnv("ESCALATION_CTO_EMAIL", "cto@company.com"),
			DefaultTimeoutHours: getEnvAsInt("ESCALATION_DEFAULT_TIMEOUT_HOURS", 24),
			LeaseTTL:            getEnvAsDuration("ESCALATION_LEASE_TTL", 5*time.Minute),
			LeaseKey:            getEnv("ESCALATION_LEASE_KEY", "itsm-approvals:escalation-sweep"),
			PolicyFile:          os.Getenv("ESCALATION_POLICY_FILE"),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitMax:     getEnvAsInt("RATE_LIMIT_MAX", 100),
			RateLimitWindow:  getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			EnableRateLimits: getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		Tracing: TracingConfig{
			Enabled:    getEnvAsBool("TRACING_ENABLED", false),
			OutputFile: os.Getenv("TRACING_OUTPUT_FILE"),
		},
	}

	if cfg.Escalation.PolicyFile != "" {
		policy, err := LoadEscalationPolicy(cfg.Escalation.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy.Apply(&cfg.Escalation)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued bearer tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
