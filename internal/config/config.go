package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Lifecycle LifecycleConfig
	Scheduler SchedulerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	MetricsAddr           string
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
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines gateway token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// ClosePolicy selects who may close a ticket.
type ClosePolicy string

const (
	// ClosePolicyOwnerOrStaff permits the ticket owner and any staff member.
	ClosePolicyOwnerOrStaff ClosePolicy = "owner_or_staff"
	// ClosePolicyStaffOnly restricts closing to staff.
	ClosePolicyStaffOnly ClosePolicy = "staff_only"
)

// LifecycleConfig holds state-machine policy knobs.
type LifecycleConfig struct {
	ClosePolicy           ClosePolicy
	DuplicateScope        domain.DuplicateScope
	MaxOpenTickets        int
	StorageTimeoutSeconds int
	ConflictRetries       int
	ChannelRetries        int
	ChannelBackoffMillis  int
	TranscriptRetries     int
	TranscriptBackoffSec  int
}

// SchedulerConfig holds inactivity sweep settings.
type SchedulerConfig struct {
	Enabled            bool
	SweepSpec          string
	WarnThreshold      time.Duration
	AutoCloseThreshold time.Duration
	ActivityTTLHours   int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	duplicateScope := domain.DuplicateScope(getEnv("TICKET_DUPLICATE_SCOPE", string(domain.DuplicateScopeCategory)))
	if duplicateScope != domain.DuplicateScopeCategory && duplicateScope != domain.DuplicateScopeGlobal {
		return nil, fmt.Errorf("invalid TICKET_DUPLICATE_SCOPE: %s", duplicateScope)
	}
	closePolicy := ClosePolicy(getEnv("TICKET_CLOSE_POLICY", string(ClosePolicyOwnerOrStaff)))
	if closePolicy != ClosePolicyOwnerOrStaff && closePolicy != ClosePolicyStaffOnly {
		return nil, fmt.Errorf("invalid TICKET_CLOSE_POLICY: %s", closePolicy)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			MetricsAddr:           getEnv("METRICS_ADDR", "0.0.0.0:9091"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Lifecycle: LifecycleConfig{
			ClosePolicy:           closePolicy,
			DuplicateScope:        duplicateScope,
			MaxOpenTickets:        getEnvAsInt("TICKET_MAX_OPEN_PER_OWNER", 3),
			StorageTimeoutSeconds: getEnvAsInt("STORAGE_TIMEOUT_SECONDS", 5),
			ConflictRetries:       getEnvAsInt("TICKET_CONFLICT_RETRIES", 3),
			ChannelRetries:        getEnvAsInt("CHANNEL_REQUEST_RETRIES", 3),
			ChannelBackoffMillis:  getEnvAsInt("CHANNEL_REQUEST_BACKOFF_MILLIS", 250),
			TranscriptRetries:     getEnvAsInt("TRANSCRIPT_RETRIES", 5),
			TranscriptBackoffSec:  getEnvAsInt("TRANSCRIPT_BACKOFF_SECONDS", 2),
		},
		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBool("SWEEP_ENABLED", true),
			SweepSpec:          getEnv("SWEEP_CRON_SPEC", "@every 60s"),
			WarnThreshold:      time.Duration(getEnvAsInt("IDLE_WARN_MINUTES", 30)) * time.Minute,
			AutoCloseThreshold: time.Duration(getEnvAsInt("IDLE_AUTO_CLOSE_HOURS", 24)) * time.Hour,
			ActivityTTLHours:   getEnvAsInt("ACTIVITY_CACHE_TTL_HOURS", 48),
		},
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

// StorageTimeout returns the per-call storage deadline.
func (l LifecycleConfig) StorageTimeout() time.Duration {
	if l.StorageTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(l.StorageTimeoutSeconds) * time.Second
}

// ChannelBackoff returns the base delay between channel request retries.
func (l LifecycleConfig) ChannelBackoff() time.Duration {
	return time.Duration(l.ChannelBackoffMillis) * time.Millisecond
}

// TranscriptBackoff returns the base delay between transcript retries.
func (l LifecycleConfig) TranscriptBackoff() time.Duration {
	return time.Duration(l.TranscriptBackoffSec) * time.Second
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
