package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store backends selectable for revocations and login attempts.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Realtime     RealtimeConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `validate:"required"`
	Env                   string `validate:"oneof=development production test"`
	Host                  string
	Port                  string `validate:"required,numeric"`
	Version               string
	RequestTimeoutSeconds int `validate:"gte=0"`
	ProxyHeader           string
	CORSOrigins           []string
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
	DB       int `validate:"gte=0,lte=15"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token, cookie and login throttling parameters.
type AuthConfig struct {
	AccessSecret      string        `validate:"required,min=32"`
	RefreshSecret     string        `validate:"required,min=32"`
	Issuer            string        `validate:"required"`
	AccessTokenTTL    time.Duration `validate:"gt=0"`
	RefreshTokenTTL   time.Duration `validate:"gt=0"`
	BcryptCost        int           `validate:"gte=4,lte=31"`
	CookieSecure      bool
	StoreTimeout      time.Duration `validate:"gt=0"`
	MaxLoginAttempts  int           `validate:"gt=0"`
	LoginWindow       time.Duration `validate:"gt=0"`
	RevocationBackend string        `validate:"oneof=postgres redis memory"`
	AttemptBackend    string        `validate:"oneof=redis memory"`
	SweepInterval     time.Duration `validate:"gt=0"`
	SweepBatch        int           `validate:"gt=0"`
	SweepTimeout      time.Duration `validate:"gt=0"`
}

// RealtimeConfig configures the WebSocket listener.
type RealtimeConfig struct {
	Addr             string `validate:"required"`
	AllowedOrigins   []string
	OriginRequired   bool
	SendQueueSize    int           `validate:"gt=0"`
	WriteTimeout     time.Duration `validate:"gt=0"`
	ReadIdleTimeout  time.Duration `validate:"gt=0"`
	HeartbeatEvery   time.Duration `validate:"gt=0"`
	HeartbeatTimeout time.Duration `validate:"gt=0"`
	RateEvents       int           `validate:"gt=0"`
	RateWindow       time.Duration `validate:"gt=0"`
}

// NotificationConfig holds the collaborator notification endpoint settings.
type NotificationConfig struct {
	ServiceToken string
}

// Load reads configuration from environment variables, applying defaults where possible.
// envFile is optional; a missing file is ignored.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	dsn := os.Getenv("POSTGRES_DSN")
	defaultRevocation := BackendMemory
	if dsn != "" {
		defaultRevocation = BackendPostgres
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "session-core"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			ProxyHeader:           os.Getenv("APP_PROXY_HEADER"),
			CORSOrigins:           getEnvAsList("CORS_ORIGINS", "http://localhost:3000"),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			AccessSecret:      os.Getenv("AUTH_ACCESS_SECRET"),
			RefreshSecret:     os.Getenv("AUTH_REFRESH_SECRET"),
			Issuer:            getEnv("AUTH_ISSUER", "session-core"),
			AccessTokenTTL:    getEnvAsDuration("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:   getEnvAsDuration("AUTH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			BcryptCost:        getEnvAsInt("AUTH_BCRYPT_COST", 12),
			CookieSecure:      getEnvAsBool("AUTH_COOKIE_SECURE", true),
			StoreTimeout:      getEnvAsDuration("AUTH_STORE_TIMEOUT", 2*time.Second),
			MaxLoginAttempts:  getEnvAsInt("AUTH_MAX_LOGIN_ATTEMPTS", 5),
			LoginWindow:       getEnvAsDuration("AUTH_LOGIN_WINDOW", 15*time.Minute),
			RevocationBackend: getEnv("AUTH_REVOCATION_BACKEND", defaultRevocation),
			AttemptBackend:    getEnv("AUTH_ATTEMPT_BACKEND", BackendMemory),
			SweepInterval:     getEnvAsDuration("AUTH_SWEEP_INTERVAL", time.Hour),
			SweepBatch:        getEnvAsInt("AUTH_SWEEP_BATCH", 500),
			SweepTimeout:      getEnvAsDuration("AUTH_SWEEP_TIMEOUT", 30*time.Second),
		},
		Realtime: RealtimeConfig{
			Addr:             getEnv("REALTIME_ADDR", "0.0.0.0:8081"),
			AllowedOrigins:   getEnvAsList("REALTIME_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
			OriginRequired:   getEnvAsBool("REALTIME_ORIGIN_REQUIRED", false),
			SendQueueSize:    getEnvAsInt("REALTIME_SEND_QUEUE", 256),
			WriteTimeout:     getEnvAsDuration("REALTIME_WRITE_TIMEOUT", 5*time.Second),
			ReadIdleTimeout:  getEnvAsDuration("REALTIME_READ_IDLE_TIMEOUT", 2*time.Minute),
			HeartbeatEvery:   getEnvAsDuration("REALTIME_HEARTBEAT_INTERVAL", 25*time.Second),
			HeartbeatTimeout: getEnvAsDuration("REALTIME_HEARTBEAT_TIMEOUT", 5*time.Second),
			RateEvents:       getEnvAsInt("REALTIME_RATE_EVENTS", 120),
			RateWindow:       getEnvAsDuration("REALTIME_RATE_WINDOW", 10*time.Second),
		},
		Notification: NotificationConfig{
			ServiceToken: os.Getenv("NOTIFY_SERVICE_TOKEN"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules. A signing-key
// misconfiguration is a startup error, never a runtime one.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("invalid config: AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must differ")
	}
	if c.Auth.RevocationBackend == BackendPostgres && c.Postgres.DSN == "" {
		return errors.New("invalid config: postgres revocation backend requires POSTGRES_DSN")
	}
	if (c.Auth.RevocationBackend == BackendRedis || c.Auth.AttemptBackend == BackendRedis) && c.Redis.Addr == "" {
		return errors.New("invalid config: redis backend requires REDIS_ADDR")
	}
	return nil
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

// IsProduction reports whether the service runs with production defaults.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
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

// getEnvAsDuration accepts Go duration strings, or whole seconds under KEY_SECONDS.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
