package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppName string `envconfig:"APP_NAME" default:"chatcore"`
	Env     string `envconfig:"APP_ENV" default:"development"`
	Host    string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port    int    `envconfig:"HTTP_PORT" default:"8000"`

	// DBDriver is "sqlite" or "postgres". An empty DatabaseURL for postgres is
	// assembled from the POSTGRES_* variables.
	DBDriver         string `envconfig:"DB_DRIVER" default:"sqlite"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"chat"`

	JWTSecret          string   `envconfig:"JWT_SECRET"`
	AccessTokenMinutes int      `envconfig:"ACCESS_TOKEN_EXPIRE_MINUTES" default:"1440"`
	EncryptKey         string   `envconfig:"ENCRYPTION_KEY"`
	LegacyEncryptKeys  []string `envconfig:"LEGACY_ENCRYPTION_KEYS"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`

	// PresenceBackend selects where last-seen is persisted: "sql" or "redis".
	PresenceBackend   string        `envconfig:"PRESENCE_BACKEND" default:"sql"`
	RedisAddr         string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0"`
	PresenceOnlineTTL time.Duration `envconfig:"PRESENCE_ONLINE_TTL" default:"2m"`

	// NATS is optional; an empty URL disables notification intake and event publishing.
	NATSURL              string `envconfig:"NATS_URL"`
	NATSToken            string `envconfig:"NATS_TOKEN"`
	NotificationsSubject string `envconfig:"NOTIFICATIONS_SUBJECT" default:"social.notifications"`
	NotificationsQueue   string `envconfig:"NOTIFICATIONS_QUEUE" default:"chatcore"`

	WSQueueSize       int           `envconfig:"WS_QUEUE_SIZE" default:"256"`
	WSPongWait        time.Duration `envconfig:"WS_PONG_WAIT" default:"60s"`
	WSWriteWait       time.Duration `envconfig:"WS_WRITE_WAIT" default:"10s"`
	WSMaxMessageBytes int64         `envconfig:"WS_MAX_MESSAGE_BYTES" default:"65536"`
	WSRateLimit       int           `envconfig:"WS_RATE_LIMIT" default:"30"`
	WSRateWindow      time.Duration `envconfig:"WS_RATE_WINDOW" default:"1m"`

	BackfillPageSize int `envconfig:"BACKFILL_PAGE_SIZE" default:"200"`
}

// Load reads the environment, after a .env file outside production.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	switch cfg.DBDriver {
	case "sqlite":
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = "file:chatcore.db?_time_format=sqlite"
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			u := url.URL{
				Scheme:   "postgres",
				User:     url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword),
				Host:     fmt.Sprintf("%s:%s", cfg.PostgresHost, cfg.PostgresPort),
				Path:     cfg.PostgresDB,
				RawQuery: "sslmode=disable",
			}
			cfg.DatabaseURL = u.String()
		}
	default:
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}

	switch cfg.PresenceBackend {
	case "sql", "redis":
	default:
		return nil, fmt.Errorf("PRESENCE_BACKEND must be sql or redis, got %q", cfg.PresenceBackend)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.BackfillPageSize <= 0 {
		return nil, fmt.Errorf("BACKFILL_PAGE_SIZE must be positive")
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}
