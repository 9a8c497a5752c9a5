package config

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pliu/socialsync/internal/errors"
)

type TransportMode string

const (
	TransportPush TransportMode = "push"
	TransportPoll TransportMode = "poll"
)

type Config struct {
	PollInterval   time.Duration
	TransportMode  TransportMode
	SubscribeRetry time.Duration

	StoreURL    string
	SessionPath string

	ServerAddr string
	DBDriver   string
	DBDSN      string
	JWTSecret  string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

func Load() *Config {
	return &Config{
		PollInterval:   getEnvMillis("SOCIAL_POLL_INTERVAL_MS", time.Second),
		TransportMode:  TransportMode(getEnv("SOCIAL_TRANSPORT_MODE", string(TransportPush))),
		SubscribeRetry: getEnvMillis("SOCIAL_SUBSCRIBE_RETRY_MS", 2*time.Second),
		StoreURL:       getEnv("SOCIAL_STORE_URL", "http://localhost:8080"),
		SessionPath:    getEnv("SOCIAL_SESSION_PATH", defaultSessionPath()),
		ServerAddr:     getEnv("SOCIAL_ADDR", ":8080"),
		DBDriver:       getEnv("SOCIAL_DB_DRIVER", "sqlite3"),
		DBDSN:          getEnv("SOCIAL_DB_DSN", "socialsync.db"),
		JWTSecret:      getEnv("SOCIAL_JWT_SECRET", "dev-secret-change-me"),
		SMTPHost:       getEnv("SOCIAL_SMTP_HOST", ""),
		SMTPPort:       getEnv("SOCIAL_SMTP_PORT", "587"),
		SMTPUser:       getEnv("SOCIAL_SMTP_USER", ""),
		SMTPPassword:   getEnv("SOCIAL_SMTP_PASSWORD", ""),
		SMTPFrom:       getEnv("SOCIAL_SMTP_FROM", "noreply@socialsync.local"),
	}
}

// RegisterServerFlags lets flags override the environment for the store
// server. Call before flag.Parse.
func (c *Config) RegisterServerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ServerAddr, "addr", c.ServerAddr, "HTTP service address")
	fs.StringVar(&c.DBDriver, "db-driver", c.DBDriver, "database driver (sqlite3, postgres, pgx)")
	fs.StringVar(&c.DBDSN, "db-dsn", c.DBDSN, "database connection string")
}

func (c *Config) Validate() error {
	switch c.TransportMode {
	case TransportPush, TransportPoll:
	default:
		return errors.Newf(errors.ErrValidation, "unknown transport mode %q", c.TransportMode)
	}
	if c.PollInterval <= 0 {
		return errors.Newf(errors.ErrValidation, "poll interval must be positive, got %s", c.PollInterval)
	}
	if c.SubscribeRetry <= 0 {
		return errors.Newf(errors.ErrValidation, "subscribe retry must be positive, got %s", c.SubscribeRetry)
	}
	return nil
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

// getEnvMillis reads a whole number of milliseconds. Unparseable values
// become zero so that Validate reports them.
func getEnvMillis(key string, fallback time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	ms, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.db"
	}
	return filepath.Join(home, ".socialsync", "session.db")
}
