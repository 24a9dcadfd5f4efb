package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DocstorePostgres = "postgres"
	DocstoreMemory   = "memory"

	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Audit     AuditConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ClientURL          string
	ConnectionCacheTTL time.Duration
}

type DatabaseConfig struct {
	Driver         string
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	FirebaseProjectID   string
	FirebaseClientEmail string
	FirebasePrivateKey  string
	FirebaseCertsURL    string
	JWTSecret           string
}

// FirebaseConfigured reports whether service-account credentials are present.
// Token verification against Firebase is only enabled when all three are set.
func (a AuthConfig) FirebaseConfigured() bool {
	return a.FirebaseProjectID != "" && a.FirebaseClientEmail != "" && a.FirebasePrivateKey != ""
}

type AuditConfig struct {
	Dispatch    string
	Delay       time.Duration
	Concurrency int
	// MetricsAddr is where the queue worker serves /metrics.
	MetricsAddr string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	port, err := getEnvInt("PORT", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port == 0 {
		if port, err = getEnvInt("SERVER_PORT", 3000); err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	auditDelay, err := getEnvDuration("AUDIT_DELAY", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIT_DELAY: %w", err)
	}

	auditConcurrency, err := getEnvInt("AUDIT_WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIT_WORKER_CONCURRENCY: %w", err)
	}

	cacheTTL, err := getEnvDuration("CONNECTION_CACHE_TTL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid CONNECTION_CACHE_TTL: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	databaseURL := getEnv("DATABASE_URL", "")
	cfg := &Config{
		Env: getEnv("APP_ENV", EnvProduction),
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               port,
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			ConnectionCacheTTL: cacheTTL,
		},
		Database: DatabaseConfig{
			Driver:         getEnv("DOCSTORE_DRIVER", DocstorePostgres),
			URL:            databaseURL,
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			FirebaseProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
			FirebaseClientEmail: getEnv("FIREBASE_CLIENT_EMAIL", ""),
			// Keys copied out of the service-account JSON carry literal \n.
			FirebasePrivateKey: strings.ReplaceAll(getEnv("FIREBASE_PRIVATE_KEY", ""), `\n`, "\n"),
			FirebaseCertsURL:   getEnv("FIREBASE_CERTS_URL", ""),
			JWTSecret:          getEnv("AUTH_JWT_SECRET", ""),
		},
		Audit: AuditConfig{
			Dispatch:    getEnv("AUDIT_DISPATCH", DispatchInline),
			Delay:       auditDelay,
			Concurrency: auditConcurrency,
			MetricsAddr: getEnv("WORKER_METRICS_ADDR", ":9091"),
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case DocstorePostgres, DocstoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("DOCSTORE_DRIVER must be %q or %q", DocstorePostgres, DocstoreMemory))
	}
	switch c.Audit.Dispatch {
	case DispatchInline:
	case DispatchQueue:
		if c.Redis.Addr == "" {
			problems = append(problems, "AUDIT_DISPATCH=queue requires REDIS_ADDR")
		}
	default:
		problems = append(problems, fmt.Sprintf("AUDIT_DISPATCH must be %q or %q", DispatchInline, DispatchQueue))
	}
	if c.Database.Driver == DocstoreMemory && c.Audit.Dispatch == DispatchQueue {
		problems = append(problems, "DOCSTORE_DRIVER=memory cannot be shared with a separate worker process")
	}
	if c.Audit.Delay < 0 {
		problems = append(problems, "AUDIT_DELAY must not be negative")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		problems = append(problems, "RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
