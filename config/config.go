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

type Config struct {
	StoreDriver string
	Server      ServerConfig
	Mongo       MongoConfig
	Postgres    PostgresConfig
	Cassandra   CassandraConfig
	JWT         JWTConfig
	Sync        SyncConfig
	Analytics   AnalyticsConfig
	Breaker     BreakerConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigin      string
}

type MongoConfig struct {
	URI             string
	Database        string
	UseTransactions bool
	ConnectTimeout  time.Duration
}

type PostgresConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	TimeZone     string
	MaxIdleConns int
	MaxOpenConns int
	AutoMigrate  bool
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		p.Host, p.User, p.Password, p.DBName, p.Port, p.SSLMode, p.TimeZone)
}

type CassandraConfig struct {
	Enabled  bool
	Hosts    []string
	Keyspace string
}

type JWTConfig struct {
	Secret string
}

type SyncConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	Lease        time.Duration
}

type AnalyticsConfig struct {
	// MaxStaleness is how old a cached snapshot may be before reads
	// recompute it from the operational store.
	MaxStaleness      time.Duration
	ReconcileInterval time.Duration
}

type BreakerConfig struct {
	MaxRequests         uint32
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

type LogConfig struct {
	File     string
	Level    string
	Stdout   bool
	Timezone string
}

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		StoreDriver: getEnv("STORE_DRIVER", DriverMongo),
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigin:      getEnv("CORS_ORIGIN", "*"),
		},
		Mongo: MongoConfig{
			URI:             getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:        getEnv("MONGO_DB_NAME", "taskforge"),
			UseTransactions: getEnvAsBool("MONGO_USE_TRANSACTIONS", false),
			ConnectTimeout:  getEnvAsDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			Host:         getEnv("POSTGRES_HOST", "localhost"),
			Port:         getEnv("POSTGRES_PORT", "5432"),
			User:         getEnv("POSTGRES_USER", "postgres"),
			Password:     getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:       getEnv("POSTGRES_DB", "taskforge"),
			SSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone:     getEnv("POSTGRES_TIMEZONE", "UTC"),
			MaxIdleConns: getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
			MaxOpenConns: getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 10),
			AutoMigrate:  getEnvAsBool("POSTGRES_AUTO_MIGRATE", true),
		},
		Cassandra: CassandraConfig{
			Enabled:  getEnvAsBool("CASSANDRA_ENABLED", false),
			Hosts:    getEnvAsList("CASS_DB", []string{"127.0.0.1"}),
			Keyspace: getEnv("CASSANDRA_KEYSPACE", "notifications"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Sync: SyncConfig{
			PollInterval: getEnvAsDuration("SYNC_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getEnvAsInt("SYNC_BATCH_SIZE", 50),
			Concurrency:  getEnvAsInt("SYNC_CONCURRENCY", 4),
			MaxAttempts:  getEnvAsInt("SYNC_MAX_ATTEMPTS", 8),
			BaseBackoff:  getEnvAsDuration("SYNC_BASE_BACKOFF", time.Second),
			MaxBackoff:   getEnvAsDuration("SYNC_MAX_BACKOFF", 5*time.Minute),
			Lease:        getEnvAsDuration("SYNC_LEASE", 30*time.Second),
		},
		Analytics: AnalyticsConfig{
			MaxStaleness:      getEnvAsDuration("ANALYTICS_MAX_STALENESS", 5*time.Minute),
			ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 15*time.Minute),
		},
		Breaker: BreakerConfig{
			MaxRequests:         uint32(getEnvAsInt("BREAKER_MAX_REQUESTS", 1)),
			Timeout:             getEnvAsDuration("BREAKER_TIMEOUT", 5*time.Second),
			ConsecutiveFailures: uint32(getEnvAsInt("BREAKER_CONSECUTIVE_FAILURES", 3)),
		},
		Log: LogConfig{
			File:     getEnv("LOG_FILE", "logs/taskforge.log"),
			Level:    getEnv("LOG_LEVEL", "info"),
			Stdout:   getEnvAsBool("LOG_STDOUT", true),
			Timezone: getEnv("LOG_TIMEZONE", "UTC"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.StoreDriver != DriverMongo && c.StoreDriver != DriverMemory {
		problems = append(problems, fmt.Sprintf("STORE_DRIVER must be %q or %q", DriverMongo, DriverMemory))
	}
	if c.JWT.Secret == "" {
		problems = append(problems, "JWT_SECRET is not set")
	}
	if c.Sync.BatchSize <= 0 || c.Sync.Concurrency <= 0 || c.Sync.MaxAttempts <= 0 {
		problems = append(problems, "SYNC_BATCH_SIZE, SYNC_CONCURRENCY and SYNC_MAX_ATTEMPTS must be positive")
	}
	if c.Analytics.MaxStaleness < 0 {
		problems = append(problems, "ANALYTICS_MAX_STALENESS must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return duration
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
