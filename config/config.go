package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names the deployment target and changes validation strictness.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config aggregates every subsystem's settings, loaded once at startup.
type Config struct {
	// Application
	App AppConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// HTTP API
	HTTP HTTPConfig

	// Auto-chain trigger
	AutoChain AutoChainConfig

	// Security
	Security SecurityConfig

	// Observability
	Observability ObservabilityConfig
}

// AppConfig carries process identity and lifecycle settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// ShutdownTimeout bounds the drain on SIGTERM.
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the PostgreSQL target and pool shape.
type DatabaseConfig struct {
	// URL is a postgres:// connection string. When empty, Load assembles
	// one from the DB_* variables.
	URL string


	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration


	QueryTimeout time.Duration

	// AutoMigrate applies the embedded schema steps on startup.
	AutoMigrate bool
}

// RedisConfig selects the cache backend.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int


	PoolSize     int
	MinIdleConns int


	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Enable for development without Redis; the catalog is then served
	// straight from PostgreSQL.
	Disabled bool
}

// HTTPConfig shapes the API listener and its middleware.
type HTTPConfig struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableCORS     bool
	AllowedOrigins []string

	// Per-IP request allowance for the sliding window limiter
	RateLimitPerMinute int
}

// AutoChainConfig holds settings for the automatic next-lesson trigger.
type AutoChainConfig struct {
	// Enable/disable the trigger
	Enabled bool

	// Timeout for each background submission
	SubmitTimeout time.Duration

	// Event bus worker pool size
	WorkerPoolSize int
}

// SecurityConfig holds encryption settings.
type SecurityConfig struct {
	// Hex-encoded 32-byte key for media URL encryption at rest.
	// Empty disables encryption and stores URLs in plaintext.
	MediaEncryptionKey string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// Load reads the whole configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.App = loadAppConfig()

	var err error
	cfg.Database, err = loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	cfg.Redis = loadRedisConfig()
	cfg.HTTP = loadHTTPConfig()
	cfg.AutoChain = loadAutoChainConfig()
	cfg.Security = loadSecurityConfig()
	cfg.Observability = loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))

	return AppConfig{
		Name:            getEnv("APP_NAME", "curso-access-hub"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	url := getEnv("DATABASE_URL", "")
	if url == "" {
		// Assemble the URL from DB_* parts when possible.
		host := getEnv("DB_HOST", "")
		port := getEnv("DB_PORT", "5432")
		user := getEnv("DB_USER", "")
		pass := getEnv("DB_PASSWORD", "")
		name := getEnv("DB_NAME", "curso_access")
		sslmode := getEnv("DB_SSLMODE", "prefer")

		if host != "" && user != "" {
			url = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
				user, pass, host, port, name, sslmode)
		}
	}

	return DatabaseConfig{
		URL:             url,
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 30*time.Second),
		AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
	}, nil
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		Disabled:     getEnvBool("REDIS_DISABLED", false),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:               getEnv("HTTP_HOST", "0.0.0.0"),
		Port:               getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:        getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		EnableCORS:         getEnvBool("HTTP_ENABLE_CORS", true),
		AllowedOrigins:     getEnvStringSlice("HTTP_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvInt("HTTP_RATE_LIMIT_PER_MINUTE", 100),
	}
}

func loadAutoChainConfig() AutoChainConfig {
	return AutoChainConfig{
		Enabled:        getEnvBool("AUTO_CHAIN_ENABLED", true),
		SubmitTimeout:  getEnvDuration("AUTO_CHAIN_SUBMIT_TIMEOUT", 10*time.Second),
		WorkerPoolSize: getEnvInt("AUTO_CHAIN_WORKER_POOL_SIZE", 10),
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MediaEncryptionKey: getEnv("MEDIA_ENCRYPTION_KEY", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate collects every violation so one run reports them all.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Environment == EnvProduction {
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required in production")
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}

	if c.HTTP.RateLimitPerMinute < 1 {
		errs = append(errs, "HTTP_RATE_LIMIT_PER_MINUTE must be positive")
	}

	if key := c.Security.MediaEncryptionKey; key != "" && len(key) != 64 {
		errs = append(errs, "MEDIA_ENCRYPTION_KEY must be 64 hex characters when set")
	}

	if c.AutoChain.WorkerPoolSize < 1 {
		errs = append(errs, "AUTO_CHAIN_WORKER_POOL_SIZE must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment reports whether the process runs in development.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// Environment helpers fall back to the default on absent or unparseable values.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		result = append(result, p)
	}
	return result
}
