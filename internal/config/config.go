package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Identity  IdentityConfig
	TwoFactor TwoFactorConfig
	Email     EmailConfig
	Tracking  TrackingConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	RunMigrations     bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	AdminPasswordHash string
	AdminEmail        string
	SessionExpiry     time.Duration
	CleanupInterval   time.Duration
	ResetTokenExpiry  time.Duration

	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool
}

// Policy is the window/limit pair for one named rate-limit policy.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

type RateLimitConfig struct {
	Enabled      bool
	Backend      string // "memory" or "redis"
	RedisURL     string
	RedisTimeout time.Duration
	// IPRequestsPerMinute is the coarse httprate ceiling on auth routes.
	IPRequestsPerMinute int

	Login         Policy
	PasswordReset Policy
	ResetPassword Policy
	TwoFactor     Policy
	LogVisit      Policy
}

type LockoutConfig struct {
	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
}

type IdentityConfig struct {
	IPSalt string
	UASalt string
}

type TwoFactorConfig struct {
	Issuer          string
	EncryptionKey   []byte
	BackupCodeCount int
}

type EmailConfig struct {
	Enabled        bool
	AWSRegion      string
	FromAddress    string
	BaseURL        string
	AlertRecipient string
}

type TrackingConfig struct {
	InternalSecret   string
	SessionCookieTTL time.Duration
	HistoryLimit     int
	AlertQueueSize   int
	AlertWorkers     int
	DigestInterval   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "vigil"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			RunMigrations:     getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:            jwtSecret,
			AdminPasswordHash:    getEnv("ADMIN_PASSWORD_HASH", ""),
			AdminEmail:           getEnv("ADMIN_EMAIL", ""),
			SessionExpiry:        getEnvAsDuration("ADMIN_SESSION_EXPIRY", 7*24*time.Hour),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
			ResetTokenExpiry:     getEnvAsDuration("RESET_TOKEN_EXPIRY", 1*time.Hour),
			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
			TimingDelayOnSuccess: getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:             getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Backend:             strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			RedisURL:            getEnv("REDIS_URL", ""),
			RedisTimeout:        getEnvAsDuration("REDIS_TIMEOUT", 250*time.Millisecond),
			IPRequestsPerMinute: getEnvAsInt("RATE_LIMIT_IP_PER_MINUTE", 20),
			Login:               getEnvAsPolicy("RATE_LIMIT_LOGIN", 15*time.Minute, 5),
			PasswordReset:       getEnvAsPolicy("RATE_LIMIT_PASSWORD_RESET", time.Hour, 3),
			ResetPassword:       getEnvAsPolicy("RATE_LIMIT_RESET_PASSWORD", 15*time.Minute, 5),
			TwoFactor:           getEnvAsPolicy("RATE_LIMIT_TWO_FACTOR", 15*time.Minute, 5),
			LogVisit:            getEnvAsPolicy("RATE_LIMIT_LOG_VISIT", time.Minute, 600),
		},
		Lockout: LockoutConfig{
			MaxAttempts:     getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			AttemptWindow:   getEnvAsDuration("LOCKOUT_ATTEMPT_WINDOW", 15*time.Minute),
			LockoutDuration: getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
		},
		Identity: IdentityConfig{
			IPSalt: getEnv("IP_HASH_SALT", ""),
			UASalt: getEnv("UA_HASH_SALT", ""),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          getEnv("TWO_FACTOR_ISSUER", "Vigil"),
			BackupCodeCount: getEnvAsInt("TWO_FACTOR_BACKUP_CODES", 10),
		},
		Email: EmailConfig{
			Enabled:        getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress:    getEnv("EMAIL_FROM", ""),
			BaseURL:        getEnv("APP_BASE_URL", "http://localhost:8080"),
			AlertRecipient: getEnv("ALERT_EMAIL", getEnv("ADMIN_EMAIL", "")),
		},
		Tracking: TrackingConfig{
			InternalSecret:   getEnv("INTERNAL_KEY", ""),
			SessionCookieTTL: getEnvAsDuration("VISITOR_SESSION_TTL", 30*time.Minute),
			HistoryLimit:     getEnvAsInt("SESSION_HISTORY_LIMIT", 100),
			AlertQueueSize:   getEnvAsInt("ALERT_QUEUE_SIZE", 256),
			AlertWorkers:     getEnvAsInt("ALERT_WORKERS", 2),
			DigestInterval:   getEnvAsDuration("DIGEST_INTERVAL", 24*time.Hour),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	key, err := loadEncryptionKey(getEnv("TWO_FACTOR_ENCRYPTION_KEY", ""), jwtSecret, env)
	if err != nil {
		return nil, err
	}
	cfg.TwoFactor.EncryptionKey = key

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}
	if c.Server.Env == "production" && strings.HasPrefix(c.Auth.AdminPasswordHash, "dev:") {
		return fmt.Errorf("ADMIN_PASSWORD_HASH cannot use a dev: password in production")
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimit.Backend)
	}

	if c.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if c.Lockout.LockoutDuration < c.Lockout.AttemptWindow {
		return fmt.Errorf("LOCKOUT_DURATION (%s) must not be shorter than LOCKOUT_ATTEMPT_WINDOW (%s)",
			c.Lockout.LockoutDuration, c.Lockout.AttemptWindow)
	}

	if c.Server.Env == "production" {
		if c.Identity.IPSalt == "" || c.Identity.UASalt == "" {
			return fmt.Errorf("IP_HASH_SALT and UA_HASH_SALT are required in production")
		}
		if c.Tracking.InternalSecret == "" {
			return fmt.Errorf("INTERNAL_KEY is required in production")
		}
	}

	if c.Email.Enabled && c.Email.FromAddress == "" {
		return fmt.Errorf("EMAIL_FROM is required when EMAIL_ENABLED=true")
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// loadEncryptionKey decodes the base64 AES-256 key used for 2FA secrets at rest.
// Outside production a key is derived from the JWT secret when none is configured.
func loadEncryptionKey(encoded, jwtSecret, env string) ([]byte, error) {
	if encoded == "" {
		if env == "production" {
			return nil, fmt.Errorf("TWO_FACTOR_ENCRYPTION_KEY is required in production")
		}
		sum := sha256.Sum256([]byte("vigil-2fa:" + jwtSecret))
		return sum[:], nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("TWO_FACTOR_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TWO_FACTOR_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsPolicy reads <prefix>_WINDOW and <prefix>_MAX.
func getEnvAsPolicy(prefix string, defaultWindow time.Duration, defaultMax int) Policy {
	return Policy{
		Window:      getEnvAsDuration(prefix+"_WINDOW", defaultWindow),
		MaxRequests: getEnvAsInt(prefix+"_MAX", defaultMax),
	}
}

func getEnvAsList(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
