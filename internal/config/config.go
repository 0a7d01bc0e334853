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

// MaxAccessTokenDuration is the longest lifetime an access token may be issued with.
const MaxAccessTokenDuration = 30 * time.Minute

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	ShortURL  ShortURLConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins
}

type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	ChannelBinding string // "require" for Neon DB, empty for local
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	// TokenFormat selects the access token implementation: "jwt" (HS256) or "paseto" (v4.local)
	TokenFormat string
	JWTSecret   []byte
	// PASETO symmetric key (must be 32 bytes for v4.local)
	PasetoKey           []byte
	AccessTokenDuration time.Duration

	// Single-use token lifetimes, 0 disables expiry
	VerificationTokenDuration time.Duration
	ResetTokenDuration        time.Duration

	// PasswordHashAlgorithm is "bcrypt" or "argon2id"
	PasswordHashAlgorithm string
	BcryptCost            int
}

type ShortURLConfig struct {
	CodeLength  int
	MaxAttempts int
	BaseURL     string // public prefix used when rendering short links

	// BlockedDomains are refused at creation and at resolution, subdomains included
	BlockedDomains []string
}

type RateLimitConfig struct {
	Enabled bool
	// Key prefix in Redis, lets several deployments share one instance
	Prefix string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	FrontendURL  string // Frontend URL for verification links
	QueueKey     string // Redis list the worker consumes
}

type AdminConfig struct {
	Email    string
	Password string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "dev"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "shortener"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			ChannelBinding: getEnv("DB_CHANNEL_BINDING", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenFormat:               strings.ToLower(getEnv("ACCESS_TOKEN_FORMAT", "jwt")),
			JWTSecret:                 []byte(getEnv("JWT_SECRET", "")),
			PasetoKey:                 []byte(getEnv("PASETO_KEY", "")),
			AccessTokenDuration:       getDurationEnv("ACCESS_TOKEN_TTL", MaxAccessTokenDuration),
			VerificationTokenDuration: getDurationEnv("VERIFICATION_TOKEN_TTL", 24*time.Hour),
			ResetTokenDuration:        getDurationEnv("RESET_TOKEN_TTL", time.Hour),
			PasswordHashAlgorithm:     strings.ToLower(getEnv("PASSWORD_HASH_ALGORITHM", "bcrypt")),
			BcryptCost:                getIntEnv("PASSWORD_BCRYPT_COST", 12),
		},
		ShortURL: ShortURLConfig{
			CodeLength:     getIntEnv("SHORT_CODE_LENGTH", 6),
			MaxAttempts:    getIntEnv("SHORT_CODE_MAX_ATTEMPTS", 10),
			BaseURL:        getEnv("SHORT_URL_BASE", "http://localhost:8080/r"),
			BlockedDomains: getSliceEnv("BLOCKED_DOMAINS", []string{"malicious.com", "phishing.com", "malware.com"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
			Prefix:  getEnv("RATE_LIMIT_PREFIX", "rl"),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASS", ""),
			FromAddress:  getEnv("SMTP_FROM", getEnv("SMTP_USER", "")),
			FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:3000"),
			QueueKey:     getEnv("EMAIL_QUEUE_KEY", "queue:email"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	switch c.Auth.TokenFormat {
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.Auth.JWTSecret))
		}
	case "paseto":
		// Validate PASETO key length (must be 32 bytes for v4.local)
		if len(c.Auth.PasetoKey) != 32 {
			return fmt.Errorf("PASETO_KEY must be exactly 32 bytes, got %d", len(c.Auth.PasetoKey))
		}
	default:
		return fmt.Errorf("unsupported ACCESS_TOKEN_FORMAT %q", c.Auth.TokenFormat)
	}

	if c.Auth.AccessTokenDuration <= 0 || c.Auth.AccessTokenDuration > MaxAccessTokenDuration {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be between 1s and %s", MaxAccessTokenDuration)
	}
	if c.Auth.VerificationTokenDuration < 0 || c.Auth.ResetTokenDuration < 0 {
		return errors.New("single-use token durations must not be negative")
	}

	switch c.Auth.PasswordHashAlgorithm {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("unsupported PASSWORD_HASH_ALGORITHM %q", c.Auth.PasswordHashAlgorithm)
	}

	// short_urls.code is VARCHAR(10)
	if c.ShortURL.CodeLength < 4 || c.ShortURL.CodeLength > 10 {
		return fmt.Errorf("SHORT_CODE_LENGTH must be between 4 and 10, got %d", c.ShortURL.CodeLength)
	}
	if c.ShortURL.MaxAttempts < 1 {
		return fmt.Errorf("SHORT_CODE_MAX_ATTEMPTS must be positive, got %d", c.ShortURL.MaxAttempts)
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	// Add channel_binding if configured (required for Neon DB)
	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

// SMTPConfigured reports whether outgoing mail can actually be delivered.
func (c *EmailConfig) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolValue
}

// getDurationEnv reads a number of seconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
