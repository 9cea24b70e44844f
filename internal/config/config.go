package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// TokenAlgorithmPaseto selects PASETO v4.local session tokens.
	TokenAlgorithmPaseto = "v4.local"
	// TokenAlgorithmHS256 selects JWT session tokens signed with HMAC-SHA256.
	TokenAlgorithmHS256 = "HS256"

	// DefaultDiscoveryURL is Google's OpenID Connect discovery document.
	DefaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

	minSecretKeyLength = 32
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	OAuth     OAuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	APIPrefix       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins for cookie auth
}

type DatabaseConfig struct {
	URL         string // takes precedence over the individual parts
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	// Key material for session tokens; per-algorithm keys are derived from it.
	SecretKey           []byte
	TokenAlgorithm      string
	AccessTokenDuration time.Duration
	FrontendURL         string
	PostLoginPath       string
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	DiscoveryURL string
	HTTPTimeout  time.Duration
	DiscoveryTTL time.Duration
}

type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8000"),
			Env:             getEnv("APP_ENV", "dev"),
			APIPrefix:       getEnv("API_PREFIX", "/api/v1"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Database: loadDatabase(),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			SecretKey:           []byte(getEnv("TOKEN_SECRET_KEY", "")),
			TokenAlgorithm:      getEnv("TOKEN_ALGORITHM", TokenAlgorithmPaseto),
			AccessTokenDuration: getDurationEnv("ACCESS_TOKEN_DURATION", 7*24*time.Hour),
			FrontendURL:         strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
			PostLoginPath:       getEnv("POST_LOGIN_PATH", "/dashboard"),
		},
		OAuth: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
			DiscoveryURL: getEnv("GOOGLE_DISCOVERY_URL", DefaultDiscoveryURL),
			HTTPTimeout:  getDurationEnv("OAUTH_HTTP_TIMEOUT", 10*time.Second),
			DiscoveryTTL: getDurationEnv("OAUTH_DISCOVERY_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getIntEnv("RATE_LIMIT_MAX", 20),
			Window:      getDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings. Used by tooling that
// does not need OAuth credentials.
func LoadDatabase() DatabaseConfig {
	_ = godotenv.Load()
	return loadDatabase()
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("DATABASE_URL", ""),
		Host:        getEnv("DB_HOST", "localhost"),
		Port:        getEnv("DB_PORT", "5432"),
		User:        getEnv("DB_USER", "postgres"),
		Password:    getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "brokenomore"),
		SSLMode:     getEnv("DB_SSLMODE", "disable"),
		AutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", true),
	}
}

func (c *Config) validate() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	if c.OAuth.ClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}
	if c.OAuth.RedirectURI == "" {
		return fmt.Errorf("GOOGLE_REDIRECT_URI is required")
	}
	if _, err := url.ParseRequestURI(c.OAuth.RedirectURI); err != nil {
		return fmt.Errorf("GOOGLE_REDIRECT_URI is not a valid URL: %w", err)
	}
	if _, err := url.ParseRequestURI(c.OAuth.DiscoveryURL); err != nil {
		return fmt.Errorf("GOOGLE_DISCOVERY_URL is not a valid URL: %w", err)
	}

	if len(c.Auth.SecretKey) < minSecretKeyLength {
		return fmt.Errorf("TOKEN_SECRET_KEY must be at least %d bytes, got %d", minSecretKeyLength, len(c.Auth.SecretKey))
	}

	switch c.Auth.TokenAlgorithm {
	case TokenAlgorithmPaseto, TokenAlgorithmHS256:
	default:
		return fmt.Errorf("TOKEN_ALGORITHM must be %q or %q, got %q", TokenAlgorithmPaseto, TokenAlgorithmHS256, c.Auth.TokenAlgorithm)
	}

	if c.Auth.AccessTokenDuration <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_DURATION must be positive")
	}

	return nil
}

// ConnectionString returns DATABASE_URL when set, otherwise a Postgres
// keyword/value string built from the DB_* parts.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Enabled reports whether a Redis host was configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

// PostLoginURL is where the browser lands after a successful callback.
func (c *AuthConfig) PostLoginURL() string {
	return c.FrontendURL + c.PostLoginPath
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

// getDurationEnv reads a duration expressed in whole seconds.
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

	// Split by comma and trim whitespace
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
