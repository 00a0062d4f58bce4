package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSessionSecret is only acceptable outside production.
const DefaultSessionSecret = "emhr-development-session-secret-change-me"

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant    string        `mapstructure:"DEFAULT_TENANT"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	SessionSecret    string        `mapstructure:"SESSION_SECRET"`
	SessionMaxAge    int           `mapstructure:"SESSION_MAX_AGE"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	TokenTTL         time.Duration `mapstructure:"TOKEN_TTL"`
	PHIEncryptionKey string        `mapstructure:"PHI_ENCRYPTION_KEY"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	SettingsCacheTTL time.Duration `mapstructure:"SETTINGS_CACHE_TTL"`
	DocumentDir      string        `mapstructure:"DOCUMENT_DIR"`
	MailAPIURL       string        `mapstructure:"MAIL_API_URL"`
	MailAPIKey       string        `mapstructure:"MAIL_API_KEY"`
	MailFrom         string        `mapstructure:"MAIL_FROM"`
	SentryDSN        string        `mapstructure:"SENTRY_DSN"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DEFAULT_TENANT",
	"MIGRATIONS_DIR", "CORS_ORIGINS", "SESSION_SECRET", "SESSION_MAX_AGE", "AUTH_SIGNING_KEY",
	"TOKEN_TTL", "PHI_ENCRYPTION_KEY", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REDIS_URL",
	"SETTINGS_CACHE_TTL", "DOCUMENT_DIR", "MAIL_API_URL", "MAIL_API_KEY", "MAIL_FROM", "SENTRY_DSN",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("SESSION_SECRET", DefaultSessionSecret)
	v.SetDefault("SESSION_MAX_AGE", 8*60*60)
	v.SetDefault("TOKEN_TTL", "8h")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("SETTINGS_CACHE_TTL", "5m")
	v.SetDefault("DOCUMENT_DIR", "./data/documents")
	v.SetDefault("MAIL_FROM", "no-reply@emhr.local")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = splitList(cfg.CORSOrigins[0])
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development: requests without credentials run as the bootstrap admin.")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// JWTKey returns the HMAC key for API tokens, falling back to the session secret.
func (c *Config) JWTKey() []byte {
	if c.AuthSigningKey != "" {
		return []byte(c.AuthSigningKey)
	}
	return []byte(c.SessionSecret)
}

// PHIKey decodes PHI_ENCRYPTION_KEY. It returns nil when the key is unset.
func (c *Config) PHIKey() ([]byte, error) {
	if c.PHIEncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.PHIEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "test", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, test, staging or production, got %q", c.Env)
	}

	if _, err := c.PHIKey(); err != nil {
		return err
	}

	if c.IsProduction() {
		if c.PHIEncryptionKey == "" {
			return fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
		}
		if c.SessionSecret == "" || c.SessionSecret == DefaultSessionSecret {
			return fmt.Errorf("SESSION_SECRET must be set in production")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 characters")
		}
	}

	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	return nil
}
