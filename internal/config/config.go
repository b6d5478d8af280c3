package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	APIBaseURL      string        `mapstructure:"API_BASE_URL"`
	APITimeout      time.Duration `mapstructure:"API_TIMEOUT"`
	APIRetryCount   int           `mapstructure:"API_RETRY_COUNT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	FlashKey        string        `mapstructure:"FLASH_KEY"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL     string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience    string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	NotifyTTL       time.Duration `mapstructure:"NOTIFY_TTL"`
	ScreenIdleTTL   time.Duration `mapstructure:"SCREEN_IDLE_TTL"`
	UploadLimit     string        `mapstructure:"UPLOAD_LIMIT"`
	PrintChromePath string        `mapstructure:"PRINT_CHROME_PATH"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("API_TIMEOUT", "15s")
	v.SetDefault("API_RETRY_COUNT", 2)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("NOTIFY_TTL", "3s")
	v.SetDefault("SCREEN_IDLE_TTL", "30m")
	v.SetDefault("UPLOAD_LIMIT", "20M")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("API_BASE_URL")
	v.BindEnv("API_TIMEOUT")
	v.BindEnv("API_RETRY_COUNT")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("FLASH_KEY")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("NOTIFY_TTL")
	v.BindEnv("SCREEN_IDLE_TTL")
	v.BindEnv("UPLOAD_LIMIT")
	v.BindEnv("PRINT_CHROME_PATH")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: console is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; unauthenticated operators act as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// AuditEnabled reports whether action outcomes are persisted to Postgres.
func (c *Config) AuditEnabled() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run. Outside development
// an operator token must be verifiable, either with a shared signing key or
// through the issuer's JWKS.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive, got %s", c.APITimeout)
	}
	if c.APIRetryCount < 0 {
		return fmt.Errorf("API_RETRY_COUNT must not be negative, got %d", c.APIRetryCount)
	}
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthIssuer == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY, AUTH_ISSUER or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if c.FlashKey != "" {
		if key, err := hex.DecodeString(c.FlashKey); err != nil || len(key) != 32 {
			return fmt.Errorf("FLASH_KEY must be 64 hex characters")
		}
	}
	if c.NotifyTTL <= 0 {
		return fmt.Errorf("NOTIFY_TTL must be positive, got %s", c.NotifyTTL)
	}
	if c.ScreenIdleTTL <= 0 {
		return fmt.Errorf("SCREEN_IDLE_TTL must be positive, got %s", c.ScreenIdleTTL)
	}
	return nil
}
