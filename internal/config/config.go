package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	LogLevel          string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string   `mapstructure:"REDIS_URL"`
	EventBus          string   `mapstructure:"EVENT_BUS"`
	AuthSigningKey    string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL       string   `mapstructure:"AUTH_JWKS_URL"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int      `mapstructure:"RATE_LIMIT_BURST"`
	ClinicTimezone    string   `mapstructure:"CLINIC_TIMEZONE"`
	BlobBackend       string   `mapstructure:"BLOB_BACKEND"`
	BlobBaseURL       string   `mapstructure:"BLOB_BASE_URL"`
	BlobBucket        string   `mapstructure:"BLOB_BUCKET"`
	BlobToken         string   `mapstructure:"BLOB_TOKEN"`
	HistoryMaxEntries int      `mapstructure:"HISTORY_MAX_ENTRIES"`
	HistoryMaxPhotos  int      `mapstructure:"HISTORY_MAX_PHOTOS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "EVENT_BUS",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"CLINIC_TIMEZONE",
	"BLOB_BACKEND", "BLOB_BASE_URL", "BLOB_BUCKET", "BLOB_TOKEN",
	"HISTORY_MAX_ENTRIES", "HISTORY_MAX_PHOTOS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("EVENT_BUS", "memory")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("CLINIC_TIMEZONE", "America/Mexico_City")
	v.SetDefault("BLOB_BACKEND", "memory")
	v.SetDefault("HISTORY_MAX_ENTRIES", 20)
	v.SetDefault("HISTORY_MAX_PHOTOS", 8)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil || (len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",")) {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: ENV=development without AUTH_SIGNING_KEY: unauthenticated requests act as the dev user.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves CLINIC_TIMEZONE. Calendar-day and week rules are
// evaluated in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// either AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.EventBus {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when EVENT_BUS is \"redis\"")
		}
	default:
		return fmt.Errorf("EVENT_BUS must be \"memory\" or \"redis\", got %q", c.EventBus)
	}

	switch c.BlobBackend {
	case "memory":
	case "http":
		if c.BlobBaseURL == "" || c.BlobBucket == "" {
			return fmt.Errorf("BLOB_BASE_URL and BLOB_BUCKET are required when BLOB_BACKEND is \"http\"")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be \"memory\" or \"http\", got %q", c.BlobBackend)
	}

	if c.HistoryMaxEntries < 1 || c.HistoryMaxPhotos < 0 {
		return fmt.Errorf("HISTORY_MAX_ENTRIES must be positive and HISTORY_MAX_PHOTOS non-negative")
	}
	return nil
}
